package helpers

import (
	"time"

	model "pigeon-auction/internal/models"
)

// Request/Response DTOs

// PlaceBidRequest is the POST /bids body. The bidder comes from the access token.
type PlaceBidRequest struct {
	AuctionID string  `json:"auction_id" binding:"required"`
	Amount    float64 `json:"amount" binding:"required,gt=0"`
}

type BidResponse struct {
	BidID     string  `json:"bid_id"`
	AuctionID string  `json:"auction_id"`
	BidderID  string  `json:"bidder_id"`
	Amount    float64 `json:"amount"`
	IsWinning bool    `json:"is_winning"`
	CreatedAt string  `json:"created_at"`
}

// NewBidResponse converts a stored bid for the wire
func NewBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:     bid.BidID,
		AuctionID: bid.AuctionID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		IsWinning: bid.IsWinning,
		CreatedAt: bid.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type CreateAuctionRequest struct {
	Title         string   `json:"title" binding:"required,min=3,max=200"`
	Description   string   `json:"description" binding:"max=5000"`
	Category      string   `json:"category" binding:"max=100"`
	StartingPrice float64  `json:"starting_price" binding:"gte=0"`
	BuyNowPrice   *float64 `json:"buy_now_price" binding:"omitempty,gt=0"`
	ReservePrice  *float64 `json:"reserve_price" binding:"omitempty,gt=0"`
	DurationHours int      `json:"duration_hours" binding:"omitempty,gte=1,lte=720"`
}

// ToNewAuction converts the request into service input
func (r CreateAuctionRequest) ToNewAuction() model.NewAuction {
	return model.NewAuction{
		Title:         r.Title,
		Description:   r.Description,
		Category:      r.Category,
		StartingPrice: r.StartingPrice,
		BuyNowPrice:   r.BuyNowPrice,
		ReservePrice:  r.ReservePrice,
		Duration:      time.Duration(r.DurationHours) * time.Hour,
	}
}

// ListAuctionsQuery is bound from the GET /auctions query string
type ListAuctionsQuery struct {
	Page     int    `form:"page" binding:"omitempty,gte=1"`
	Limit    int    `form:"limit" binding:"omitempty,gte=1,lte=100"`
	Category string `form:"category" binding:"max=100"`
	Status   string `form:"status" binding:"omitempty,auction_status"`
	Search   string `form:"search" binding:"max=200"`
	SortBy   string `form:"sortBy" binding:"omitempty,auction_sort"`
}

// ToQuery converts the bound query string into a repository query
func (q ListAuctionsQuery) ToQuery() model.AuctionQuery {
	return model.AuctionQuery{
		Page:     q.Page,
		Limit:    q.Limit,
		Category: q.Category,
		Status:   model.AuctionStatus(q.Status),
		Search:   q.Search,
		SortBy:   q.SortBy,
	}
}
