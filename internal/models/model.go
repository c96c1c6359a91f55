package models

import (
	"sort"
	"time"
)

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusPending   AuctionStatus = "PENDING"
	StatusActive    AuctionStatus = "ACTIVE"
	StatusEnded     AuctionStatus = "ENDED"
	StatusCancelled AuctionStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses
func (s AuctionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusEnded, StatusCancelled:
		return true
	}
	return false
}

// Auction represents a pigeon listed for sale
type Auction struct {
	AuctionID     string        `json:"auction_id" db:"id"`
	SellerID      string        `json:"seller_id" db:"seller_id"`
	Title         string        `json:"title" db:"title"`
	Description   string        `json:"description" db:"description"`
	Category      string        `json:"category" db:"category"`
	StartingPrice float64       `json:"starting_price" db:"starting_price"`
	CurrentPrice  float64       `json:"current_price" db:"current_price"`
	BuyNowPrice   *float64      `json:"buy_now_price,omitempty" db:"buy_now_price"`
	ReservePrice  *float64      `json:"reserve_price,omitempty" db:"reserve_price"`
	StartTime     time.Time     `json:"start_time" db:"start_time"`
	EndTime       time.Time     `json:"end_time" db:"end_time"`
	Status        AuctionStatus `json:"status" db:"status"`
	IsApproved    bool          `json:"is_approved" db:"is_approved"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// AcceptsBids reports whether the auction is open for bidding, ignoring the clock
func (a Auction) AcceptsBids() bool {
	return a.Status == StatusActive && a.IsApproved
}

// Bid represents a bidder's offer on an auction
type Bid struct {
	BidID     string    `json:"bid_id" db:"id"`
	AuctionID string    `json:"auction_id" db:"auction_id"`
	BidderID  string    `json:"bidder_id" db:"bidder_id"`
	Amount    float64   `json:"amount" db:"amount"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	IsWinning bool      `json:"is_winning" db:"is_winning"`
}

// Outranks reports whether b sorts ahead of other: higher amount first, earlier bid on ties.
func (b Bid) Outranks(other Bid) bool {
	if b.Amount != other.Amount {
		return b.Amount > other.Amount
	}
	return b.CreatedAt.Before(other.CreatedAt)
}

// SortBids orders bids by amount descending, earliest first on equal amounts.
func SortBids(bids []Bid) {
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Outranks(bids[j]) })
}

// AuctionSnapshot is the state bid acceptance is evaluated against.
// Auction and HighestBid are read together.
type AuctionSnapshot struct {
	Auction    Auction
	HighestBid *Bid
}

// BidderSummary aggregates one bidder's activity on an auction
type BidderSummary struct {
	BidderID      string    `json:"bidder_id"`
	HighestAmount float64   `json:"highest_amount"`
	BidCount      int       `json:"bid_count"`
	LastBidAt     time.Time `json:"last_bid_at"`
}

// NewAuction holds seller input for creating an auction
type NewAuction struct {
	Title         string
	Description   string
	Category      string
	StartingPrice float64
	BuyNowPrice   *float64
	ReservePrice  *float64
	Duration      time.Duration
}

// Listing sort orders
const (
	SortNewest     = "newest"
	SortEndingSoon = "endingSoon"
	SortPriceAsc   = "priceAsc"
	SortPriceDesc  = "priceDesc"
)

// AuctionQuery filters and pages the public auction listing
type AuctionQuery struct {
	Page     int
	Limit    int
	Category string
	Status   AuctionStatus
	Search   string
	SortBy   string
}

// Offset returns the number of rows to skip for the query's page
func (q AuctionQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// AuctionPage is one page of the auction listing
type AuctionPage struct {
	Auctions   []Auction `json:"auctions"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	Total      int       `json:"total"`
	TotalPages int       `json:"total_pages"`
	HasNext    bool      `json:"has_next"`
	HasPrev    bool      `json:"has_prev"`
}

// BidAccepted is emitted after a bid has been committed
type BidAccepted struct {
	AuctionID     string    `json:"auction_id"`
	BidID         string    `json:"bid_id"`
	BidderID      string    `json:"bidder_id"`
	Amount        float64   `json:"amount"`
	PreviousPrice float64   `json:"previous_price"`
	AcceptedAt    time.Time `json:"accepted_at"`
}
