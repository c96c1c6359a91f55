package handler

import (
	"context"
	"errors"
	"net/http"

	"pigeon-auction/internal/biddingerrors"
	model "pigeon-auction/internal/models"
	"pigeon-auction/services/bidding/helpers"
	"pigeon-auction/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=bidding_handler.go -destination=mock_bidding_service.go -package=handler

type BiddingServiceInterface interface {
	SubmitBid(ctx context.Context, auctionID, bidderID string, amount float64) (model.Bid, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error)
	GetBidders(ctx context.Context, auctionID string) ([]model.BidderSummary, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// SubmitBidHandler handles POST /bids
func (h *BiddingHandler) SubmitBidHandler(c *gin.Context) {
	claims, ok := helpers.ClaimsFrom(c)
	if !ok {
		helpers.RespondError(c, biddingerrors.ErrUnauthorized)
		return
	}

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SubmitBidHandler", err)
		return
	}

	bidderID := claims.BidderID()
	bid, err := h.service.SubmitBid(c.Request.Context(), req.AuctionID, bidderID, req.Amount)
	if err != nil {
		status, _ := helpers.RespondError(c, err)
		fields := map[string]any{
			"handler":    "SubmitBidHandler",
			"auction_id": req.AuctionID,
			"bidder_id":  bidderID,
			"amount":     req.Amount,
			"error":      err.Error(),
		}
		if status >= http.StatusInternalServerError {
			utils.Error("SubmitBidHandler: failed to submit bid", fields)
		} else {
			utils.Warn("SubmitBidHandler: bid rejected", fields)
		}
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(bid), "bid accepted")
	helpers.LogSuccess("SubmitBidHandler", "bid accepted", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"bidder_id":  bidderID,
		"amount":     bid.Amount,
	})
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("GetBidsByAuctionHandler: error retrieving bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, helpers.NewBidResponse(b))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(resp),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		// For auction, winning bid not found -> 404
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		helpers.RespondError(c, err)
		utils.Warn("GetWinningBidHandler: winning bid error", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Amount,
	})
}

// GetAuctionsByBidderHandler handles GET /users/:user_id/auctions
func (h *BiddingHandler) GetAuctionsByBidderHandler(c *gin.Context) {
	bidderID := c.Param("user_id")
	auctions, err := h.service.GetAuctionsByBidder(c.Request.Context(), bidderID)
	if err != nil && !errors.Is(err, biddingerrors.ErrBidderNoBids) {
		helpers.RespondError(c, err)
		utils.Warn("GetAuctionsByBidderHandler: error retrieving auctions", map[string]any{"bidder_id": bidderID, "error": err.Error()})
		return
	}

	if auctions == nil {
		auctions = []model.Auction{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("GetAuctionsByBidderHandler", "auctions retrieved successfully", map[string]any{
		"bidder_id":      bidderID,
		"auctions_count": len(auctions),
	})
}

// GetBiddersHandler handles GET /admin/auctions/:auction_id/bidders
func (h *BiddingHandler) GetBiddersHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bidders, err := h.service.GetBidders(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("GetBiddersHandler: error retrieving bidders", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	if bidders == nil {
		bidders = []model.BidderSummary{}
	}

	utils.JSONResponse(c, http.StatusOK, bidders, "bidders retrieved successfully")
	helpers.LogSuccess("GetBiddersHandler", "bidders retrieved successfully", map[string]any{
		"auction_id":    auctionID,
		"bidders_count": len(bidders),
	})
}
