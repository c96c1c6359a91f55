package handler

import (
	"context"
	"net/http"
	"time"

	"pigeon-auction/internal/biddingerrors"
	model "pigeon-auction/internal/models"
	"pigeon-auction/services/bidding/helpers"
	"pigeon-auction/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=auction_handler.go -destination=mock_auction_service.go -package=handler

type AuctionServiceInterface interface {
	CreateAuction(ctx context.Context, sellerID string, in model.NewAuction) (model.Auction, error)
	ListAuctions(ctx context.Context, q model.AuctionQuery) (model.AuctionPage, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ApproveAuction(ctx context.Context, auctionID string) (model.Auction, error)
}

// StreamServer upgrades a request into a live bid feed for one auction
type StreamServer interface {
	ServeAuction(w http.ResponseWriter, r *http.Request, auctionID string) error
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type AuctionHandler struct {
	service AuctionServiceInterface
	stream  StreamServer
}

// NewAuctionHandler creates an AuctionHandler. stream may be nil, which disables live feeds.
func NewAuctionHandler(service AuctionServiceInterface, stream StreamServer) *AuctionHandler {
	return &AuctionHandler{service: service, stream: stream}
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	claims, ok := helpers.ClaimsFrom(c)
	if !ok {
		helpers.RespondError(c, biddingerrors.ErrUnauthorized)
		return
	}

	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := h.service.CreateAuction(c.Request.Context(), claims.BidderID(), req.ToNewAuction())
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("CreateAuctionHandler: failed to create auction", map[string]any{
			"seller_id": claims.BidderID(),
			"error":     err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, auction, "auction created and awaiting approval")
	helpers.LogSuccess("CreateAuctionHandler", "auction created", map[string]any{
		"auction_id": auction.AuctionID,
		"seller_id":  auction.SellerID,
	})
}

// ListAuctionsHandler handles GET /auctions
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	var q helpers.ListAuctionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "ListAuctionsHandler", err)
		return
	}

	page, err := h.service.ListAuctions(c.Request.Context(), q.ToQuery())
	if err != nil {
		helpers.RespondError(c, err)
		utils.Error("ListAuctionsHandler: failed to list auctions", map[string]any{"error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, page, "auctions retrieved successfully")
	utils.Debug("ListAuctionsHandler: auctions retrieved", map[string]any{
		"page":  page.Page,
		"count": len(page.Auctions),
		"total": page.Total,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("GetAuctionHandler: error retrieving auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction retrieved successfully")
}

// ApproveAuctionHandler handles POST /admin/auctions/:auction_id/approve
func (h *AuctionHandler) ApproveAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.ApproveAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("ApproveAuctionHandler: approval failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction approved")
	fields := map[string]any{"auction_id": auctionID}
	if claims, ok := helpers.ClaimsFrom(c); ok {
		fields["admin_id"] = claims.BidderID()
	}
	helpers.LogSuccess("ApproveAuctionHandler", "auction approved", fields)
}

// StreamAuctionHandler handles GET /auctions/:auction_id/stream
func (h *AuctionHandler) StreamAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	if h.stream == nil {
		utils.JSONError(c, http.StatusNotImplemented, biddingerrors.ErrUnavailable, "live bid stream is disabled")
		return
	}

	if _, err := h.service.GetAuction(c.Request.Context(), auctionID); err != nil {
		helpers.RespondError(c, err)
		return
	}

	// the upgrade writes its own error response on failure
	if err := h.stream.ServeAuction(c.Writer, c.Request, auctionID); err != nil {
		utils.Warn("StreamAuctionHandler: stream not established", map[string]any{"auction_id": auctionID, "error": err.Error()})
	}
}

// HealthHandler handles GET /health by pinging every named dependency
func HealthHandler(checks map[string]Pinger, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		results := make(map[string]string, len(checks))
		healthy := true
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				results[name] = err.Error()
				healthy = false
				continue
			}
			results[name] = "ok"
		}

		if !healthy {
			c.Header("Retry-After", "5")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  http.StatusServiceUnavailable,
				"message": "degraded",
				"data":    results,
			})
			utils.Warn("HealthHandler: dependency check failed", map[string]any{"checks": results})
			return
		}
		utils.JSONResponse(c, http.StatusOK, results, "ok")
	}
}
