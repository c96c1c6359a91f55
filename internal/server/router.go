package server

import (
	"time"

	handler "pigeon-auction/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// RouteLimits configures per-route throttling
type RouteLimits struct {
	BidLimit  int
	BidWindow time.Duration
	APILimit  int
	APIWindow time.Duration
}

// Deps is everything the router needs to serve requests
type Deps struct {
	Bidding      handler.BiddingServiceInterface
	Auctions     handler.AuctionServiceInterface
	Stream       handler.StreamServer // optional
	Verifier     TokenVerifier
	Limiter      Limiter
	Limits       RouteLimits
	HealthChecks map[string]handler.Pinger
}

const healthTimeout = 2 * time.Second

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Deps) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestIDMiddleware)     // tag requests before anything logs
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(deps.Bidding)
	auctionHandler := handler.NewAuctionHandler(deps.Auctions, deps.Stream)

	requireBidder := RequireBidder(deps.Verifier)
	apiLimit := RateLimit(deps.Limiter, "api", ClientIPKey, deps.Limits.APILimit, deps.Limits.APIWindow)
	bidLimit := RateLimit(deps.Limiter, "bid", BidderKey, deps.Limits.BidLimit, deps.Limits.BidWindow)

	router.GET("/health", handler.HealthHandler(deps.HealthChecks, healthTimeout))

	bids := router.Group("/bids")
	{
		bids.POST("", requireBidder, RequireVerifiedPhone, bidLimit, biddingHandler.SubmitBidHandler)
	}

	auctions := router.Group("/auctions")
	{
		auctions.GET("", apiLimit, auctionHandler.ListAuctionsHandler)
		auctions.POST("", apiLimit, requireBidder, auctionHandler.CreateAuctionHandler)
		auctions.GET("/:auction_id", apiLimit, auctionHandler.GetAuctionHandler)
		auctions.GET("/:auction_id/bids", apiLimit, biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", apiLimit, biddingHandler.GetWinningBidHandler)
		auctions.GET("/:auction_id/stream", apiLimit, auctionHandler.StreamAuctionHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/auctions", apiLimit, biddingHandler.GetAuctionsByBidderHandler)
	}

	admin := router.Group("/admin", requireBidder, RequireAdmin)
	{
		admin.POST("/auctions/:auction_id/approve", auctionHandler.ApproveAuctionHandler)
		admin.GET("/auctions/:auction_id/bidders", biddingHandler.GetBiddersHandler)
	}

	return router
}
