package cache

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"pigeon-auction/internal/events"
	"pigeon-auction/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when an auction is not cached
var ErrCacheMiss = errors.New("cache miss")

//go:embed scripts/fill_auction.lua
var fillAuctionLua string

//go:embed scripts/bid_accepted.lua
var bidAcceptedLua string

const defaultAuctionTTL = 30 * time.Second

func auctionKey(id string) string { return "auction:" + id }

// auctionFloorKey holds the highest price seen in a BidAccepted event.
// Fills carrying a lower price are stale reads and are not stored.
func auctionFloorKey(id string) string { return "auction:" + id + ":floor" }

func formatPrice(p float64) string { return strconv.FormatFloat(p, 'g', -1, 64) }

// AuctionCache stores JSON-encoded auctions under auction:{id} with a TTL.
type AuctionCache struct {
	rdb         *redis.Client
	ttl         time.Duration
	fill        *redis.Script
	bidAccepted *redis.Script
}

// NewAuctionCache creates a cache on top of c. A non-positive ttl uses the default.
func NewAuctionCache(c *Client, ttl time.Duration) *AuctionCache {
	if ttl <= 0 {
		ttl = defaultAuctionTTL
	}
	return &AuctionCache{
		rdb:         c.Underlying(),
		ttl:         ttl,
		fill:        redis.NewScript(fillAuctionLua),
		bidAccepted: redis.NewScript(bidAcceptedLua),
	}
}

// Get returns the cached auction or ErrCacheMiss
func (ac *AuctionCache) Get(ctx context.Context, id string) (models.Auction, error) {
	data, err := ac.rdb.Get(ctx, auctionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Auction{}, ErrCacheMiss
	}
	if err != nil {
		return models.Auction{}, fmt.Errorf("redis: get auction %s: %w", id, err)
	}

	var auction models.Auction
	if err := json.Unmarshal(data, &auction); err != nil {
		return models.Auction{}, fmt.Errorf("redis: unmarshal auction %s: %w", id, err)
	}
	return auction, nil
}

// Set caches auction until the TTL expires. It is a no-op when a bid above
// auction.CurrentPrice has been accepted since the auction was read.
func (ac *AuctionCache) Set(ctx context.Context, auction models.Auction) error {
	data, err := json.Marshal(auction)
	if err != nil {
		return fmt.Errorf("redis: marshal auction %s: %w", auction.AuctionID, err)
	}
	keys := []string{auctionKey(auction.AuctionID), auctionFloorKey(auction.AuctionID)}
	err = ac.fill.Run(ctx, ac.rdb, keys, data, formatPrice(auction.CurrentPrice), ac.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis: set auction %s: %w", auction.AuctionID, err)
	}
	return nil
}

// Invalidate drops the cached auction
func (ac *AuctionCache) Invalidate(ctx context.Context, id string) error {
	if err := ac.rdb.Del(ctx, auctionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate auction %s: %w", id, err)
	}
	return nil
}

// PublishBidAccepted invalidates the auction whose price just moved and
// raises its price floor so an in-flight fill cannot restore the old price.
func (ac *AuctionCache) PublishBidAccepted(ctx context.Context, evt models.BidAccepted) error {
	keys := []string{auctionKey(evt.AuctionID), auctionFloorKey(evt.AuctionID)}
	if err := ac.bidAccepted.Run(ctx, ac.rdb, keys, formatPrice(evt.Amount), ac.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis: invalidate auction %s: %w", evt.AuctionID, err)
	}
	return nil
}

var _ events.Publisher = (*AuctionCache)(nil)
