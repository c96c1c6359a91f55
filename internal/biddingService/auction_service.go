package bidding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"pigeon-auction/internal/biddingerrors"
	"pigeon-auction/internal/cache"
	"pigeon-auction/internal/models"
	"pigeon-auction/internal/repository"
	"pigeon-auction/utils"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultAuctionDuration = 7 * 24 * time.Hour
	MinAuctionDuration     = time.Hour
	MaxAuctionDuration     = 30 * 24 * time.Hour

	DefaultPageLimit = 20
	MaxPageLimit     = 100

	// auctionLoadTimeout bounds a shared cache-miss load, which outlives any single caller
	auctionLoadTimeout = 5 * time.Second
)

//go:generate mockgen -source=auction_service.go -destination=mock_auction_cache.go -package=bidding

// AuctionCache is a read-through cache for single auctions
type AuctionCache interface {
	Get(ctx context.Context, id string) (models.Auction, error)
	Set(ctx context.Context, auction models.Auction) error
	Invalidate(ctx context.Context, id string) error
}

// AuctionService manages the auction catalog: creation, listing, lookup and approval
type AuctionService struct {
	repo  repository.AuctionDB
	cache AuctionCache
	group singleflight.Group
	now   func() time.Time
}

// NewAuctionService creates an AuctionService. cache may be nil.
func NewAuctionService(repo repository.AuctionDB, auctionCache AuctionCache) *AuctionService {
	return &AuctionService{
		repo:  repo,
		cache: auctionCache,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateAuction validates seller input and stores a new pending, unapproved auction
func (s *AuctionService) CreateAuction(ctx context.Context, sellerID string, in models.NewAuction) (models.Auction, error) {
	if err := validateNewAuction(sellerID, in); err != nil {
		return models.Auction{}, err
	}

	duration := in.Duration
	if duration == 0 {
		duration = DefaultAuctionDuration
	}
	now := s.now()

	auction := models.Auction{
		AuctionID:     utils.GenerateID(),
		SellerID:      sellerID,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Category:      in.Category,
		StartingPrice: in.StartingPrice,
		CurrentPrice:  in.StartingPrice,
		BuyNowPrice:   in.BuyNowPrice,
		ReservePrice:  in.ReservePrice,
		StartTime:     now,
		EndTime:       now.Add(duration),
		Status:        models.StatusPending,
		IsApproved:    false,
		CreatedAt:     now,
	}

	if err := s.repo.CreateAuction(ctx, auction); err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to create auction for seller %s: %w", sellerID, err)
	}
	return auction, nil
}

func validateNewAuction(sellerID string, in models.NewAuction) error {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

	switch {
	case sellerID == "":
		return fmt.Errorf("service: %w - missing seller", biddingerrors.ErrInvalidAuction)
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("service: %w - title is required", biddingerrors.ErrInvalidAuction)
	case !finite(in.StartingPrice) || in.StartingPrice < 0:
		return fmt.Errorf("service: %w - starting price must be zero or more", biddingerrors.ErrInvalidAuction)
	case in.BuyNowPrice != nil && (!finite(*in.BuyNowPrice) || *in.BuyNowPrice <= in.StartingPrice):
		return fmt.Errorf("service: %w - buy now price must exceed the starting price", biddingerrors.ErrInvalidAuction)
	case in.ReservePrice != nil && (!finite(*in.ReservePrice) || *in.ReservePrice < in.StartingPrice):
		return fmt.Errorf("service: %w - reserve price must not be below the starting price", biddingerrors.ErrInvalidAuction)
	case in.Duration != 0 && (in.Duration < MinAuctionDuration || in.Duration > MaxAuctionDuration):
		return fmt.Errorf("service: %w - duration must be between %s and %s", biddingerrors.ErrInvalidAuction, MinAuctionDuration, MaxAuctionDuration)
	}
	return nil
}

// ListAuctions returns one page of approved auctions
func (s *AuctionService) ListAuctions(ctx context.Context, q models.AuctionQuery) (models.AuctionPage, error) {
	q = normalizeQuery(q)

	auctions, total, err := s.repo.ListAuctions(ctx, q)
	if err != nil {
		return models.AuctionPage{}, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	if auctions == nil {
		auctions = []models.Auction{}
	}

	totalPages := (total + q.Limit - 1) / q.Limit
	return models.AuctionPage{
		Auctions:   auctions,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    q.Page < totalPages,
		HasPrev:    q.Page > 1,
	}, nil
}

func normalizeQuery(q models.AuctionQuery) models.AuctionQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	switch q.SortBy {
	case models.SortNewest, models.SortEndingSoon, models.SortPriceAsc, models.SortPriceDesc:
	default:
		q.SortBy = models.SortNewest
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// GetAuction returns an auction, served from the cache when possible.
// Concurrent misses for the same id share one storage read.
func (s *AuctionService) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrAuctionNotFound)
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, auctionID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			utils.Warn("GetAuction: cache read failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		}
	}

	v, err, _ := s.group.Do(auctionID, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auctionLoadTimeout)
		defer cancel()

		auction, err := s.repo.GetAuction(loadCtx, auctionID)
		if err != nil {
			return models.Auction{}, err
		}
		if s.cache != nil {
			if err := s.cache.Set(loadCtx, auction); err != nil {
				utils.Warn("GetAuction: cache write failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
			}
		}
		return auction, nil
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return v.(models.Auction), nil
}

// ApproveAuction activates a pending auction so it can take bids
func (s *AuctionService) ApproveAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	auction, err := s.repo.ApproveAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to approve auction %s: %w", auctionID, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, auctionID); err != nil {
			utils.Warn("ApproveAuction: cache invalidation failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		}
	}
	return auction, nil
}

// Ping checks the backing store
func (s *AuctionService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
