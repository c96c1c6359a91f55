package repository

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"pigeon-auction/internal/biddingerrors"
	model "pigeon-auction/internal/models"
)

// AuctionDB defines the auction and bid storage interface
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context, query model.AuctionQuery) ([]model.Auction, int, error)
	ApproveAuction(ctx context.Context, auctionID string) (model.Auction, error)

	// LoadSnapshot reads the auction and its highest bid as one consistent view.
	LoadSnapshot(ctx context.Context, auctionID string) (model.AuctionSnapshot, error)
	// AcceptBid atomically inserts bid as the only winning bid and moves the
	// auction's current price to bid.Amount, provided the stored price still
	// equals observedPrice. Otherwise it returns ErrConflict.
	AcceptBid(ctx context.Context, bid model.Bid, observedPrice float64) error

	GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error)

	Ping(ctx context.Context) error
}

var (
	_ AuctionDB = (*MemoryRepo)(nil)
	_ AuctionDB = (*PostgresRepo)(nil)
)

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu             sync.RWMutex
	auctions       map[string]model.Auction // key: auctionID -> value: auction
	bids           map[string][]model.Bid   // key: auctionID -> value: bids in insertion order
	bidderAuctions map[string][]string      // key: bidderID -> value: auctionIDs bidder has bid on
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:       make(map[string]model.Auction),
		bids:           make(map[string][]model.Bid),
		bidderAuctions: make(map[string][]string),
	}
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.auctions[auction.AuctionID]; exists {
		return fmt.Errorf("create auction %s: %w - duplicate id", auction.AuctionID, biddingerrors.ErrInvalidAuction)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns an auction by id
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// ListAuctions returns one page of approved auctions matching query and the total match count
func (r *MemoryRepo) ListAuctions(_ context.Context, query model.AuctionQuery) ([]model.Auction, int, error) {
	r.mu.RLock()
	matched := make([]model.Auction, 0, len(r.auctions))
	search := strings.ToLower(query.Search)
	for _, a := range r.auctions {
		if !a.IsApproved {
			continue
		}
		if query.Category != "" && a.Category != query.Category {
			continue
		}
		if query.Status != "" && a.Status != query.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(a.Title), search) &&
			!strings.Contains(strings.ToLower(a.Description), search) {
			continue
		}
		matched = append(matched, a)
	}
	r.mu.RUnlock()

	sortAuctions(matched, query.SortBy)

	total := len(matched)
	start := query.Offset()
	if start >= total {
		return []model.Auction{}, total, nil
	}
	end := start + query.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// ApproveAuction moves a pending auction to ACTIVE and marks it approved
func (r *MemoryRepo) ApproveAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("approve auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if auction.Status != model.StatusPending {
		return model.Auction{}, fmt.Errorf("approve auction %s: %w - status is %s", auctionID, biddingerrors.ErrAuctionNotActive, auction.Status)
	}
	auction.Status = model.StatusActive
	auction.IsApproved = true
	r.auctions[auctionID] = auction
	return auction, nil
}

// LoadSnapshot returns the auction together with its highest bid
func (r *MemoryRepo) LoadSnapshot(_ context.Context, auctionID string) (model.AuctionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.AuctionSnapshot{}, fmt.Errorf("load snapshot %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}

	snapshot := model.AuctionSnapshot{Auction: auction}
	if highest, ok := highestBid(r.bids[auctionID]); ok {
		snapshot.HighestBid = &highest
	}
	return snapshot, nil
}

// AcceptBid records bid as the new leading bid if the auction price is still observedPrice
func (r *MemoryRepo) AcceptBid(_ context.Context, bid model.Bid, observedPrice float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[bid.AuctionID]
	if !ok {
		return fmt.Errorf("accept bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if auction.CurrentPrice != observedPrice {
		return fmt.Errorf("accept bid for auction %s: %w - price moved from %.2f to %.2f",
			bid.AuctionID, biddingerrors.ErrConflict, observedPrice, auction.CurrentPrice)
	}

	existing := r.bids[bid.AuctionID]
	for i := range existing {
		existing[i].IsWinning = false
	}
	bid.IsWinning = true
	r.bids[bid.AuctionID] = append(existing, bid)

	auction.CurrentPrice = bid.Amount
	r.auctions[bid.AuctionID] = auction

	for _, id := range r.bidderAuctions[bid.BidderID] {
		if id == bid.AuctionID {
			return nil
		}
	}
	r.bidderAuctions[bid.BidderID] = append(r.bidderAuctions[bid.BidderID], bid.AuctionID)

	return nil
}

// GetBidsByAuction returns all bids for an auction, highest first
func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}

	bids := append([]model.Bid{}, r.bids[auctionID]...)
	model.SortBids(bids)
	return bids, nil
}

// GetWinningBid returns the bid currently flagged as winning
func (r *MemoryRepo) GetWinningBid(_ context.Context, auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	for _, b := range r.bids[auctionID] {
		if b.IsWinning {
			return b, nil
		}
	}
	return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
}

// GetAuctionsByBidder returns all auctions a bidder has bid on
func (r *MemoryRepo) GetAuctionsByBidder(_ context.Context, bidderID string) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctionIDs, ok := r.bidderAuctions[bidderID]
	if !ok || len(auctionIDs) == 0 {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, biddingerrors.ErrBidderNoBids)
	}

	auctions := make([]model.Auction, 0, len(auctionIDs))
	for _, id := range auctionIDs {
		if auction, exists := r.auctions[id]; exists {
			auctions = append(auctions, auction)
		}
	}
	return auctions, nil
}

// Ping always succeeds for the in-memory store
func (r *MemoryRepo) Ping(context.Context) error { return nil }

// AddAuction inserts or replaces an auction without validation. Used for seeding and tests.
func (r *MemoryRepo) AddAuction(auction model.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[auction.AuctionID] = auction
}

func highestBid(bids []model.Bid) (model.Bid, bool) {
	if len(bids) == 0 {
		return model.Bid{}, false
	}
	highest := bids[0]
	for _, b := range bids[1:] {
		if b.Outranks(highest) {
			highest = b
		}
	}
	return highest, true
}

func sortAuctions(auctions []model.Auction, sortBy string) {
	var less func(a, b model.Auction) bool
	switch sortBy {
	case model.SortEndingSoon:
		less = func(a, b model.Auction) bool { return a.EndTime.Before(b.EndTime) }
	case model.SortPriceAsc:
		less = func(a, b model.Auction) bool { return a.CurrentPrice < b.CurrentPrice }
	case model.SortPriceDesc:
		less = func(a, b model.Auction) bool { return a.CurrentPrice > b.CurrentPrice }
	default:
		less = func(a, b model.Auction) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
	sort.SliceStable(auctions, func(i, j int) bool {
		if less(auctions[i], auctions[j]) {
			return true
		}
		if less(auctions[j], auctions[i]) {
			return false
		}
		return auctions[i].AuctionID < auctions[j].AuctionID
	})
}
