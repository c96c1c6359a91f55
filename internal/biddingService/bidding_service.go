package bidding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"pigeon-auction/internal/biddingerrors"
	"pigeon-auction/internal/events"
	"pigeon-auction/internal/models"
	"pigeon-auction/internal/repository"
	"pigeon-auction/utils"
)

const (
	defaultMaxAttempts    = 3
	defaultStorageTimeout = 2 * time.Second
)

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo           repository.AuctionDB
	publisher      events.Publisher
	now            func() time.Time
	maxAttempts    int
	storageTimeout time.Duration
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithClock overrides the time source used for expiry checks and bid timestamps
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// WithMaxAttempts sets how many times a conflicting or failed write is attempted
func WithMaxAttempts(n int) Option {
	return func(s *BiddingService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithStorageTimeout bounds each storage round trip
func WithStorageTimeout(d time.Duration) Option {
	return func(s *BiddingService) { s.storageTimeout = d }
}

// WithPublisher sets where accepted bids are announced
func WithPublisher(p events.Publisher) Option {
	return func(s *BiddingService) {
		if p != nil {
			s.publisher = p
		}
	}
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:           repo,
		publisher:      events.Nop{},
		now:            func() time.Time { return time.Now().UTC() },
		maxAttempts:    defaultMaxAttempts,
		storageTimeout: defaultStorageTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitBid validates a bid against a fresh snapshot of the auction and, if
// admissible, records it as the new leading bid. Lost compare-and-swap races
// and storage faults are retried up to the configured number of attempts.
func (s *BiddingService) SubmitBid(ctx context.Context, auctionID, bidderID string, amount float64) (models.Bid, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return models.Bid{}, fmt.Errorf("service: %w - amount must be a finite number greater than zero", biddingerrors.ErrInvalidAmount)
	}
	if bidderID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - missing bidderID", biddingerrors.ErrInvalidBid)
	}
	if auctionID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrAuctionNotFound)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.Bid{}, fmt.Errorf("service: %w - request cancelled: %w", biddingerrors.ErrUnavailable, err)
		}

		bid, previousPrice, err := s.attemptBid(ctx, auctionID, bidderID, amount)
		if err == nil {
			s.announce(ctx, bid, previousPrice)
			return bid, nil
		}
		if !biddingerrors.IsTransient(err) {
			return models.Bid{}, err
		}

		lastErr = err
		utils.Warn("SubmitBid: transient failure, retrying", map[string]any{
			"auction_id": auctionID,
			"bidder_id":  bidderID,
			"amount":     amount,
			"attempt":    attempt,
			"error":      err.Error(),
		})
	}

	if errors.Is(lastErr, biddingerrors.ErrConflict) {
		return models.Bid{}, fmt.Errorf("service: %w - gave up after %d attempts: %w", biddingerrors.ErrConflict, s.maxAttempts, lastErr)
	}
	return models.Bid{}, fmt.Errorf("service: %w - gave up after %d attempts: %w", biddingerrors.ErrUnavailable, s.maxAttempts, lastErr)
}

// attemptBid runs one read-check-write cycle and returns the accepted bid and the price it replaced
func (s *BiddingService) attemptBid(ctx context.Context, auctionID, bidderID string, amount float64) (models.Bid, float64, error) {
	snapshot, err := s.loadSnapshot(ctx, auctionID)
	if err != nil {
		return models.Bid{}, 0, err
	}

	now := s.now()
	if err := checkBid(snapshot, amount, now); err != nil {
		return models.Bid{}, 0, err
	}

	bid := models.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: now,
		IsWinning: true,
	}

	observed := snapshot.Auction.CurrentPrice
	if err := s.acceptBid(ctx, bid, observed); err != nil {
		return models.Bid{}, 0, err
	}
	return bid, observed, nil
}

// checkBid applies the admission rules in order; the first failing rule decides the outcome.
func checkBid(snapshot models.AuctionSnapshot, amount float64, now time.Time) error {
	auction := snapshot.Auction
	highest := snapshot.HighestBid

	if !auction.AcceptsBids() {
		return fmt.Errorf("service: %w - status %s, approved %t", biddingerrors.ErrAuctionNotActive, auction.Status, auction.IsApproved)
	}
	if now.After(auction.EndTime) {
		return fmt.Errorf("service: %w - ended at %s", biddingerrors.ErrAuctionExpired, auction.EndTime.UTC().Format(time.RFC3339))
	}

	// A tie with the price set by the leading bid fails against that bid, not against the price floor.
	tiesLeader := highest != nil && amount == highest.Amount && highest.Amount == auction.CurrentPrice
	if amount < auction.CurrentPrice || (amount == auction.CurrentPrice && !tiesLeader) {
		return fmt.Errorf("service: %w - current price is %.2f", biddingerrors.ErrAmountTooLow, auction.CurrentPrice)
	}
	if highest != nil && amount <= highest.Amount {
		return fmt.Errorf("service: %w - highest bid is %.2f", biddingerrors.ErrAmountNotHighest, highest.Amount)
	}
	return nil
}

func (s *BiddingService) loadSnapshot(ctx context.Context, auctionID string) (models.AuctionSnapshot, error) {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()

	snapshot, err := s.repo.LoadSnapshot(ctx, auctionID)
	if err != nil {
		return models.AuctionSnapshot{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, asUnavailable(ctx, err))
	}
	return snapshot, nil
}

func (s *BiddingService) acceptBid(ctx context.Context, bid models.Bid, observed float64) error {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()

	if err := s.repo.AcceptBid(ctx, bid, observed); err != nil {
		return fmt.Errorf("service: failed to record bid for auction %s by bidder %s: %w", bid.AuctionID, bid.BidderID, asUnavailable(ctx, err))
	}
	return nil
}

func (s *BiddingService) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storageTimeout)
}

// asUnavailable tags errors caused by an expired or cancelled storage context so they are retried.
func asUnavailable(ctx context.Context, err error) error {
	if biddingerrors.IsTransient(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%w: %w", biddingerrors.ErrUnavailable, err)
	}
	return err
}

func (s *BiddingService) announce(ctx context.Context, bid models.Bid, previousPrice float64) {
	evt := models.BidAccepted{
		AuctionID:     bid.AuctionID,
		BidID:         bid.BidID,
		BidderID:      bid.BidderID,
		Amount:        bid.Amount,
		PreviousPrice: previousPrice,
		AcceptedAt:    bid.CreatedAt,
	}
	if err := s.publisher.PublishBidAccepted(context.WithoutCancel(ctx), evt); err != nil {
		utils.Error("SubmitBid: failed to publish accepted bid", map[string]any{
			"auction_id": bid.AuctionID,
			"bid_id":     bid.BidID,
			"error":      err.Error(),
		})
	}
}

// GetBidsForAuction returns all bids for a specific auction, highest first
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	return bids, nil
}

// GetWinningBid returns the leading bid for a specific auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	if auctionID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	winningBid, err := s.repo.GetWinningBid(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}

	return winningBid, nil
}

// GetAuctionsByBidder returns all auctions a bidder has placed bids on
func (s *BiddingService) GetAuctionsByBidder(ctx context.Context, bidderID string) ([]models.Auction, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty bidder ID", biddingerrors.ErrInvalidBid)
	}

	auctions, err := s.repo.GetAuctionsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for bidder %s: %w", bidderID, err)
	}

	return auctions, nil
}

// GetBidders returns one summary per distinct bidder on an auction, highest offer first
func (s *BiddingService) GetBidders(ctx context.Context, auctionID string) ([]models.BidderSummary, error) {
	bids, err := s.GetBidsForAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	byBidder := make(map[string]*models.BidderSummary)
	summaries := make([]*models.BidderSummary, 0)
	for _, b := range bids {
		sum, ok := byBidder[b.BidderID]
		if !ok {
			sum = &models.BidderSummary{BidderID: b.BidderID}
			byBidder[b.BidderID] = sum
			summaries = append(summaries, sum)
		}
		sum.BidCount++
		if b.Amount > sum.HighestAmount {
			sum.HighestAmount = b.Amount
		}
		if b.CreatedAt.After(sum.LastBidAt) {
			sum.LastBidAt = b.CreatedAt
		}
	}

	result := make([]models.BidderSummary, 0, len(summaries))
	for _, sum := range summaries {
		result = append(result, *sum)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].HighestAmount > result[j].HighestAmount })
	return result, nil
}
