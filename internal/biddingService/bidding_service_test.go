package bidding

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"pigeon-auction/internal/biddingerrors"
	"pigeon-auction/internal/events"
	model "pigeon-auction/internal/models"
	"pigeon-auction/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func activeAuction(id string, price float64) model.Auction {
	return model.Auction{
		AuctionID:     id,
		SellerID:      "seller1",
		Title:         "Racing hen",
		StartingPrice: price,
		CurrentPrice:  price,
		StartTime:     fixedNow.Add(-time.Hour),
		EndTime:       fixedNow.Add(time.Hour),
		Status:        model.StatusActive,
		IsApproved:    true,
		CreatedAt:     fixedNow.Add(-time.Hour),
	}
}

func snapshotOf(a model.Auction, highest *model.Bid) model.AuctionSnapshot {
	return model.AuctionSnapshot{Auction: a, HighestBid: highest}
}

// Tests SubmitBid admission order and retry behaviour
func TestBiddingService_SubmitBid(t *testing.T) {
	leader := &model.Bid{BidID: "bid1", AuctionID: "auction1", BidderID: "bob", Amount: 200, IsWinning: true}

	withPrice := func(price float64) model.Auction {
		a := activeAuction("auction1", 100)
		a.CurrentPrice = price
		return a
	}
	pending := activeAuction("auction1", 100)
	pending.Status = model.StatusPending
	unapproved := activeAuction("auction1", 100)
	unapproved.IsApproved = false
	expired := activeAuction("auction1", 100)
	expired.EndTime = fixedNow.Add(-time.Second)
	// an inactive auction that is also past its end reports inactivity first
	endedAndExpired := expired
	endedAndExpired.Status = model.StatusEnded

	tests := []struct {
		name          string
		auctionID     string
		bidderID      string
		amount        float64
		mockSetup     func(repo *repository.MockAuctionDB, pub *events.MockPublisher)
		expectedError error
	}{
		{
			name:      "valid_first_bid",
			auctionID: "auction1",
			bidderID:  "alice",
			amount:    150,
			mockSetup: func(repo *repository.MockAuctionDB, pub *events.MockPublisher) {
				repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(withPrice(100), nil), nil)
				repo.EXPECT().AcceptBid(gomock.Any(), gomock.Any(), 100.0).Return(nil)
				pub.EXPECT().PublishBidAccepted(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, evt model.BidAccepted) error {
						require.Equal(t, "auction1", evt.AuctionID)
						require.Equal(t, "alice", evt.BidderID)
						require.Equal(t, 150.0, evt.Amount)
						require.Equal(t, 100.0, evt.PreviousPrice)
						return nil
					})
			},
		},
		{
			name:      "zero_amount",
			auctionID: "auction1", bidderID: "alice", amount: 0,
			mockSetup:     func(*repository.MockAuctionDB, *events.MockPublisher) {},
			expectedError: biddingerrors.ErrInvalidAmount,
		},
		{
			name:      "negative_amount",
			auctionID: "auction1", bidderID: "alice", amount: -50,
			mockSetup:     func(*repository.MockAuctionDB, *events.MockPublisher) {},
			expectedError: biddingerrors.ErrInvalidAmount,
		},
		{
			name:      "nan_amount",
			auctionID: "auction1", bidderID: "alice", amount: math.NaN(),
			mockSetup:     func(*repository.MockAuctionDB, *events.MockPublisher) {},
			expectedError: biddingerrors.ErrInvalidAmount,
		},
		{
			name:      "infinite_amount",
			auctionID: "auction1", bidderID: "alice", amount: math.Inf(1),
			mockSetup:     func(*repository.MockAuctionDB, *events.MockPublisher) {},
			expectedError: biddingerrors.ErrInvalidAmount,
		},
		{
			name:      "empty_bidderID",
			auctionID: "auction1", bidderID: "", amount: 150,
			mockSetup:     func(*repository.MockAuctionDB, *events.MockPublisher) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:      "empty_auctionID",
			auctionID: "", bidderID: "alice", amount: 150,
			mockSetup:     func(*repository.MockAuctionDB, *events.MockPublisher) {},
			expectedError: biddingerrors.ErrAuctionNotFound,
		},
		{
			name:      "auction_not_found",
			auctionID: "missing", bidderID: "alice", amount: 150,
			mockSetup: func(repo *repository.MockAuctionDB, _ *events.MockPublisher) {
				repo.EXPECT().LoadSnapshot(gomock.Any(), "missing").
					Return(model.AuctionSnapshot{}, biddingerrors.ErrAuctionNotFound)
			},
			expectedError: biddingerrors.ErrAuctionNotFound,
		},
		{
			name:      "pending_auction",
			auctionID: "auction1", bidderID: "alice", amount: 1000,
			mockSetup: func(repo *repository.MockAuctionDB, _ *events.MockPublisher) {
				repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(pending, nil), nil)
			},
			expectedError: biddingerrors.ErrAuctionNotActive,
		},
		{
			name:      "unapproved_auction",
			auctionID: "auction1", bidderID: "alice", amount: 1000,
			mockSetup: func(repo *repository.MockAuctionDB, _ *events.MockPublisher) {
				repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(unapproved, nil), nil)
			},
			expectedError: biddingerrors.ErrAuctionNotActive,
		},
		{
			name:      "inactive_checked_before_expiry",
			auctionID: "auction1", bidderID: "alice", amount: 1000,
			mockSetup: func(repo *repository.MockAuctionDB, _ *events.MockPublisher) {
				repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(endedAndExpired, nil), nil)
			},
			expectedError: biddingerrors.ErrAuctionNotActive,
		},
		{
			name:      "expired_auction",
			auctionID: "auction1", bidderID: "alice", amount: 1000,
			mockSetup: func(repo *repository.MockAuctionDB, _ *events.MockPublisher) {
				repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(expired, nil), nil)
			},
			expectedError: biddingerrors.ErrAuctionExpired,
		},
		{
			name:      "amount_equals_current_price",
			auctionID: "auction1", bidderID: "alice", amount: 100,
			mockSetup: func(repo *repository.MockAuctionDB, _ *events.MockPublisher) {
				repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(withPrice(100), nil), nil)
			},
			expectedError: biddingerrors.ErrAmountTooLow,
		},
		{
			name:      "amount_below_current_price",
			auctionID: "auction1", bidderID: "alice", amount: 120,
			mockSetup: func(repo *repository.MockAuctionDB, _ *events.MockPublisher) {
				repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(withPrice(150), nil), nil)
			},
			expectedError: biddingerrors.ErrAmountTooLow,
		},
		{
			name:      "amount_ties_leading_bid",
			auctionID: "auction1", bidderID: "alice", amount: 200,
			mockSetup: func(repo *repository.MockAuctionDB, _ *events.MockPublisher) {
				repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(withPrice(200), leader), nil)
			},
			expectedError: biddingerrors.ErrAmountNotHighest,
		},
		{
			name:      "amount_above_price_below_leading_bid",
			auctionID: "auction1", bidderID: "alice", amount: 180,
			mockSetup: func(repo *repository.MockAuctionDB, _ *events.MockPublisher) {
				// price lags the leading bid; ranking follows the bid
				repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(withPrice(150), leader), nil)
			},
			expectedError: biddingerrors.ErrAmountNotHighest,
		},
		{
			name:      "conflict_then_success",
			auctionID: "auction1", bidderID: "alice", amount: 300,
			mockSetup: func(repo *repository.MockAuctionDB, pub *events.MockPublisher) {
				gomock.InOrder(
					repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(withPrice(100), nil), nil),
					repo.EXPECT().AcceptBid(gomock.Any(), gomock.Any(), 100.0).Return(biddingerrors.ErrConflict),
					repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(withPrice(200), leader), nil),
					repo.EXPECT().AcceptBid(gomock.Any(), gomock.Any(), 200.0).Return(biddingerrors.ErrConflict),
					repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(withPrice(250), nil), nil),
					repo.EXPECT().AcceptBid(gomock.Any(), gomock.Any(), 250.0).Return(nil),
				)
				pub.EXPECT().PublishBidAccepted(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name:      "conflict_retry_rejected_by_fresh_snapshot",
			auctionID: "auction1", bidderID: "alice", amount: 150,
			mockSetup: func(repo *repository.MockAuctionDB, _ *events.MockPublisher) {
				gomock.InOrder(
					repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(withPrice(100), nil), nil),
					repo.EXPECT().AcceptBid(gomock.Any(), gomock.Any(), 100.0).Return(biddingerrors.ErrConflict),
					repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(withPrice(200), leader), nil),
				)
			},
			expectedError: biddingerrors.ErrAmountTooLow,
		},
		{
			name:      "conflict_exhausted",
			auctionID: "auction1", bidderID: "alice", amount: 150,
			mockSetup: func(repo *repository.MockAuctionDB, _ *events.MockPublisher) {
				repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(withPrice(100), nil), nil).Times(3)
				repo.EXPECT().AcceptBid(gomock.Any(), gomock.Any(), 100.0).Return(biddingerrors.ErrConflict).Times(3)
			},
			expectedError: biddingerrors.ErrConflict,
		},
		{
			name:      "storage_unavailable_exhausted",
			auctionID: "auction1", bidderID: "alice", amount: 150,
			mockSetup: func(repo *repository.MockAuctionDB, _ *events.MockPublisher) {
				repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").
					Return(model.AuctionSnapshot{}, biddingerrors.ErrUnavailable).Times(3)
			},
			expectedError: biddingerrors.ErrUnavailable,
		},
		{
			name:      "publish_failure_does_not_fail_bid",
			auctionID: "auction1", bidderID: "alice", amount: 150,
			mockSetup: func(repo *repository.MockAuctionDB, pub *events.MockPublisher) {
				repo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(withPrice(100), nil), nil)
				repo.EXPECT().AcceptBid(gomock.Any(), gomock.Any(), 100.0).Return(nil)
				pub.EXPECT().PublishBidAccepted(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
			},
		},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run tests concurrently

			ctrl := gomock.NewController(t)
			mockRepo := repository.NewMockAuctionDB(ctrl)
			mockPub := events.NewMockPublisher(ctrl)
			service := NewBiddingService(mockRepo, WithClock(fixedClock), WithPublisher(mockPub))

			tc.mockSetup(mockRepo, mockPub)

			bid, err := service.SubmitBid(context.Background(), tc.auctionID, tc.bidderID, tc.amount)

			if tc.expectedError != nil {
				require.Error(t, err)
				require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
				require.Empty(t, bid.BidID)
				return
			}

			require.NoError(t, err)

			// Validate generated BidID
			_, parseErr := uuid.Parse(bid.BidID)
			require.NoError(t, parseErr, "BidID should be a valid UUID")

			require.Equal(t, tc.auctionID, bid.AuctionID)
			require.Equal(t, tc.bidderID, bid.BidderID)
			require.Equal(t, tc.amount, bid.Amount)
			require.True(t, bid.IsWinning)
			require.Equal(t, fixedNow, bid.CreatedAt)
		})
	}
}

func TestBiddingService_SubmitBid_NonTransientErrorIsNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewBiddingService(mockRepo, WithClock(fixedClock))

	boom := errors.New("constraint violated")
	mockRepo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(activeAuction("auction1", 100), nil), nil)
	mockRepo.EXPECT().AcceptBid(gomock.Any(), gomock.Any(), 100.0).Return(boom)

	_, err := service.SubmitBid(context.Background(), "auction1", "alice", 150)
	require.ErrorIs(t, err, boom)
	require.False(t, biddingerrors.IsTransient(err))
}

func TestBiddingService_SubmitBid_StorageTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewBiddingService(mockRepo,
		WithClock(fixedClock),
		WithMaxAttempts(2),
		WithStorageTimeout(20*time.Millisecond),
	)

	mockRepo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").
		DoAndReturn(func(ctx context.Context, _ string) (model.AuctionSnapshot, error) {
			<-ctx.Done()
			return model.AuctionSnapshot{}, ctx.Err()
		}).Times(2)

	start := time.Now()
	_, err := service.SubmitBid(context.Background(), "auction1", "alice", 150)
	require.ErrorIs(t, err, biddingerrors.ErrUnavailable)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestBiddingService_SubmitBid_CancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewBiddingService(mockRepo, WithClock(fixedClock))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.SubmitBid(ctx, "auction1", "alice", 150)
	require.ErrorIs(t, err, biddingerrors.ErrUnavailable)
}

func TestBiddingService_SubmitBid_CancelledDuringWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewBiddingService(mockRepo, WithClock(fixedClock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mockRepo.EXPECT().LoadSnapshot(gomock.Any(), "auction1").Return(snapshotOf(activeAuction("auction1", 100), nil), nil)
	mockRepo.EXPECT().AcceptBid(gomock.Any(), gomock.Any(), 100.0).
		DoAndReturn(func(context.Context, model.Bid, float64) error {
			cancel()
			return context.Canceled
		})

	_, err := service.SubmitBid(ctx, "auction1", "alice", 150)
	require.ErrorIs(t, err, biddingerrors.ErrUnavailable)
}

// Tests GetBidsForAuction
func TestBiddingService_GetBidsForAuction(t *testing.T) {
	bidsExample := []model.Bid{
		{BidID: "bid2", AuctionID: "auction1", BidderID: "bob", Amount: 150, CreatedAt: fixedNow.Add(time.Second), IsWinning: true},
		{BidID: "bid1", AuctionID: "auction1", BidderID: "alice", Amount: 100, CreatedAt: fixedNow},
	}

	tests := []struct {
		name          string
		auctionID     string
		mockSetup     func(repo *repository.MockAuctionDB)
		expectedError error
		expectedBids  []model.Bid
	}{
		{
			name:      "auction_with_bids",
			auctionID: "auction1",
			mockSetup: func(repo *repository.MockAuctionDB) {
				repo.EXPECT().GetBidsByAuction(gomock.Any(), "auction1").Return(bidsExample, nil)
			},
			expectedBids: bidsExample,
		},
		{
			name:      "auction_without_bids",
			auctionID: "auction2",
			mockSetup: func(repo *repository.MockAuctionDB) {
				repo.EXPECT().GetBidsByAuction(gomock.Any(), "auction2").Return([]model.Bid{}, nil)
			},
			expectedBids: []model.Bid{},
		},
		{
			name:          "empty_auctionID",
			auctionID:     "",
			mockSetup:     func(*repository.MockAuctionDB) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:      "unknown_auction",
			auctionID: "missing",
			mockSetup: func(repo *repository.MockAuctionDB) {
				repo.EXPECT().GetBidsByAuction(gomock.Any(), "missing").Return(nil, biddingerrors.ErrAuctionNotFound)
			},
			expectedError: biddingerrors.ErrAuctionNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockRepo := repository.NewMockAuctionDB(ctrl)
			service := NewBiddingService(mockRepo)
			tc.mockSetup(mockRepo)

			bids, err := service.GetBidsForAuction(context.Background(), tc.auctionID)
			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectedBids, bids)
		})
	}
}

// Tests GetWinningBid
func TestBiddingService_GetWinningBid(t *testing.T) {
	winner := model.Bid{BidID: "bid2", AuctionID: "auction1", BidderID: "bob", Amount: 150, IsWinning: true}

	tests := []struct {
		name          string
		auctionID     string
		mockSetup     func(repo *repository.MockAuctionDB)
		expectedError error
	}{
		{
			name:      "has_winner",
			auctionID: "auction1",
			mockSetup: func(repo *repository.MockAuctionDB) {
				repo.EXPECT().GetWinningBid(gomock.Any(), "auction1").Return(winner, nil)
			},
		},
		{
			name:      "no_bids",
			auctionID: "auction2",
			mockSetup: func(repo *repository.MockAuctionDB) {
				repo.EXPECT().GetWinningBid(gomock.Any(), "auction2").Return(model.Bid{}, biddingerrors.ErrNoBids)
			},
			expectedError: biddingerrors.ErrNoBids,
		},
		{
			name:          "empty_auctionID",
			mockSetup:     func(*repository.MockAuctionDB) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockRepo := repository.NewMockAuctionDB(ctrl)
			service := NewBiddingService(mockRepo)
			tc.mockSetup(mockRepo)

			bid, err := service.GetWinningBid(context.Background(), tc.auctionID)
			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, winner, bid)
		})
	}
}

// Tests GetAuctionsByBidder
func TestBiddingService_GetAuctionsByBidder(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewBiddingService(mockRepo)

	auctions := []model.Auction{activeAuction("auction1", 100), activeAuction("auction2", 50)}
	mockRepo.EXPECT().GetAuctionsByBidder(gomock.Any(), "alice").Return(auctions, nil)
	mockRepo.EXPECT().GetAuctionsByBidder(gomock.Any(), "nobody").Return(nil, biddingerrors.ErrBidderNoBids)

	got, err := service.GetAuctionsByBidder(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, auctions, got)

	_, err = service.GetAuctionsByBidder(context.Background(), "nobody")
	require.ErrorIs(t, err, biddingerrors.ErrBidderNoBids)

	_, err = service.GetAuctionsByBidder(context.Background(), "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)
}

// Tests GetBidders
func TestBiddingService_GetBidders(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewBiddingService(mockRepo)

	mockRepo.EXPECT().GetBidsByAuction(gomock.Any(), "auction1").Return([]model.Bid{
		{BidID: "b4", BidderID: "carol", Amount: 300, CreatedAt: fixedNow.Add(4 * time.Minute), IsWinning: true},
		{BidID: "b3", BidderID: "alice", Amount: 250, CreatedAt: fixedNow.Add(3 * time.Minute)},
		{BidID: "b2", BidderID: "bob", Amount: 200, CreatedAt: fixedNow.Add(2 * time.Minute)},
		{BidID: "b1", BidderID: "alice", Amount: 150, CreatedAt: fixedNow.Add(time.Minute)},
	}, nil)

	bidders, err := service.GetBidders(context.Background(), "auction1")
	require.NoError(t, err)
	require.Len(t, bidders, 3)

	require.Equal(t, "carol", bidders[0].BidderID)
	require.Equal(t, "alice", bidders[1].BidderID)
	require.Equal(t, 250.0, bidders[1].HighestAmount)
	require.Equal(t, 2, bidders[1].BidCount)
	require.Equal(t, fixedNow.Add(3*time.Minute), bidders[1].LastBidAt)
	require.Equal(t, "bob", bidders[2].BidderID)
}
