package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"pigeon-auction/internal/biddingerrors"
	model "pigeon-auction/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// newTestPostgres connects to TEST_DATABASE_URL and applies migrations, or skips
func newTestPostgres(t *testing.T) *PostgresRepo {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := NewPostgresRepo(ctx, PostgresConfig{URL: url, MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.Migrate())
	return repo
}

// seedAuction stores an active auction with a random id so tests do not collide
func seedAuction(t *testing.T, repo *PostgresRepo, price float64) model.Auction {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	a := model.Auction{
		AuctionID:     uuid.NewString(),
		SellerID:      "seller1",
		Title:         "Racing hen " + uuid.NewString()[:8],
		Category:      "racing",
		StartingPrice: price,
		CurrentPrice:  price,
		StartTime:     now,
		EndTime:       now.Add(time.Hour),
		Status:        model.StatusPending,
		CreatedAt:     now,
	}
	require.NoError(t, repo.CreateAuction(context.Background(), a))
	approved, err := repo.ApproveAuction(context.Background(), a.AuctionID)
	require.NoError(t, err)
	return approved
}

func TestPostgresRepo_AuctionLifecycle(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	a := seedAuction(t, repo, 100)
	require.Equal(t, model.StatusActive, a.Status)
	require.True(t, a.IsApproved)

	got, err := repo.GetAuction(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, a.Title, got.Title)
	require.Nil(t, got.BuyNowPrice)

	require.ErrorIs(t, repo.CreateAuction(ctx, a), biddingerrors.ErrInvalidAuction)

	_, err = repo.ApproveAuction(ctx, a.AuctionID)
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotActive)

	_, err = repo.GetAuction(ctx, uuid.NewString())
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	list, total, err := repo.ListAuctions(ctx, model.AuctionQuery{Page: 1, Limit: 5, Search: a.Title, SortBy: model.SortNewest})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, a.AuctionID, list[0].AuctionID)
}

func TestPostgresRepo_AcceptBid(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	a := seedAuction(t, repo, 100)
	now := time.Now().UTC().Truncate(time.Microsecond)

	snap, err := repo.LoadSnapshot(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Nil(t, snap.HighestBid)

	first := newBid(uuid.NewString(), a.AuctionID, "alice", 150, now)
	require.NoError(t, repo.AcceptBid(ctx, first, 100))

	// stale observed price loses
	stale := newBid(uuid.NewString(), a.AuctionID, "bob", 160, now)
	require.ErrorIs(t, repo.AcceptBid(ctx, stale, 100), biddingerrors.ErrConflict)

	second := newBid(uuid.NewString(), a.AuctionID, "bob", 200, now.Add(time.Second))
	require.NoError(t, repo.AcceptBid(ctx, second, 150))

	snap, err = repo.LoadSnapshot(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, 200.0, snap.Auction.CurrentPrice)
	require.NotNil(t, snap.HighestBid)
	require.Equal(t, second.BidID, snap.HighestBid.BidID)
	require.True(t, snap.HighestBid.IsWinning)

	bids, err := repo.GetBidsByAuction(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.True(t, bids[0].IsWinning)
	require.False(t, bids[1].IsWinning)

	winning, err := repo.GetWinningBid(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, "bob", winning.BidderID)

	auctions, err := repo.GetAuctionsByBidder(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, auctions)

	_, err = repo.GetAuctionsByBidder(ctx, "nobody-"+uuid.NewString())
	require.ErrorIs(t, err, biddingerrors.ErrBidderNoBids)
}

func TestPostgresRepo_AcceptBid_ConcurrentSamePrice(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	a := seedAuction(t, repo, 100)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bid := newBid(uuid.NewString(), a.AuctionID, fmt.Sprintf("bidder%d", i), 101+float64(i), time.Now().UTC())
			err := repo.AcceptBid(ctx, bid, 100)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			require.True(t, biddingerrors.IsTransient(err), "unexpected error %v", err)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	bids, err := repo.GetBidsByAuction(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: biddingerrors.ErrConflict},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: biddingerrors.ErrConflict},
		{name: "unique_violation", err: &pgconn.PgError{Code: "23505"}, want: biddingerrors.ErrConflict},
		{name: "admin_shutdown", err: &pgconn.PgError{Code: "57P01"}, want: biddingerrors.ErrUnavailable},
		{name: "too_many_connections", err: &pgconn.PgError{Code: "53300"}, want: biddingerrors.ErrUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: biddingerrors.ErrUnavailable},
		{name: "check_violation", err: &pgconn.PgError{Code: "23514"}},
		{name: "plain_error", err: errors.New("boom")},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := classify("op", tc.err)
			require.ErrorIs(t, got, tc.err)
			if tc.want != nil {
				require.ErrorIs(t, got, tc.want)
				return
			}
			require.False(t, biddingerrors.IsTransient(got))
		})
	}
}
