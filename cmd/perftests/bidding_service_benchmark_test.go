package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	bidding "pigeon-auction/internal/biddingService"
	model "pigeon-auction/internal/models"
	"pigeon-auction/internal/repository"
	"pigeon-auction/utils"
)

func init() {
	// per-bid info logs would dominate the numbers
	utils.SetLevel("error")
}

// liveAuction returns an approved auction that stays open for the whole run
func liveAuction(id string, startingPrice float64) model.Auction {
	now := time.Now().UTC()
	return model.Auction{
		AuctionID:     id,
		SellerID:      "bench_seller",
		Title:         "Benchmark auction " + id,
		StartingPrice: startingPrice,
		CurrentPrice:  startingPrice,
		StartTime:     now,
		EndTime:       now.Add(24 * time.Hour),
		Status:        model.StatusActive,
		IsApproved:    true,
		CreatedAt:     now,
	}
}

// SubmitBid on a separate auction per iteration: no contention
func Benchmark_SubmitBid_Isolated(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		repo.AddAuction(liveAuction(fmt.Sprintf("auction_%d", i), 50))
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		bidderID := fmt.Sprintf("bidder_%d", i)
		auctionID := fmt.Sprintf("auction_%d", i)
		amount := float64(51 + rand.Intn(100))
		if _, err := svc.SubmitBid(ctx, auctionID, bidderID, amount); err != nil {
			b.Fatalf("failed to submit bid: %v", err)
		}
	}
}

// SubmitBid from many goroutines on one auction: every write races the CAS
func Benchmark_SubmitBid_ConcurrentSharedAuction(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	repo.AddAuction(liveAuction("shared_auction_1", 50))
	ctx := context.Background()

	var lastAmount int64 = 50
	var accepted, rejected int64

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			bidderID := fmt.Sprintf("bidder_parallel_%d", rnd.Int())
			next := atomic.AddInt64(&lastAmount, int64(rnd.Intn(5)+1))
			if _, err := svc.SubmitBid(ctx, "shared_auction_1", bidderID, float64(next)); err != nil {
				atomic.AddInt64(&rejected, 1)
				continue
			}
			atomic.AddInt64(&accepted, 1)
		}
	})

	b.ReportMetric(float64(accepted)/float64(b.N), "accepted/op")
	b.ReportMetric(float64(rejected)/float64(b.N), "rejected/op")
}

// GetWinningBid on a separate auction per iteration
func Benchmark_GetWinningBid_SingleThreaded(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		auctionID := fmt.Sprintf("auction_%d", i)
		repo.AddAuction(liveAuction(auctionID, 50))

		for j := 0; j < 10; j++ {
			_, _ = svc.SubmitBid(ctx, auctionID, fmt.Sprintf("bidder_%d_%d", i, j), float64(60+j*10))
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := svc.GetWinningBid(ctx, fmt.Sprintf("auction_%d", i)); err != nil {
			b.Fatalf("failed to get winning bid: %v", err)
		}
	}
}

// GetWinningBid from many goroutines on one auction
func Benchmark_GetWinningBid_ConcurrentSharedAuction(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	repo.AddAuction(liveAuction("shared_auction_1", 50))
	ctx := context.Background()

	for j := 0; j < 100; j++ {
		_, _ = svc.SubmitBid(ctx, "shared_auction_1", fmt.Sprintf("bidder_%d", j), float64(51+j))
	}

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := svc.GetWinningBid(ctx, "shared_auction_1"); err != nil {
				b.Errorf("failed to get winning bid: %v", err)
				return
			}
		}
	})
}

// Readers and writers on one auction, 70/30
func Benchmark_MixedWorkload_SharedAuction(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	repo.AddAuction(liveAuction("shared_auction_1", 50))
	ctx := context.Background()

	for j := 0; j < 50; j++ {
		_, _ = svc.SubmitBid(ctx, "shared_auction_1", fmt.Sprintf("bidder_seed_%d", j), float64(52+j*2))
	}

	var lastAmount int64 = 150

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			if rnd.Intn(10) < 3 {
				bidderID := fmt.Sprintf("bidder_writer_%d", rnd.Int())
				next := atomic.AddInt64(&lastAmount, int64(rnd.Intn(5)+1))
				_, _ = svc.SubmitBid(ctx, "shared_auction_1", bidderID, float64(next))
				continue
			}
			_, _ = svc.GetWinningBid(ctx, "shared_auction_1")
		}
	})
}
