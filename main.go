package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pigeon-auction/internal/app"
	"pigeon-auction/internal/config"
	model "pigeon-auction/internal/models"
	"pigeon-auction/internal/repository"
	"pigeon-auction/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	utils.SetLevel(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		utils.Fatal("server stopped with error", map[string]any{"error": err.Error()})
	}
	utils.Info("server stopped", nil)
}

func run(ctx context.Context, cfg *config.Config) error {
	deps, cleanup, err := app.Wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if deps.Memory != nil && cfg.Server.SeedDemoData {
		prepopulateAuctions(deps.Memory)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      deps.Router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	g, gctx := errgroup.WithContext(ctx)

	if deps.Producer != nil {
		g.Go(func() error {
			deps.Producer.Run()
			return nil
		})
	}

	g.Go(func() error {
		utils.Info("starting auction server", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		utils.Info("shutting down auction server", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		// accepted bids published before shutdown are flushed by the producer
		if deps.Producer != nil {
			deps.Producer.Close()
		}
		if err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// prepopulateAuctions adds approved sample auctions to the in-memory store
func prepopulateAuctions(repo *repository.MemoryRepo) {
	now := time.Now().UTC()
	auctions := []model.Auction{
		{AuctionID: "auction1", SellerID: "seller1", Title: "Racing pigeon, 2023 hen", Category: "racing", StartingPrice: 100},
		{AuctionID: "auction2", SellerID: "seller1", Title: "Breeding pair", Category: "breeding", StartingPrice: 200},
		{AuctionID: "auction3", SellerID: "seller2", Title: "Show tippler", Category: "show", StartingPrice: 150},
	}

	for _, a := range auctions {
		a.CurrentPrice = a.StartingPrice
		a.StartTime = now
		a.EndTime = now.Add(7 * 24 * time.Hour)
		a.Status = model.StatusActive
		a.IsApproved = true
		a.CreatedAt = now
		repo.AddAuction(a)
	}
	utils.Info("seeded demo auctions", map[string]any{"count": len(auctions)})
}
