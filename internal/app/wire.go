// Package app assembles the service from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"pigeon-auction/internal/auth"
	bidding "pigeon-auction/internal/biddingService"
	"pigeon-auction/internal/cache"
	"pigeon-auction/internal/config"
	"pigeon-auction/internal/events"
	"pigeon-auction/internal/repository"
	"pigeon-auction/internal/server"
	"pigeon-auction/internal/stream"
	handler "pigeon-auction/services/bidding/handler"
	"pigeon-auction/services/bidding/helpers"
	"pigeon-auction/utils"
)

// Dependencies is the assembled service
type Dependencies struct {
	Repo     repository.AuctionDB
	Memory   *repository.MemoryRepo // set when running without Postgres
	Bidding  *bidding.BiddingService
	Auctions *bidding.AuctionService
	Tokens   *auth.TokenManager
	Hub      *stream.Hub
	Producer *events.KafkaProducer // nil when Kafka is disabled
	Router   http.Handler
}

// Wire builds every component selected by cfg. The returned cleanup releases
// external connections and must be called after the HTTP server has stopped.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func() error
	cleanup := func() {
		for _, closeFn := range slices.Backward(closers) {
			if err := closeFn(); err != nil {
				utils.Warn("app: cleanup failed", map[string]any{"error": err.Error()})
			}
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	deps := &Dependencies{}
	healthChecks := map[string]handler.Pinger{}

	if cfg.Database.URL == "" {
		deps.Memory = repository.NewMemoryRepo()
		deps.Repo = deps.Memory
		utils.Info("app: using in-memory store", nil)
	} else {
		pg, err := repository.NewPostgresRepo(ctx, repository.PostgresConfig{
			URL:               cfg.Database.URL,
			MaxConns:          int32(cfg.Database.MaxConns),
			MinConns:          int32(cfg.Database.MinConns),
			HealthCheckPeriod: cfg.Database.HealthCheckPeriod.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("app: %w", err))
		}
		closers = append(closers, pg.Close)
		if cfg.Database.RunMigrations {
			if err := pg.Migrate(); err != nil {
				return fail(fmt.Errorf("app: %w", err))
			}
		}
		deps.Repo = pg
		utils.Info("app: using postgres store", nil)
	}
	healthChecks["store"] = deps.Repo

	var (
		limiter      server.Limiter
		auctionCache *cache.AuctionCache
	)
	if cfg.Redis.Addr == "" {
		limiter = cache.NewMemoryRateLimiter()
		utils.Info("app: redis not configured, using in-process rate limiting and no auction cache", nil)
	} else {
		rc, err := cache.NewClient(ctx, cache.RedisConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			return fail(fmt.Errorf("app: %w", err))
		}
		closers = append(closers, rc.Close)
		limiter = cache.NewRateLimiter(rc)
		auctionCache = cache.NewAuctionCache(rc, cfg.Redis.AuctionTTL.Duration)
		healthChecks["redis"] = rc
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL.Duration)
	if err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}
	deps.Tokens = tokens

	deps.Hub = stream.NewHub(originChecker(cfg.Server.AllowedOrigins))
	closers = append(closers, func() error { deps.Hub.Close(); return nil })

	publishers := events.Multi{deps.Hub}
	if auctionCache != nil {
		publishers = append(publishers, auctionCache)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		deps.Producer = events.NewKafkaProducer(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			ClientID:     cfg.Kafka.ClientID,
			BufferSize:   cfg.Kafka.BufferSize,
			WriteTimeout: cfg.Kafka.WriteTimeout.Duration,
		})
		publishers = append(publishers, deps.Producer)
	}

	deps.Bidding = bidding.NewBiddingService(deps.Repo,
		bidding.WithMaxAttempts(cfg.Bidding.MaxAttempts),
		bidding.WithStorageTimeout(cfg.Bidding.StorageTimeout.Duration),
		bidding.WithPublisher(publishers),
	)

	// a nil *cache.AuctionCache must not reach the interface
	if auctionCache != nil {
		deps.Auctions = bidding.NewAuctionService(deps.Repo, auctionCache)
	} else {
		deps.Auctions = bidding.NewAuctionService(deps.Repo, nil)
	}

	if err := helpers.RegisterValidators(); err != nil {
		return fail(fmt.Errorf("app: %w", err))
	}

	deps.Router = server.SetupRouter(server.Deps{
		Bidding:  deps.Bidding,
		Auctions: deps.Auctions,
		Stream:   deps.Hub,
		Verifier: tokens,
		Limiter:  limiter,
		Limits: server.RouteLimits{
			BidLimit:  cfg.RateLimit.BidLimit,
			BidWindow: cfg.RateLimit.BidWindow.Duration,
			APILimit:  cfg.RateLimit.APILimit,
			APIWindow: cfg.RateLimit.APIWindow.Duration,
		},
		HealthChecks: healthChecks,
	})

	return deps, cleanup, nil
}

// originChecker allows websocket upgrades from the listed origins, or any origin when none are listed
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(allowed, u.Scheme+"://"+u.Host) || slices.Contains(allowed, "*")
	}
}
