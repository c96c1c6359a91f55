package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the configuration from defaults, the optional TOML file at path,
// a .env file if present, and AUCTION_* environment variables, in that order.
// The result is not validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "AUCTION_LOG_LEVEL")

	setInt(&cfg.Server.Port, "PORT")
	setInt(&cfg.Server.Port, "AUCTION_SERVER_PORT")
	setDuration(&cfg.Server.ReadTimeout, "AUCTION_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "AUCTION_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "AUCTION_SERVER_SHUTDOWN_TIMEOUT")
	setStringSlice(&cfg.Server.AllowedOrigins, "AUCTION_SERVER_ALLOWED_ORIGINS")
	setBool(&cfg.Server.SeedDemoData, "AUCTION_SERVER_SEED_DEMO_DATA")

	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Database.URL, "AUCTION_DATABASE_URL")
	setInt(&cfg.Database.MaxConns, "AUCTION_DATABASE_MAX_CONNS")
	setInt(&cfg.Database.MinConns, "AUCTION_DATABASE_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "AUCTION_DATABASE_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "AUCTION_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUCTION_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUCTION_REDIS_DB")
	setDuration(&cfg.Redis.AuctionTTL, "AUCTION_REDIS_AUCTION_TTL")

	setStringSlice(&cfg.Kafka.Brokers, "AUCTION_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "AUCTION_KAFKA_TOPIC")
	setStr(&cfg.Kafka.ClientID, "AUCTION_KAFKA_CLIENT_ID")

	setStr(&cfg.Auth.JWTSecret, "AUCTION_AUTH_JWT_SECRET")
	setStr(&cfg.Auth.Issuer, "AUCTION_AUTH_ISSUER")
	setDuration(&cfg.Auth.TokenTTL, "AUCTION_AUTH_TOKEN_TTL")

	setInt(&cfg.Bidding.MaxAttempts, "AUCTION_BIDDING_MAX_ATTEMPTS")
	setDuration(&cfg.Bidding.StorageTimeout, "AUCTION_BIDDING_STORAGE_TIMEOUT")

	setInt(&cfg.RateLimit.BidLimit, "AUCTION_RATE_LIMIT_BID_LIMIT")
	setDuration(&cfg.RateLimit.BidWindow, "AUCTION_RATE_LIMIT_BID_WINDOW")
	setInt(&cfg.RateLimit.APILimit, "AUCTION_RATE_LIMIT_API_LIMIT")
	setDuration(&cfg.RateLimit.APIWindow, "AUCTION_RATE_LIMIT_API_WINDOW")
}

// Each setter only touches dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
