package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the full service configuration
type Config struct {
	LogLevel  string          `toml:"log_level"`
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Auth      AuthConfig      `toml:"auth"`
	Bidding   BiddingConfig   `toml:"bidding"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// ServerConfig holds HTTP server parameters
type ServerConfig struct {
	Port            int      `toml:"port"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	SeedDemoData    bool     `toml:"seed_demo_data"`
}

// DatabaseConfig selects Postgres when URL is set, the in-memory store otherwise
type DatabaseConfig struct {
	URL               string   `toml:"url"`
	MaxConns          int      `toml:"max_conns"`
	MinConns          int      `toml:"min_conns"`
	HealthCheckPeriod duration `toml:"health_check_period"`
	RunMigrations     bool     `toml:"run_migrations"`
}

// RedisConfig enables the auction cache and shared rate limiting when Addr is set
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	AuctionTTL duration `toml:"auction_ttl"`
}

// KafkaConfig enables BidAccepted publishing when Brokers is non-empty
type KafkaConfig struct {
	Brokers      []string `toml:"brokers"`
	Topic        string   `toml:"topic"`
	ClientID     string   `toml:"client_id"`
	BufferSize   int      `toml:"buffer_size"`
	WriteTimeout duration `toml:"write_timeout"`
}

// AuthConfig holds token verification settings
type AuthConfig struct {
	JWTSecret string   `toml:"jwt_secret"`
	Issuer    string   `toml:"issuer"`
	TokenTTL  duration `toml:"token_ttl"`
}

// BiddingConfig tunes the bid acceptance retry loop
type BiddingConfig struct {
	MaxAttempts    int      `toml:"max_attempts"`
	StorageTimeout duration `toml:"storage_timeout"`
}

// RateLimitConfig limits bids per bidder and other requests per client IP
type RateLimitConfig struct {
	BidLimit  int      `toml:"bid_limit"`
	BidWindow duration `toml:"bid_window"`
	APILimit  int      `toml:"api_limit"`
	APIWindow duration `toml:"api_window"`
}

// duration wraps time.Duration so TOML strings like "5s" decode into it
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a configuration that runs locally with no external services
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     duration{10 * time.Second},
			WriteTimeout:    duration{10 * time.Second},
			ShutdownTimeout: duration{15 * time.Second},
		},
		Database: DatabaseConfig{
			MaxConns:          8,
			MinConns:          1,
			HealthCheckPeriod: duration{30 * time.Second},
			RunMigrations:     true,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 2,
			AuctionTTL: duration{30 * time.Second},
		},
		Kafka: KafkaConfig{
			Topic:        "auction.bids",
			ClientID:     "pigeon-auction",
			BufferSize:   256,
			WriteTimeout: duration{5 * time.Second},
		},
		Auth: AuthConfig{
			Issuer:   "pigeon-auction",
			TokenTTL: duration{time.Hour},
		},
		Bidding: BiddingConfig{
			MaxAttempts:    3,
			StorageTimeout: duration{2 * time.Second},
		},
		RateLimit: RateLimitConfig{
			BidLimit:  10,
			BidWindow: duration{time.Minute},
			APILimit:  100,
			APIWindow: duration{time.Minute},
		},
	}
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Bidding.MaxAttempts < 1 {
		errs = append(errs, errors.New("bidding.max_attempts must be at least 1"))
	}
	if c.Bidding.StorageTimeout.Duration <= 0 {
		errs = append(errs, errors.New("bidding.storage_timeout must be positive"))
	}
	if c.RateLimit.BidLimit < 1 || c.RateLimit.BidWindow.Duration <= 0 {
		errs = append(errs, errors.New("rate_limit.bid_limit and rate_limit.bid_window must be positive"))
	}
	if c.RateLimit.APILimit < 1 || c.RateLimit.APIWindow.Duration <= 0 {
		errs = append(errs, errors.New("rate_limit.api_limit and rate_limit.api_window must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
