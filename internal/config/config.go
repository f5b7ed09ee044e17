package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/eldtechnologies/collab/internal/collab"
)

// Config holds all configuration for the application.
type Config struct {
	Port       string `env:"PORT" envDefault:"8080"`
	Env        string `env:"ENV" envDefault:"development"`
	InstanceID string `env:"INSTANCE_ID"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./data/collab.db"`
	NATSURL     string `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`

	FanoutBus string `env:"FANOUT_BUS" envDefault:"none"` // none, redis, nats
	Codec     string `env:"CODEC" envDefault:"json"`      // json, msgpack
	Catalog   string `env:"CATALOG" envDefault:"none"`    // none, postgres, sqlite

	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	PresenceTTL          time.Duration `env:"PRESENCE_TTL" envDefault:"5m"`
	BreakerThreshold     int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown      time.Duration `env:"BREAKER_COOLDOWN" envDefault:"60s"`
	BreakerSweepInterval time.Duration `env:"BREAKER_SWEEP_INTERVAL" envDefault:"10s"`
	MetricsInterval      time.Duration `env:"METRICS_INTERVAL" envDefault:"10s"`
	QueueCapacity        int           `env:"QUEUE_CAPACITY" envDefault:"10000"`
	QueueWorkers         int           `env:"QUEUE_WORKERS" envDefault:"4"`
	MessageTTL           time.Duration `env:"MESSAGE_TTL" envDefault:"168h"`
	HistoryLimit         int           `env:"HISTORY_LIMIT" envDefault:"1000"`
	MaxMessageSize       int           `env:"MAX_MESSAGE_SIZE" envDefault:"65536"`

	// Rate limiting
	RateLimitWhitelist []string `env:"RATE_LIMIT_WHITELIST" envSeparator:","` // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     `env:"AUTO_BLOCK_ENABLED" envDefault:"false"`
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.RateLimitWhitelist = compact(cfg.RateLimitWhitelist)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required variables and enum values.
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	switch c.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("CODEC must be json or msgpack, got %q", c.Codec)
	}
	switch c.FanoutBus {
	case "none", "redis":
	case "nats":
		if c.NATSURL == "" {
			return errors.New("NATS_URL is required when FANOUT_BUS=nats")
		}
	default:
		return fmt.Errorf("FANOUT_BUS must be none, redis or nats, got %q", c.FanoutBus)
	}
	switch c.Catalog {
	case "none", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when CATALOG=postgres")
		}
	default:
		return fmt.Errorf("CATALOG must be none, postgres or sqlite, got %q", c.Catalog)
	}
	if c.BreakerThreshold < 1 {
		return errors.New("BREAKER_THRESHOLD must be at least 1")
	}
	if c.QueueCapacity < 1 || c.QueueWorkers < 1 {
		return errors.New("QUEUE_CAPACITY and QUEUE_WORKERS must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// EngineConfig maps the environment onto engine tuning.
func (c *Config) EngineConfig() collab.Config {
	ec := collab.DefaultConfig()
	ec.HeartbeatInterval = c.HeartbeatInterval
	ec.PresenceTTL = c.PresenceTTL
	ec.BreakerThreshold = c.BreakerThreshold
	ec.BreakerCooldown = c.BreakerCooldown
	ec.BreakerSweepInterval = c.BreakerSweepInterval
	ec.MetricsInterval = c.MetricsInterval
	ec.QueueCapacity = c.QueueCapacity
	ec.QueueWorkers = c.QueueWorkers
	ec.MessageTTL = c.MessageTTL
	ec.HistoryLimit = c.HistoryLimit
	ec.MaxMessageSize = c.MaxMessageSize
	return ec
}

func compact(entries []string) []string {
	var out []string
	for _, e := range entries {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
