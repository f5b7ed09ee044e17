package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, "none", cfg.FanoutBus)
	assert.Equal(t, "none", cfg.Catalog)
	assert.Equal(t, 7*24*time.Hour, cfg.MessageTTL)
	assert.Equal(t, 5*time.Minute, cfg.PresenceTTL)
	assert.Equal(t, 64*1024, cfg.MaxMessageSize)
	assert.Empty(t, cfg.RateLimitWhitelist)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ENV", "production")
	t.Setenv("CODEC", "msgpack")
	t.Setenv("BREAKER_THRESHOLD", "3")
	t.Setenv("BREAKER_COOLDOWN", "15s")
	t.Setenv("RATE_LIMIT_WHITELIST", " 10.0.0.1, ,192.168.0.0/16 ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "msgpack", cfg.Codec)
	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.RateLimitWhitelist)

	ec := cfg.EngineConfig()
	assert.Equal(t, 3, ec.BreakerThreshold)
	assert.Equal(t, 15*time.Second, ec.BreakerCooldown)
	assert.Equal(t, 50, ec.JoinHistory)
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("QUEUE_WORKERS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			RedisURL:         "redis://localhost:6379/0",
			Codec:            "json",
			FanoutBus:        "none",
			Catalog:          "none",
			BreakerThreshold: 5,
			QueueCapacity:    10,
			QueueWorkers:     1,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing redis", func(c *Config) { c.RedisURL = "" }, "REDIS_URL"},
		{"bad codec", func(c *Config) { c.Codec = "xml" }, "CODEC"},
		{"bad bus", func(c *Config) { c.FanoutBus = "kafka" }, "FANOUT_BUS"},
		{"nats without url", func(c *Config) { c.FanoutBus = "nats"; c.NATSURL = "" }, "NATS_URL"},
		{"postgres without url", func(c *Config) { c.Catalog = "postgres" }, "DATABASE_URL"},
		{"bad catalog", func(c *Config) { c.Catalog = "mongo" }, "CATALOG"},
		{"zero threshold", func(c *Config) { c.BreakerThreshold = 0 }, "BREAKER_THRESHOLD"},
		{"no workers", func(c *Config) { c.QueueWorkers = 0 }, "QUEUE_WORKERS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
