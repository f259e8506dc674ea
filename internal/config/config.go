// Package config loads broker configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all broker configuration.
type Config struct {
	Broker    BrokerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// BrokerConfig holds the broker listener configuration.
type BrokerConfig struct {
	Socket          string        `envconfig:"CONDUIT_SOCKET" default:"/tmp/conduit.sock"`
	MetricsAddr     string        `envconfig:"CONDUIT_METRICS_ADDR" default:""`
	DefaultCapacity int           `envconfig:"CONDUIT_DEFAULT_CAPACITY" default:"64"`
	LockLease       time.Duration `envconfig:"CONDUIT_LOCK_LEASE" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"CONDUIT_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"CONDUIT_LOG_DEV" default:"false"`
}

// RateLimitConfig bounds per-connection operation rates. Zero disables
// limiting.
type RateLimitConfig struct {
	OpsPerSecond int `envconfig:"CONDUIT_RATE_LIMIT_OPS" default:"0"`
	Burst        int `envconfig:"CONDUIT_RATE_LIMIT_BURST" default:"0"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns the default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Socket:          "/tmp/conduit.sock",
			DefaultCapacity: 64,
			LockLease:       30 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}
