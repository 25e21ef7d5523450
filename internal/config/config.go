// Package config loads the account service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Event store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreBolt   = "bbolt"
)

// Config holds the settings read from ACCOUNTS_* environment variables.
type Config struct {
	Store      string `env:"ACCOUNTS_STORE" envDefault:"sqlite"`
	SQLitePath string `env:"ACCOUNTS_SQLITE_PATH" envDefault:"accounts.db"`
	BoltPath   string `env:"ACCOUNTS_BOLT_PATH" envDefault:"accounts.bolt"`
	Stream     string `env:"ACCOUNTS_STREAM" envDefault:"accounts2"`

	// RetryMaxTries of 0 or 1 disables retrying.
	RetryMaxTries   uint          `env:"ACCOUNTS_RETRY_MAX_TRIES" envDefault:"5"`
	RetryMaxElapsed time.Duration `env:"ACCOUNTS_RETRY_MAX_ELAPSED" envDefault:"10s"`

	LogLevel slog.Level `env:"ACCOUNTS_LOG_LEVEL" envDefault:"INFO"`

	OTelEndpoint string `env:"ACCOUNTS_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"ACCOUNTS_OTEL_ENABLED" envDefault:"true"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that the settings are usable together.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("ACCOUNTS_SQLITE_PATH is required for the %s store", c.Store)
		}
	case StoreBolt:
		if strings.TrimSpace(c.BoltPath) == "" {
			return fmt.Errorf("ACCOUNTS_BOLT_PATH is required for the %s store", c.Store)
		}
	default:
		return fmt.Errorf("unknown store %q: want %s, %s or %s", c.Store, StoreMemory, StoreSQLite, StoreBolt)
	}

	if strings.TrimSpace(c.Stream) == "" {
		return fmt.Errorf("ACCOUNTS_STREAM cannot be empty")
	}

	if c.RetryMaxElapsed <= 0 {
		return fmt.Errorf("ACCOUNTS_RETRY_MAX_ELAPSED must be positive")
	}

	return nil
}

// Retries reports whether event store operations should be retried.
func (c Config) Retries() bool {
	return c.RetryMaxTries > 1
}
