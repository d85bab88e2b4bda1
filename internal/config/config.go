// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Loading layers a YAML file, a .env file and LIGHTHOUSE_ env vars over the defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory round queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of rating workers. One keeps arrival order.
	WorkerCount int `koanf:"worker_count"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server and workers.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	Rating    RatingConfig    `koanf:"rating"`
	Store     StoreConfig     `koanf:"store"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// RatingConfig holds the rating engine parameters.
type RatingConfig struct {
	// KFactor is the learning rate.
	KFactor float64 `koanf:"k_factor"`
	// GFactor is the per-round weight multiplier.
	GFactor float64 `koanf:"g_factor"`
	// Strategy is one of aggregate, pairwise, weighted.
	Strategy string `koanf:"strategy"`
	// Normalize averages pairwise components per player.
	Normalize bool `koanf:"normalize"`
	// Epoch is the last-applied time of an empty store, as a date or RFC3339 time.
	Epoch string `koanf:"epoch"`
	// MinMatches is the default leaderboard threshold.
	MinMatches int `koanf:"min_matches"`
	// ClassifierPath points at the fitted model used by the weighted strategy.
	ClassifierPath string `koanf:"classifier_path"`
}

// EpochTime parses Epoch.
func (r RatingConfig) EpochTime() (time.Time, error) {
	s := strings.TrimSpace(r.Epoch)
	for _, layout := range []string{time.DateOnly, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: rating.epoch %q is neither a date nor RFC3339", ErrInvalidConfig, r.Epoch)
}

// StoreConfig selects and configures the rating store backend.
type StoreConfig struct {
	// Driver is one of memory, file, bolt, sqlite, postgres.
	Driver string `koanf:"driver"`
	// Path is the directory (file), database file (bolt, sqlite) of the store.
	Path string `koanf:"path"`
	// DSN is the postgres connection string.
	DSN string `koanf:"dsn"`
	// MaxOpenConns caps SQL connections; zero leaves the driver default.
	MaxOpenConns int `koanf:"max_open_conns"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled        bool   `koanf:"enabled"`
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
	OTLPEndpoint   string `koanf:"otlp_endpoint"`
	Insecure       bool   `koanf:"insecure"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		QueueSize:           10_000,
		WorkerCount:         1,
		MaxLeaderboardLimit: 100,
		ShutdownTimeout:     10 * time.Second,
		Rating: RatingConfig{
			KFactor:    32,
			GFactor:    1,
			Strategy:   "pairwise",
			Epoch:      "2023-03-01",
			MinMatches: 0,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "lighthouse",
			ServiceVersion: "dev",
			OTLPEndpoint:   "localhost:4318",
		},
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit < 1:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	case !(c.Rating.KFactor > 0):
		return fmt.Errorf("%w: rating.k_factor must be positive", ErrInvalidConfig)
	case c.Rating.GFactor < 0:
		return fmt.Errorf("%w: rating.g_factor must not be negative", ErrInvalidConfig)
	case c.Rating.MinMatches < 0:
		return fmt.Errorf("%w: rating.min_matches must not be negative", ErrInvalidConfig)
	case c.Rating.Strategy == "weighted" && c.Rating.ClassifierPath == "":
		return fmt.Errorf("%w: rating.classifier_path is required by the weighted strategy", ErrInvalidConfig)
	case c.Store.Driver == "":
		return fmt.Errorf("%w: store.driver must not be empty", ErrInvalidConfig)
	case c.Store.Driver == "postgres" && c.Store.DSN == "":
		return fmt.Errorf("%w: store.dsn is required by the postgres driver", ErrInvalidConfig)
	}
	if _, err := c.Rating.EpochTime(); err != nil {
		return err
	}
	return nil
}
