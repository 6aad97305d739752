// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config with defaults; Load layers file and env on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Storage drivers.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the correlation job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of correlation workers.
	WorkerCount int `koanf:"worker_count"`

	// JobTimeoutMS caps a single asynchronous job. Zero disables the cap.
	JobTimeoutMS int `koanf:"job_timeout_ms"`

	// MinOverlap is the fewest paired grid points a lag needs to be defined.
	MinOverlap int `koanf:"min_overlap"`

	// MaxGridPoints caps the resampling grid of one sweep.
	MaxGridPoints int `koanf:"max_grid_points"`

	// CorrelationResolution forces a grid step. Zero uses the finest native spacing.
	CorrelationResolution float64 `koanf:"correlation_resolution"`

	// SuggestTopK is how many correlation peaks become suggestions.
	SuggestTopK int `koanf:"suggest_top_k"`

	// SuggestAnchors is how many anchor depths are proposed per peak.
	SuggestAnchors int `koanf:"suggest_anchors"`

	// SuggestMaxLag and SuggestLagStep fix the suggester's sweep. Zero derives them from the data.
	SuggestMaxLag  float64 `koanf:"suggest_max_lag"`
	SuggestLagStep float64 `koanf:"suggest_lag_step"`

	// AIEndpoint is the remote suggestion service. Empty disables it.
	AIEndpoint  string `koanf:"ai_endpoint"`
	AITimeoutMS int    `koanf:"ai_timeout_ms"`
	AIRetries   int    `koanf:"ai_retries"`
	AIBackoffMS int    `koanf:"ai_backoff_ms"`

	// StorageDriver is memory or sqlite; StorageDSN is the sqlite file.
	StorageDriver string `koanf:"storage_driver"`
	StorageDSN    string `koanf:"storage_dsn"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		QueueSize:      1024,
		WorkerCount:    runtime.NumCPU(),
		JobTimeoutMS:   120_000,
		MinOverlap:     5,
		MaxGridPoints:  100_000,
		SuggestTopK:    3,
		SuggestAnchors: 5,
		AITimeoutMS:    5_000,
		AIRetries:      2,
		AIBackoffMS:    200,
		StorageDriver:  StorageMemory,
		StorageDSN:     "strata.db",
	}
}

// JobTimeout returns JobTimeoutMS as a duration.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutMS) * time.Millisecond
}

// AITimeout returns AITimeoutMS as a duration.
func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutMS) * time.Millisecond
}

// AIBackoff returns AIBackoffMS as a duration.
func (c *Config) AIBackoff() time.Duration {
	return time.Duration(c.AIBackoffMS) * time.Millisecond
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.JobTimeoutMS < 0:
		return fmt.Errorf("%w: job_timeout_ms must not be negative", ErrInvalidConfig)
	case c.MinOverlap < 2:
		return fmt.Errorf("%w: min_overlap must be at least 2, got %d", ErrInvalidConfig, c.MinOverlap)
	case c.MaxGridPoints < c.MinOverlap:
		return fmt.Errorf("%w: max_grid_points must be at least min_overlap", ErrInvalidConfig)
	case c.CorrelationResolution < 0, c.SuggestMaxLag < 0, c.SuggestLagStep < 0:
		return fmt.Errorf("%w: resolution and lag settings must not be negative", ErrInvalidConfig)
	case c.SuggestTopK <= 0 || c.SuggestAnchors <= 0:
		return fmt.Errorf("%w: suggest_top_k and suggest_anchors must be positive", ErrInvalidConfig)
	case c.AITimeoutMS <= 0 || c.AIRetries < 0 || c.AIBackoffMS < 0:
		return fmt.Errorf("%w: invalid ai client settings", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	switch c.StorageDriver {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(c.StorageDSN) == "" {
			return fmt.Errorf("%w: storage_dsn is required for sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage_driver %q", ErrInvalidConfig, c.StorageDriver)
	}
	return nil
}
