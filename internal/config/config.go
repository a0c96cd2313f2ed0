// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load(ctx) layers defaults, an optional YAML file and environment variables.
// - Validation failures wrap ErrInvalidConfig; loading failures wrap ErrLoadConfig.
package config

import (
	"time"
)

// Suppression modes for the echo-suppression tracker.
const (
	SuppressionKeyed  = "keyed"
	SuppressionGlobal = "global"
)

// Rollback policies for failed in-place updates.
const (
	RollbackSymmetric = "symmetric"
	RollbackLegacy    = "legacy"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// Addr is the listen address of the consumer API, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// RemoteURL is the base URL of the remote source the replica mirrors.
	RemoteURL string `koanf:"remote_url" validate:"required,url"`

	// RemoteTimeoutMS bounds a single REST call to the remote source.
	RemoteTimeoutMS int `koanf:"remote_timeout_ms" validate:"gte=0"`

	// ReconnectPerSecond paces subscription reconnect attempts.
	ReconnectPerSecond float64 `koanf:"reconnect_per_second" validate:"gt=0"`

	// QueueSize bounds the change intake queue.
	QueueSize int `koanf:"queue_size"`

	// SuppressionMode selects per-record ("keyed") or process-wide ("global") echo suppression.
	SuppressionMode string `koanf:"suppression_mode" validate:"oneof=keyed global"`

	// RollbackPolicy selects how failed in-place updates are reconciled.
	RollbackPolicy string `koanf:"rollback_policy" validate:"oneof=symmetric legacy"`

	// SourceAddr is the listen address of the development source server.
	SourceAddr string `koanf:"source_addr" validate:"required"`

	// SourceDSN is the SQLite DSN of the development source.
	SourceDSN string `koanf:"source_dsn" validate:"required"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		RemoteURL:          "http://localhost:9090",
		RemoteTimeoutMS:    10_000,
		ReconnectPerSecond: 0.5,
		QueueSize:          10_000,
		SuppressionMode:    SuppressionKeyed,
		RollbackPolicy:     RollbackSymmetric,
		SourceAddr:         ":9090",
		SourceDSN:          "file:rostersync.db?_pragma=busy_timeout(5000)",
	}
}

// RemoteTimeout returns RemoteTimeoutMS as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutMS) * time.Millisecond
}
