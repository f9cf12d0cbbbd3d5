// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load layers a YAML file and VERSUS_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the storage collaborator: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	// StoreDSN is the sqlite path/URI or the postgres connection string.
	StoreDSN string `koanf:"store_dsn"`

	// EventQueueSize bounds the vote event queue feeding the leaderboard projection.
	EventQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of projection workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the vote request-id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps ?limit on leaderboard reads.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
	// LeaderboardCacheTTLMS is the per-session leaderboard cache lifetime.
	LeaderboardCacheTTLMS int `koanf:"leaderboard_cache_ttl_ms"`

	// VoteCooldownMS is the minimum spacing between accepted votes in one session.
	VoteCooldownMS int `koanf:"vote_cooldown_ms"`
	// SimilarityThreshold is the near-duplicate cutoff for submissions.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	// MatchGapCap is the rating window for regular pair partners.
	MatchGapCap float64 `koanf:"match_gap_cap"`

	// SessionIdleTTLMS evicts sessions that have not been touched for this long.
	SessionIdleTTLMS int `koanf:"session_idle_ttl_ms"`
	// MaxSessions caps concurrently registered sessions.
	MaxSessions int `koanf:"max_sessions"`

	// ReconcileSchedule is a cron spec for rebuilding leaderboards from the store.
	ReconcileSchedule string `koanf:"reconcile_schedule"`
	// SessionSweepSchedule is a cron spec for evicting idle sessions.
	SessionSweepSchedule string `koanf:"session_sweep_schedule"`

	// JWTSecret verifies HS256 voter tokens. Empty trusts identity headers.
	JWTSecret string `koanf:"jwt_secret"`

	// DefaultListID is used when a session is opened without a list.
	DefaultListID int64 `koanf:"default_list_id"`

	// Timezone names the location used for weekly submission windows.
	Timezone string `koanf:"timezone"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		StoreDriver:           DriverMemory,
		StoreDSN:              "",
		EventQueueSize:        10_000,
		WorkerCount:           runtime.NumCPU(),
		DedupeSize:            100_000,
		MaxLeaderboardLimit:   300,
		LeaderboardCacheTTLMS: 30_000,
		VoteCooldownMS:        2_000,
		SimilarityThreshold:   0.25,
		MatchGapCap:           250,
		SessionIdleTTLMS:      30 * 60 * 1000,
		MaxSessions:           10_000,
		ReconcileSchedule:     "@every 5m",
		SessionSweepSchedule:  "@every 1m",
		JWTSecret:             "",
		DefaultListID:         1,
		Timezone:              "Local",
	}
}

// VoteCooldown returns VoteCooldownMS as a duration.
func (c *Config) VoteCooldown() time.Duration {
	return time.Duration(c.VoteCooldownMS) * time.Millisecond
}

// LeaderboardCacheTTL returns LeaderboardCacheTTLMS as a duration.
func (c *Config) LeaderboardCacheTTL() time.Duration {
	return time.Duration(c.LeaderboardCacheTTLMS) * time.Millisecond
}

// SessionIdleTTL returns SessionIdleTTLMS as a duration.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMS) * time.Millisecond
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != DriverMemory && c.StoreDriver != DriverSQLite && c.StoreDriver != DriverPostgres:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver != DriverMemory && c.StoreDSN == "":
		return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	case c.VoteCooldownMS < 0:
		return fmt.Errorf("%w: vote_cooldown_ms must not be negative", ErrInvalidConfig)
	case c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1:
		return fmt.Errorf("%w: similarity_threshold must be within [0,1]", ErrInvalidConfig)
	case c.MatchGapCap <= 0:
		return fmt.Errorf("%w: match_gap_cap must be positive", ErrInvalidConfig)
	case c.MaxSessions <= 0:
		return fmt.Errorf("%w: max_sessions must be positive", ErrInvalidConfig)
	case c.DefaultListID <= 0:
		return fmt.Errorf("%w: default_list_id must be positive", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
