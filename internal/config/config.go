// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and the environment over the defaults.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store drivers accepted by StoreDriver.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the backing store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is passed to the sqlite or postgres driver.
	StoreDSN string `koanf:"store_dsn"`

	// StoreMaxOpenConns caps the postgres connection pool. SQLite always
	// uses a single connection.
	StoreMaxOpenConns int `koanf:"store_max_open_conns"`

	// StorePingTimeout bounds the connectivity check when the store opens.
	StorePingTimeout time.Duration `koanf:"store_ping_timeout"`

	// AutoMigrate applies pending schema migrations at startup.
	AutoMigrate bool `koanf:"auto_migrate"`

	// ShardCount sets the number of per-key serializer shards.
	ShardCount int `koanf:"shard_count"`

	// QueueSize bounds each shard's queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets how many payout request ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// ReferralReward is the number of units earned per referred player.
	ReferralReward int64 `koanf:"referral_reward"`

	// Timezone is the IANA zone calendar days are cut in.
	Timezone string `koanf:"timezone"`

	// PublicLeaderboardLimit sizes GET /public-leaderboard.
	PublicLeaderboardLimit int `koanf:"public_leaderboard_limit"`

	// WinnersLimit sizes GET /winners.
	WinnersLimit int `koanf:"winners_limit"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		StoreDriver:            StoreMemory,
		StoreMaxOpenConns:      16,
		StorePingTimeout:       5 * time.Second,
		AutoMigrate:            true,
		ShardCount:             runtime.NumCPU(),
		QueueSize:              1024,
		DedupeSize:             50_000,
		ReferralReward:         10,
		Timezone:               "UTC",
		PublicLeaderboardLimit: 100,
		WinnersLimit:           5,
		MaxLeaderboardLimit:    1000,
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreMaxOpenConns <= 0:
		return fmt.Errorf("%w: store_max_open_conns must be positive", ErrInvalidConfig)
	case c.StorePingTimeout <= 0:
		return fmt.Errorf("%w: store_ping_timeout must be positive", ErrInvalidConfig)
	case c.ShardCount <= 0:
		return fmt.Errorf("%w: shard_count must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.ReferralReward <= 0:
		return fmt.Errorf("%w: referral_reward must be positive", ErrInvalidConfig)
	case c.PublicLeaderboardLimit <= 0 || c.WinnersLimit <= 0 || c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: leaderboard limits must be positive", ErrInvalidConfig)
	}

	switch strings.ToLower(c.StoreDriver) {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if strings.TrimSpace(c.StoreDSN) == "" {
			return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}

	_, err := c.Location()
	return err
}
