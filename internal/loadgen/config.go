// Package loadgen drives concurrent score submissions against a running
// server and checks the public leaderboard it produces.
package loadgen

import (
	"errors"
	"runtime"
	"time"
)

// Defaults used by NewConfig.
const (
	DefaultBaseURL        = "http://localhost:9080"
	DefaultPlayers        = 200
	DefaultPlaysPerPlayer = 5
	DefaultTimeout        = 30 * time.Second
	DefaultBoardLimit     = 100
	workerMultiplier      = 2
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid load config")

// Config holds configuration for a load run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Players        int           // Number of distinct players to generate
	PlaysPerPlayer int           // Submissions per player
	Workers        int           // Number of concurrent workers
	Timeout        time.Duration // HTTP request timeout
	BoardLimit     int           // Server's public leaderboard limit
	Seed           uint64        // Faker seed, 0 picks a random one
	OutputFile     string        // Optional JSON dump of the generated plays
	Verbose        bool
}

// NewConfig returns a config populated with defaults.
func NewConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		Players:        DefaultPlayers,
		PlaysPerPlayer: DefaultPlaysPerPlayer,
		Workers:        runtime.NumCPU() * workerMultiplier,
		Timeout:        DefaultTimeout,
		BoardLimit:     DefaultBoardLimit,
	}
}

// Validate checks the config for values a run cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidConfig, errors.New("base url is required"))
	case c.Players <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("players must be positive"))
	case c.PlaysPerPlayer <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("plays per player must be positive"))
	case c.Workers <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("workers must be positive"))
	case c.Timeout <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("timeout must be positive"))
	case c.BoardLimit <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("board limit must be positive"))
	}
	return nil
}

// Play is one score submission as sent to POST /userscore.
type Play struct {
	MSISDN         string  `json:"msisdn"`
	CorrectScore   int64   `json:"correctScore"`
	IncorrectScore int64   `json:"incorrectScore"`
	UserTime       float64 `json:"userTime"`
}

// Entry is one public leaderboard row.
type Entry struct {
	Rank           int     `json:"rank"`
	MSISDN         string  `json:"msisdn"`
	PlayedAt       string  `json:"played_at"`
	CorrectScore   int64   `json:"correctScore"`
	IncorrectScore int64   `json:"incorrectScore"`
	UserTime       float64 `json:"userTime"`
}

type submitResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Stats holds run statistics.
type Stats struct {
	Players            int
	PlaysGenerated     int
	PlaysSubmitted     int
	Created            int
	Updated            int
	Kept               int
	Failed             int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
