package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/shobdo/pkg/logger"
)

const (
	directoryPermission = 0750
	filePermission      = 0600
	workerQueueFactor   = 2
	progressInterval    = time.Second
)

// Run executes a complete load run: health check, generation, concurrent
// submission and leaderboard verification.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get().Named("loadgen")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("playsPerPlayer", cfg.PlaysPerPlayer),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	gen := NewGenerator(cfg.Seed)
	players := gen.Players(cfg.Players)
	plays := gen.Plays(players, cfg.PlaysPerPlayer)
	stats.Players = len(players)
	stats.PlaysGenerated = len(plays)

	if err := submitPlays(ctx, cfg, client, plays, stats); err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}
	if stats.Failed > 0 {
		return stats, fmt.Errorf("%d of %d submissions failed", stats.Failed, stats.PlaysSubmitted)
	}

	board, err := client.PublicLeaderboard(ctx)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(board)

	if err := Verify(board, BestOf(plays), cfg.BoardLimit); err != nil {
		return stats, err
	}

	if cfg.OutputFile != "" {
		if err := savePlays(cfg.OutputFile, plays); err != nil {
			log.Warn(ctx, "failed to save plays", logger.String("file", cfg.OutputFile), logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logStats(ctx, log, stats)
	return stats, nil
}

// submitPlays fans plays out to cfg.Workers goroutines.
func submitPlays(ctx context.Context, cfg *Config, client *Client, plays []Play, stats *Stats) error {
	log := logger.Get().Named("loadgen")

	var submitted, created, updated, kept, failed atomic.Int64
	var lastReport atomic.Int64

	ch := make(chan Play, cfg.Workers*workerQueueFactor)
	var wg sync.WaitGroup
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range ch {
				status, err := client.Submit(ctx, p)
				submitted.Add(1)
				switch {
				case err != nil:
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "submission failed", logger.String("msisdn", p.MSISDN), logger.Error(err))
					}
				case status == "created":
					created.Add(1)
				case status == "updated":
					updated.Add(1)
				default:
					kept.Add(1)
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if cfg.Verbose && now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress",
						logger.Int64("submitted", submitted.Load()),
						logger.Int("total", len(plays)),
						logger.Int64("failed", failed.Load()))
				}
			}
		}()
	}

	func() {
		defer close(ch)
		for _, p := range plays {
			select {
			case <-ctx.Done():
				return
			case ch <- p:
			}
		}
	}()
	wg.Wait()

	stats.PlaysSubmitted = int(submitted.Load())
	stats.Created = int(created.Load())
	stats.Updated = int(updated.Load())
	stats.Kept = int(kept.Load())
	stats.Failed = int(failed.Load())
	return ctx.Err()
}

func savePlays(filename string, plays []Play) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(plays, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plays: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

func logStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.PlaysSubmitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "load run completed",
		logger.Int("players", stats.Players),
		logger.Int("submitted", stats.PlaysSubmitted),
		logger.Int("created", stats.Created),
		logger.Int("updated", stats.Updated),
		logger.Int("kept", stats.Kept),
		logger.Int("failed", stats.Failed),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("playsPerSecond", perSecond))
}
