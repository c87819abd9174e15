package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/shobdo/internal/loadgen"
	"github.com/okian/shobdo/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	cfg := loadgen.NewConfig()
	flag.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "Base URL of the service")
	flag.IntVar(&cfg.Players, "players", cfg.Players, "Number of distinct players to generate")
	flag.IntVar(&cfg.PlaysPerPlayer, "plays", cfg.PlaysPerPlayer, "Score submissions per player")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of concurrent workers")
	flag.IntVar(&cfg.BoardLimit, "board-limit", cfg.BoardLimit, "Public leaderboard limit configured on the server")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "Generator seed (0 picks a random one)")
	flag.StringVar(&cfg.OutputFile, "output", "", "Write the generated plays to this JSON file")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Log progress and failed submissions")
	runTimeout := flag.Duration("run-timeout", defaultRunTimeout, "Overall time limit for the run")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if cfg.Verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *runTimeout)
	defer cancel()

	if _, err := loadgen.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "load run failed", logger.Error(err))
		cancel()
		os.Exit(1)
	}
}
