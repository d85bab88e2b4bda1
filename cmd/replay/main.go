package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/lighthouse/internal/adapters/repository"
	_ "github.com/okian/lighthouse/internal/adapters/repository/boltstore"
	_ "github.com/okian/lighthouse/internal/adapters/repository/filestore"
	_ "github.com/okian/lighthouse/internal/adapters/repository/sqlstore"
	service "github.com/okian/lighthouse/internal/app"
	"github.com/okian/lighthouse/internal/clock"
	"github.com/okian/lighthouse/internal/config"
	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/rating"
	"github.com/okian/lighthouse/internal/replay"
	"github.com/okian/lighthouse/pkg/logger"
)

// Default configuration constants.
const (
	defaultTopN        = 10
	defaultTimeout     = 30 * time.Second
	defaultRunDeadline = 30 * time.Minute
)

const usage = `Lighthouse replay tool

Applies a season of rounds to a rating store, or submits it to a running
service and verifies the leaderboard afterwards.

Usage:
  replay [options]

Without -input a synthetic season is generated. Without -url rounds are
applied to the store configured through LIGHTHOUSE_* variables or the file
named by LIGHTHOUSE_CONFIG.

Examples:
  # Backfill the configured store from a file
  LIGHTHOUSE_STORE__DRIVER=bolt replay -input season.jsonl

  # Drive a running service with a generated season
  replay -url http://localhost:9080 -matches 1000 -features

Options:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		os.Stderr.WriteString("replay failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}

	season := replay.DefaultSeason()
	cfg := &replay.Config{}
	fs.StringVar(&cfg.Input, "input", "", "JSON-lines file of rounds (default: generate a season)")
	fs.StringVar(&cfg.BaseURL, "url", "", "Base URL of a running service (default: apply locally)")
	fs.IntVar(&cfg.TopN, "top", defaultTopN, "Leaderboard entries to fetch and verify")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	fs.StringVar(&cfg.OutputFile, "output", "", "Write the replayed rounds to this file")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Log every round that is not applied")
	fs.IntVar(&season.Players, "players", season.Players, "Players in a generated season")
	fs.IntVar(&season.Matches, "matches", season.Matches, "Matches in a generated season")
	fs.IntVar(&season.RoundsPerMatch, "rounds", season.RoundsPerMatch, "Rounds per generated match")
	fs.IntVar(&season.TeamSize, "team-size", season.TeamSize, "Players per side")
	fs.Int64Var(&season.Seed, "seed", season.Seed, "Seed of a generated season")
	fs.BoolVar(&season.Features, "features", false, "Attach performance vectors to generated results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Season = season

	if err := logger.Init(); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunDeadline)
	defer cancel()

	rounds, err := replay.LoadRounds(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.BaseURL != "" {
		_, err := replay.RunRemote(ctx, cfg, rounds)
		return err
	}
	return runLocal(ctx, cfg, rounds)
}

func runLocal(ctx context.Context, cfg *replay.Config, rounds []model.Round) error {
	appCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := logger.SetLevelString(appCfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}

	store, err := repository.Open(ctx, appCfg.Store, clock.Real{})
	if err != nil {
		return fmt.Errorf("opening %s store: %w", appCfg.Store.Driver, err)
	}
	engine, err := service.NewEngine(store, appCfg.Rating, rating.WithLogger(logger.Named("rating")))
	if err != nil {
		_ = store.Close()
		return err
	}
	svc := service.New(store, engine, service.WithMaxLeaderboardLimit(max(cfg.TopN, 1)))
	defer func() { _ = store.Close() }()

	_, err = replay.RunLocal(ctx, cfg, svc, rounds)
	return err
}
