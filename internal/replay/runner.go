package replay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/rating"
	"github.com/okian/lighthouse/internal/domain/types"
	"github.com/okian/lighthouse/pkg/logger"
)

const outputPermission = 0o600

// Processor applies rounds in order and answers leaderboard queries.
// *service.Service satisfies it.
type Processor interface {
	Process(ctx context.Context, rounds []model.Round) (rating.Report, error)
	Top(ctx context.Context, n, minMatches int) ([]types.Entry, error)
}

// LoadRounds reads cfg.Input, or generates cfg.Season when no input is set.
func LoadRounds(ctx context.Context, cfg *Config) ([]model.Round, error) {
	if cfg.Input == "" {
		logger.Get().Info(ctx, "generating synthetic season",
			logger.Int("players", cfg.Season.Players),
			logger.Int("matches", cfg.Season.Matches),
			logger.Int("rounds_per_match", cfg.Season.RoundsPerMatch),
			logger.Int64("seed", cfg.Season.Seed),
		)
		return Generate(cfg.Season)
	}
	f, err := os.Open(filepath.Clean(cfg.Input))
	if err != nil {
		return nil, fmt.Errorf("opening rounds: %w", err)
	}
	defer f.Close()
	return ReadRounds(f)
}

// RunLocal applies rounds through p and verifies the resulting leaderboard.
func RunLocal(ctx context.Context, cfg *Config, p Processor, rounds []model.Round) (*Stats, error) {
	stats := &Stats{StartTime: time.Now(), RoundsLoaded: len(rounds)}

	rep, err := p.Process(ctx, rounds)
	stats.Applied = rep.Applied
	stats.Stale = rep.Stale
	stats.Degenerate = rep.Degenerate
	stats.Malformed = rep.Malformed
	if err != nil {
		return stats, fmt.Errorf("processing rounds: %w", err)
	}

	if cfg.TopN > 0 {
		entries, err := p.Top(ctx, cfg.TopN, 0)
		if err != nil {
			return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
		}
		if err := VerifyLeaderboard(entries); err != nil {
			return stats, err
		}
		stats.LeaderboardEntries = len(entries)
		logTop(ctx, entries)
	}

	finish(ctx, cfg, rounds, stats)
	return stats, nil
}

// RunRemote submits rounds one at a time to a running service and verifies
// its leaderboard afterwards. Rounds are applied synchronously so the
// service sees them in file order.
func RunRemote(ctx context.Context, cfg *Config, rounds []model.Round) (*Stats, error) {
	stats := &Stats{StartTime: time.Now(), RoundsLoaded: len(rounds)}
	client := newClient(cfg.BaseURL, cfg.Timeout)

	if err := client.ready(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	if err := submitRounds(ctx, cfg, client, rounds, stats); err != nil {
		return stats, fmt.Errorf("round submission failed: %w", err)
	}

	if cfg.TopN > 0 {
		entries, err := client.leaderboard(ctx, cfg.TopN)
		if err != nil {
			return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
		}
		if err := VerifyLeaderboard(entries); err != nil {
			return stats, err
		}
		stats.LeaderboardEntries = len(entries)
		logTop(ctx, entries)
	}

	finish(ctx, cfg, rounds, stats)
	return stats, nil
}

func finish(ctx context.Context, cfg *Config, rounds []model.Round, stats *Stats) {
	if cfg.OutputFile != "" {
		if err := saveRounds(cfg.OutputFile, rounds); err != nil {
			logger.Get().Warn(ctx, "failed to save rounds to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logger.Get().Info(ctx, "replay completed",
		logger.Int("loaded", stats.RoundsLoaded),
		logger.Int("applied", stats.Applied),
		logger.Int("stale", stats.Stale),
		logger.Int("degenerate", stats.Degenerate),
		logger.Int("malformed", stats.Malformed),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
	)
}

func saveRounds(path string, rounds []model.Round) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputPermission)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := WriteRounds(f, rounds); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func logTop(ctx context.Context, entries []types.Entry) {
	for _, e := range entries {
		logger.Get().Info(ctx, "leaderboard",
			logger.Int("rank", e.Rank),
			logger.String("player_id", e.PlayerID),
			logger.Float64("rating", e.Rating),
			logger.Int("matches", e.MatchesPlayed),
		)
	}
}

// VerifyLeaderboard checks that ranks run 1..n and ratings never increase.
func VerifyLeaderboard(entries []types.Entry) error {
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("leaderboard entry %d has rank %d", i, e.Rank)
		}
		if i > 0 && e.Rating > entries[i-1].Rating {
			return fmt.Errorf("leaderboard not properly sorted: entry %d rates above entry %d", i, i-1)
		}
	}
	return nil
}
