package replay

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/okian/lighthouse/internal/domain/model"
)

// Team labels used in generated rounds.
const (
	TeamA = "A"
	TeamB = "B"
)

// drawBand is the strength margin under which a generated round is a draw.
const drawBand = 0.02

// ErrInvalidSeason is returned for a season that cannot be generated.
var ErrInvalidSeason = errors.New("invalid season")

type profile struct {
	id    string
	skill float64
}

// Generate builds a synthetic season. Every player has a hidden skill drawn
// from a standard normal; the side with the larger skill sum plus noise wins.
// The same config always yields the same rounds.
func Generate(cfg SeasonConfig) ([]model.Round, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible synthetic data

	players := make([]profile, cfg.Players)
	for i := range players {
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			return nil, fmt.Errorf("generating player id: %w", err)
		}
		players[i] = profile{id: id.String(), skill: rng.NormFloat64()}
	}

	rounds := make([]model.Round, 0, cfg.Matches*cfg.RoundsPerMatch)
	for m := 0; m < cfg.Matches; m++ {
		matchID, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			return nil, fmt.Errorf("generating match id: %w", err)
		}
		ts := cfg.Start.Add(time.Duration(m) * cfg.Interval)

		picked := rng.Perm(cfg.Players)[:2*cfg.TeamSize]
		teamA, teamB := picked[:cfg.TeamSize], picked[cfg.TeamSize:]

		for r := 1; r <= cfg.RoundsPerMatch; r++ {
			margin := skillSum(players, teamA) - skillSum(players, teamB) + rng.NormFloat64()
			round := model.Round{
				MatchID:   matchID.String(),
				Index:     r,
				Timestamp: ts,
				Results:   make([]model.PlayerResult, 0, 2*cfg.TeamSize),
			}
			round.Results = appendSide(round.Results, rng, cfg, players, teamA, TeamA, outcomeFor(margin))
			round.Results = appendSide(round.Results, rng, cfg, players, teamB, TeamB, outcomeFor(-margin))
			rounds = append(rounds, round)
		}
	}
	return rounds, nil
}

func (c SeasonConfig) validate() error {
	switch {
	case c.TeamSize < 1:
		return fmt.Errorf("%w: team size must be positive", ErrInvalidSeason)
	case c.Players < 2*c.TeamSize:
		return fmt.Errorf("%w: %d players cannot fill two teams of %d", ErrInvalidSeason, c.Players, c.TeamSize)
	case c.Matches < 0 || c.RoundsPerMatch < 1:
		return fmt.Errorf("%w: matches must not be negative and rounds per match must be positive", ErrInvalidSeason)
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalidSeason)
	case c.Start.IsZero():
		return fmt.Errorf("%w: start time is required", ErrInvalidSeason)
	}
	return nil
}

func skillSum(players []profile, idx []int) float64 {
	var s float64
	for _, i := range idx {
		s += players[i].skill
	}
	return s
}

func outcomeFor(margin float64) model.Outcome {
	switch {
	case math.Abs(margin) < drawBand:
		return model.Draw
	case margin > 0:
		return model.Win
	default:
		return model.Loss
	}
}

func appendSide(out []model.PlayerResult, rng *rand.Rand, cfg SeasonConfig, players []profile,
	idx []int, team string, oc model.Outcome,
) []model.PlayerResult {
	for _, i := range idx {
		res := model.PlayerResult{PlayerID: players[i].id, Team: team, Outcome: oc}
		if cfg.Features {
			res.Features = features(rng, players[i].skill, oc)
		}
		out = append(out, res)
	}
	return out
}

// features derives a plausible stat line from skill and the round result.
func features(rng *rand.Rand, skill float64, oc model.Outcome) map[string]float64 {
	bonus := 0.0
	if oc == model.Win {
		bonus = 1
	}
	kills := math.Max(0, math.Round(2+skill+bonus+rng.NormFloat64()))
	deaths := math.Max(0, math.Round(2-skill-bonus+rng.NormFloat64()))
	return map[string]float64{
		"kills":       kills,
		"deaths":      deaths,
		"damageDealt": math.Max(0, 150*kills+40*rng.NormFloat64()),
	}
}
