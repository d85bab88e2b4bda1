// Package aggregator splits a round into its winning and losing sides.
package aggregator

import (
	"fmt"

	"github.com/okian/lighthouse/internal/domain/model"
)

// Partition is a round reduced to two sides.
// Ids keep the order of their first appearance in the round.
type Partition struct {
	Winners []string
	Losers  []string
	// Results holds the first result line seen for every id on either side.
	Results map[string]model.PlayerResult
}

// Participants returns winners followed by losers.
func (p Partition) Participants() []string {
	out := make([]string, 0, len(p.Winners)+len(p.Losers))
	out = append(out, p.Winners...)
	return append(out, p.Losers...)
}

// Split partitions round. Draws are dropped; a player listed more than once counts once.
// A player reported both as a winner and as a loser makes the round degenerate.
func Split(round model.Round) (Partition, error) {
	p := Partition{Results: make(map[string]model.PlayerResult, len(round.Results))}
	side := make(map[string]model.Outcome, len(round.Results))

	for _, r := range round.Results {
		if r.Outcome == model.Draw {
			continue
		}
		if r.PlayerID == "" {
			return Partition{}, fmt.Errorf("%w: %s has a result without player id", ErrDegenerateRound, round)
		}
		if prev, seen := side[r.PlayerID]; seen {
			if prev != r.Outcome {
				return Partition{}, fmt.Errorf("%w: %s lists %q as both winner and loser", ErrDegenerateRound, round, r.PlayerID)
			}
			continue
		}
		side[r.PlayerID] = r.Outcome
		p.Results[r.PlayerID] = r
		switch r.Outcome {
		case model.Win:
			p.Winners = append(p.Winners, r.PlayerID)
		case model.Loss:
			p.Losers = append(p.Losers, r.PlayerID)
		default:
			return Partition{}, fmt.Errorf("%w: %s has unknown outcome %q", ErrDegenerateRound, round, r.Outcome)
		}
	}

	if len(p.Winners) == 0 || len(p.Losers) == 0 {
		return Partition{}, fmt.Errorf("%w: %s has %d winners and %d losers", ErrDegenerateRound, round, len(p.Winners), len(p.Losers))
	}
	return p, nil
}

// Register adds every id unknown to players at the default rating, assigning
// first-seen sequence numbers from next. It returns the next free sequence number
// and the ids that were created.
func Register(players map[string]model.Player, ids []string, next int64) (int64, []string) {
	var created []string
	for _, id := range ids {
		if _, ok := players[id]; ok {
			continue
		}
		players[id] = model.NewPlayer(id, next)
		next++
		created = append(created, id)
	}
	return next, created
}
