// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRound marks a round that is structurally unusable.
var ErrInvalidRound = errors.New("invalid round")

// Outcome is a player's result for one round.
type Outcome string

// Outcomes as they appear in ingested match data.
const (
	Win  Outcome = "Win"
	Loss Outcome = "Loss"
	Draw Outcome = "Draw"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case Win, Loss, Draw:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown outcome labels.
func (o *Outcome) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v := Outcome(s)
	if !v.Valid() {
		return fmt.Errorf("unknown outcome %q", s)
	}
	*o = v
	return nil
}

// PlayerResult is one player's line in a round.
type PlayerResult struct {
	PlayerID string             `json:"player_id"`
	Team     string             `json:"team"`
	Outcome  Outcome            `json:"result"`
	Features map[string]float64 `json:"features,omitempty"` // nil when no stats were recorded
}

// Round is a single round of a match, the unit the rating engine applies.
type Round struct {
	MatchID   string         `json:"match_id"`
	Index     int            `json:"round"`
	Timestamp time.Time      `json:"timestamp"`
	Results   []PlayerResult `json:"results"`
}

// Stamp returns the ordering key of the round.
func (r Round) Stamp() Stamp {
	return Stamp{Time: r.Timestamp, Round: r.Index}
}

// String identifies the round in logs.
func (r Round) String() string {
	return fmt.Sprintf("%s#%d@%s", r.MatchID, r.Index, r.Timestamp.UTC().Format(time.RFC3339))
}

// Validate checks the fields every round must carry. A round of only draws is
// valid here; the aggregator reports it as degenerate.
func (r Round) Validate() error {
	switch {
	case r.MatchID == "":
		return fmt.Errorf("%w: match_id is required", ErrInvalidRound)
	case r.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidRound)
	case len(r.Results) == 0:
		return fmt.Errorf("%w: results are empty", ErrInvalidRound)
	}
	for i, res := range r.Results {
		if res.PlayerID == "" {
			return fmt.Errorf("%w: result %d has no player_id", ErrInvalidRound, i)
		}
		if !res.Outcome.Valid() {
			return fmt.Errorf("%w: result %d has outcome %q", ErrInvalidRound, i, res.Outcome)
		}
	}
	return nil
}
