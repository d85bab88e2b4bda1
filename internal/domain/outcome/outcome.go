// Package outcome computes the expected-outcome pairings a round is scored with.
package outcome

import (
	"context"
	"fmt"
	"math"
)

// Strategy names accepted by New.
const (
	StrategyAggregate = "aggregate"
	StrategyPairwise  = "pairwise"
	StrategyWeighted  = "weighted"
)

// Probability is the logistic expected score of winner against loser.
// A result well predicted by the ratings gives a value close to 1.
func Probability(winner, loser float64) float64 {
	return 1 / (1 + math.Pow(10, (loser-winner)/400))
}

// Competitor is one player on one side of a round.
type Competitor struct {
	PlayerID string
	Rating   float64
	Features map[string]float64
}

// Sides are the two partitions of a round with their current ratings.
type Sides struct {
	Winners []Competitor
	Losers  []Competitor
}

func (s Sides) validate() error {
	if len(s.Winners) == 0 || len(s.Losers) == 0 {
		return fmt.Errorf("%w: %d winners, %d losers", ErrEmptySide, len(s.Winners), len(s.Losers))
	}
	return nil
}

// Pairing is one probability and the players it credits.
// Every id in Winners receives k*g*(1-p)*WinnerWeight and every id in Losers
// receives k*g*(p-1)*LoserWeight.
type Pairing struct {
	Probability  float64
	Winners      []string
	Losers       []string
	WinnerWeight float64
	LoserWeight  float64
}

// Model turns the sides of a round into pairings.
type Model interface {
	Name() string
	// Pairings honors ctx for cancellation.
	Pairings(ctx context.Context, sides Sides) ([]Pairing, error)
}

// New builds a model by strategy name.
func New(name string, opts ...Option) (Model, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	switch name {
	case StrategyAggregate, "":
		return Aggregate{}, nil
	case StrategyPairwise:
		return Pairwise{Normalize: o.normalize}, nil
	case StrategyWeighted:
		if o.classifier == nil {
			return nil, ErrNoClassifier
		}
		return &FeatureWeighted{clf: o.classifier}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

func ids(cs []Competitor) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.PlayerID
	}
	return out
}

func meanRating(cs []Competitor) float64 {
	var sum float64
	for _, c := range cs {
		sum += c.Rating
	}
	return sum / float64(len(cs))
}
