package outcome

import "context"

// Aggregate scores the round once, team mean against team mean.
type Aggregate struct{}

// Name implements Model.
func (Aggregate) Name() string { return StrategyAggregate }

// Pairings implements Model.
func (Aggregate) Pairings(_ context.Context, sides Sides) ([]Pairing, error) {
	if err := sides.validate(); err != nil {
		return nil, err
	}
	return []Pairing{{
		Probability:  Probability(meanRating(sides.Winners), meanRating(sides.Losers)),
		Winners:      ids(sides.Winners),
		Losers:       ids(sides.Losers),
		WinnerWeight: 1,
		LoserWeight:  1,
	}}, nil
}
