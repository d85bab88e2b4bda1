package outcome

import (
	"context"
	"fmt"
)

// FeatureWeighted is the pairwise strategy with each side's delta scaled by how
// convincingly that player's round statistics match the result.
type FeatureWeighted struct {
	clf Classifier
}

// NewFeatureWeighted returns the weighted strategy over clf.
func NewFeatureWeighted(clf Classifier) (*FeatureWeighted, error) {
	if clf == nil {
		return nil, ErrNoClassifier
	}
	return &FeatureWeighted{clf: clf}, nil
}

// Name implements Model.
func (*FeatureWeighted) Name() string { return StrategyWeighted }

// Pairings implements Model. Every player's weight is computed once and divided
// evenly over the opposing pairings so the total round weight stays in [0,1].
// Any invalid feature vector fails the whole round.
func (m *FeatureWeighted) Pairings(ctx context.Context, sides Sides) ([]Pairing, error) {
	if err := sides.validate(); err != nil {
		return nil, err
	}

	winW := make([]float64, len(sides.Winners))
	for i, w := range sides.Winners {
		p, err := m.clf.WinProbability(w.Features)
		if err != nil {
			return nil, fmt.Errorf("winner %q: %w", w.PlayerID, err)
		}
		winW[i] = p / float64(len(sides.Losers))
	}
	lossW := make([]float64, len(sides.Losers))
	for j, l := range sides.Losers {
		p, err := m.clf.WinProbability(l.Features)
		if err != nil {
			return nil, fmt.Errorf("loser %q: %w", l.PlayerID, err)
		}
		lossW[j] = (1 - p) / float64(len(sides.Winners))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]Pairing, 0, len(sides.Winners)*len(sides.Losers))
	for i, w := range sides.Winners {
		for j, l := range sides.Losers {
			out = append(out, Pairing{
				Probability:  Probability(w.Rating, l.Rating),
				Winners:      []string{w.PlayerID},
				Losers:       []string{l.PlayerID},
				WinnerWeight: winW[i],
				LoserWeight:  lossW[j],
			})
		}
	}
	return out, nil
}
