package outcome

import "context"

// Pairwise scores every winner against every loser.
type Pairwise struct {
	// Normalize divides a winner's weight by the number of losers and a loser's
	// weight by the number of winners.
	Normalize bool
}

// Name implements Model.
func (Pairwise) Name() string { return StrategyPairwise }

// Pairings implements Model.
func (m Pairwise) Pairings(ctx context.Context, sides Sides) ([]Pairing, error) {
	if err := sides.validate(); err != nil {
		return nil, err
	}
	ww, lw := 1.0, 1.0
	if m.Normalize {
		ww = 1 / float64(len(sides.Losers))
		lw = 1 / float64(len(sides.Winners))
	}

	out := make([]Pairing, 0, len(sides.Winners)*len(sides.Losers))
	for _, w := range sides.Winners {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, l := range sides.Losers {
			out = append(out, Pairing{
				Probability:  Probability(w.Rating, l.Rating),
				Winners:      []string{w.PlayerID},
				Losers:       []string{l.PlayerID},
				WinnerWeight: ww,
				LoserWeight:  lw,
			})
		}
	}
	return out, nil
}
