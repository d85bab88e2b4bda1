package aggregator

import "errors"

// ErrDegenerateRound is returned when a round has no winners or no losers once draws are removed.
var ErrDegenerateRound = errors.New("degenerate round")
