package guard

import "errors"

// ErrStaleRound is returned when a round is not strictly after the last applied one.
var ErrStaleRound = errors.New("stale round")
