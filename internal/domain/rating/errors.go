package rating

import (
	"errors"

	"github.com/okian/lighthouse/internal/domain/aggregator"
	"github.com/okian/lighthouse/internal/domain/guard"
	"github.com/okian/lighthouse/internal/domain/outcome"
	"github.com/okian/lighthouse/pkg/metrics"
)

// ErrInvalidFactor is returned by New for a non-positive k or negative g.
var ErrInvalidFactor = errors.New("invalid rating factor")

// ErrConflict is returned by a Store when another writer committed after the
// state a commit was computed against was loaded.
var ErrConflict = errors.New("concurrent commit")

// IsSkippable reports whether err only concerns the round itself, so a run can
// drop the round and continue. Store and context errors are not skippable.
func IsSkippable(err error) bool {
	return Reason(err) != ""
}

// Reason classifies a skippable error for diagnostics. It returns "" for errors
// that must stop the run.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, guard.ErrStaleRound):
		return metrics.ReasonStale
	case errors.Is(err, aggregator.ErrDegenerateRound), errors.Is(err, outcome.ErrEmptySide):
		return metrics.ReasonDegenerate
	case errors.Is(err, outcome.ErrMalformedFeatures):
		return metrics.ReasonMalformed
	}
	return ""
}
