// Package guard rejects rounds that would be applied out of order.
package guard

import (
	"fmt"
	"time"

	"github.com/okian/lighthouse/internal/domain/model"
)

// DefaultEpoch is the starting point of the rating history.
var DefaultEpoch = time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)

// StaleError describes a rejected round.
type StaleError struct {
	Round model.Stamp
	Last  model.Stamp
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("%s: round %s is not after last applied %s", ErrStaleRound, e.Round, e.Last)
}

// Unwrap lets errors.Is match ErrStaleRound.
func (e *StaleError) Unwrap() error { return ErrStaleRound }

// Guard enforces strictly increasing round stamps. It never reorders input.
type Guard struct {
	epoch time.Time
}

// New creates a guard.
func New(opts ...Option) *Guard {
	g := &Guard{epoch: DefaultEpoch}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Epoch is the last-applied stamp of an empty store.
func (g *Guard) Epoch() model.Stamp {
	return model.EpochStamp(g.epoch)
}

// Last resolves the stamp to compare against: the committed one, or the epoch when
// nothing has been committed yet.
func (g *Guard) Last(committed model.Stamp, ok bool) model.Stamp {
	if !ok {
		return g.Epoch()
	}
	return committed
}

// Admit returns nil when round is strictly after last.
func (g *Guard) Admit(last model.Stamp, round model.Round) error {
	s := round.Stamp()
	if !s.After(last) {
		return &StaleError{Round: s.UTC(), Last: last.UTC()}
	}
	return nil
}
