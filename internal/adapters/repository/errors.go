package repository

import (
	"errors"
	"fmt"

	"github.com/okian/lighthouse/internal/domain/rating"
)

// Sentinel kinds for rating store errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	// ErrUnavailable wraps every backend failure on load, commit or query.
	ErrUnavailable = errors.New("rating store unavailable")
	// ErrOutOfOrder is returned when a commit is not after the last committed stamp.
	ErrOutOfOrder = errors.New("commit is not after last committed round")
	// ErrEmptyCommit is returned for a commit without players.
	ErrEmptyCommit = errors.New("commit has no players")
	// ErrConflict is returned when the store moved past a commit's base version.
	ErrConflict = rating.ErrConflict
	ErrClosed   = fmt.Errorf("%w: closed", ErrUnavailable)
)

// Unavailable wraps a backend error with ErrUnavailable and the failing operation.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
