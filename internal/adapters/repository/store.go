// Package repository defines the rating store interface, its driver registry and
// the in-memory backend.
package repository

import (
	"context"

	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/rating"
	"github.com/okian/lighthouse/internal/domain/types"
)

// Store persists current ratings plus the append-only rating history.
// Reads never observe a partially applied commit.
type Store interface {
	rating.Store

	// Get returns a player. ok is false for a player never seen.
	Get(ctx context.Context, id string) (p model.Player, ok bool, err error)

	// Rank returns the leaderboard position of a player over all players.
	// ErrNotFound is returned for a player never seen.
	Rank(ctx context.Context, id string) (types.Entry, error)

	// Top returns up to n players with at least minMatches matches, by rating desc
	// then first-seen order. n < 1 yields ErrInvalidLimit.
	Top(ctx context.Context, n, minMatches int) ([]types.Entry, error)

	// History returns the rating time series of playerID, or of every player when
	// playerID is empty, in commit order.
	History(ctx context.Context, playerID string) ([]model.HistoryPoint, error)

	// Snapshot returns the full rating state as of the last commit at or before at.
	// ErrNotFound is returned when nothing was committed by then.
	Snapshot(ctx context.Context, at model.Stamp) (model.Snapshot, error)

	// Count returns the number of players tracked.
	Count(ctx context.Context) (int, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// CheckCommit validates c against the committed stamp. It must run in the same
// critical section or transaction that applies c.
func CheckCommit(last model.Stamp, committed bool, c model.Commit) error {
	if len(c.Players) == 0 {
		return ErrEmptyCommit
	}
	if b := c.Base; b != nil && (b.Committed != committed || (committed && b.Last.Compare(last) != 0)) {
		return ErrConflict
	}
	if committed && !c.Stamp.After(last) {
		return ErrOutOfOrder
	}
	return nil
}

// BuildSnapshot reduces history rows in commit order to the latest rating per
// player at or before at.
func BuildSnapshot(points []model.HistoryPoint, at model.Stamp) (model.Snapshot, error) {
	snap := model.Snapshot{Ratings: make(map[string]float64)}
	found := false
	for _, p := range points {
		if p.Stamp.After(at) {
			continue
		}
		snap.Ratings[p.PlayerID] = p.Rating
		if !found || p.Stamp.After(snap.Stamp) {
			snap.Stamp = p.Stamp
		}
		found = true
	}
	if !found {
		return model.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// rankEntries assigns positional ranks starting at 1.
func rankEntries(entries []types.Entry) {
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
