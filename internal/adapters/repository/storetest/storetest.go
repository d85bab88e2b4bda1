// Package storetest is the conformance suite every rating store backend runs.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okian/lighthouse/internal/adapters/repository"
	"github.com/okian/lighthouse/internal/domain/model"
)

// Factory opens a fresh, empty store. reopen, when not nil, closes nothing and
// opens a second store over the same persisted data.
type Factory func(t *testing.T) (s repository.Store, reopen func() repository.Store)

// Base is the match time of the first committed round in the suite.
var Base = time.Date(2023, 3, 4, 20, 0, 0, 0, time.UTC)

func stamp(minutes, round int) model.Stamp {
	return model.Stamp{Time: Base.Add(time.Duration(minutes) * time.Minute), Round: round}
}

func player(id string, rating float64, matches int, seq int64) model.Player {
	return model.Player{ID: id, Rating: rating, MatchesPlayed: matches, LastMatchID: "m", Seq: seq}
}

// seed commits three rounds:
//
//	r1 (0m/1): a=1016 b=984
//	r2 (0m/2): a=1030 c=986
//	r3 (5m/1): b=1000 c=970
func seed(t *testing.T, s repository.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, model.Commit{Stamp: stamp(0, 1), MatchID: "m1", NextSeq: 2,
		Players: []model.Player{player("a", 1016, 1, 0), player("b", 984, 1, 1)}}))
	require.NoError(t, s.Commit(ctx, model.Commit{Stamp: stamp(0, 2), MatchID: "m1", NextSeq: 3,
		Players: []model.Player{player("a", 1030, 1, 0), player("c", 986, 1, 2)}}))
	require.NoError(t, s.Commit(ctx, model.Commit{Stamp: stamp(5, 1), MatchID: "m2", NextSeq: 3,
		Players: []model.Player{player("b", 1000, 2, 1), player("c", 970, 2, 2)}}))
}

// Run exercises the Store contract against the backend built by open.
func Run(t *testing.T, open Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty store loads without error", func(t *testing.T) {
		s, _ := open(t)
		st, ok, err := s.Load(ctx, "a")
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, st.Players)
		require.EqualValues(t, 0, st.NextSeq)

		_, found, err := s.Get(ctx, "a")
		require.NoError(t, err)
		require.False(t, found)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		require.Zero(t, n)
		require.NoError(t, s.Ping(ctx))
	})

	t.Run("commit then load", func(t *testing.T) {
		s, _ := open(t)
		seed(t, s)

		st, ok, err := s.Load(ctx, "a", "b", "zzz")
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, st.Last.Time.Equal(stamp(5, 1).Time))
		require.Equal(t, 1, st.Last.Round)
		require.EqualValues(t, 3, st.NextSeq)
		require.Len(t, st.Players, 2)
		require.InDelta(t, 1030, st.Players["a"].Rating, 1e-9)
		require.Equal(t, 2, st.Players["b"].MatchesPlayed)
		require.EqualValues(t, 1, st.Players["b"].Seq)

		p, found, err := s.Get(ctx, "c")
		require.NoError(t, err)
		require.True(t, found)
		require.InDelta(t, 970, p.Rating, 1e-9)
		require.Equal(t, "m", p.LastMatchID)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, n)
	})

	t.Run("win and loss counts persist", func(t *testing.T) {
		s, _ := open(t)
		w := player("w", 1030, 2, 0)
		w.Wins, w.Losses = 3, 1
		l := player("l", 970, 2, 1)
		l.Losses = 4
		require.NoError(t, s.Commit(ctx, model.Commit{Stamp: stamp(0, 1), NextSeq: 2, Players: []model.Player{w, l}}))

		p, _, err := s.Get(ctx, "w")
		require.NoError(t, err)
		require.Equal(t, 3, p.Wins)
		require.Equal(t, 1, p.Losses)

		e, err := s.Rank(ctx, "w")
		require.NoError(t, err)
		require.Equal(t, 4, e.Wins+e.Losses)
		require.InDelta(t, 0.75, e.WinRatio, 1e-9)

		top, err := s.Top(ctx, 2, 0)
		require.NoError(t, err)
		require.Len(t, top, 2)
		require.Equal(t, 4, top[1].Losses)
		require.Zero(t, top[1].WinRatio)
	})

	t.Run("commits must advance", func(t *testing.T) {
		s, _ := open(t)
		seed(t, s)

		err := s.Commit(ctx, model.Commit{Stamp: stamp(5, 1), Players: []model.Player{player("a", 1, 1, 0)}})
		require.True(t, errors.Is(err, repository.ErrOutOfOrder), "got %v", err)
		err = s.Commit(ctx, model.Commit{Stamp: stamp(1, 0), Players: []model.Player{player("a", 1, 1, 0)}})
		require.True(t, errors.Is(err, repository.ErrOutOfOrder), "got %v", err)
		err = s.Commit(ctx, model.Commit{Stamp: stamp(9, 1)})
		require.True(t, errors.Is(err, repository.ErrEmptyCommit), "got %v", err)

		p, _, err := s.Get(ctx, "a")
		require.NoError(t, err)
		require.InDelta(t, 1030, p.Rating, 1e-9)
	})

	t.Run("commits are conditional on their base", func(t *testing.T) {
		s, _ := open(t)
		err := s.Commit(ctx, model.Commit{Stamp: stamp(0, 1), Base: &model.Version{Last: stamp(0, 1), Committed: true},
			Players: []model.Player{player("a", 1, 1, 0)}})
		require.True(t, errors.Is(err, repository.ErrConflict), "got %v", err)

		st, ok, err := s.Load(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Commit(ctx, model.Commit{Stamp: stamp(0, 1), Base: st.Version(ok),
			Players: []model.Player{player("a", 1016, 1, 0)}}))

		// st is now behind the store.
		err = s.Commit(ctx, model.Commit{Stamp: stamp(9, 1), Base: st.Version(ok),
			Players: []model.Player{player("a", 1, 2, 0)}})
		require.True(t, errors.Is(err, repository.ErrConflict), "got %v", err)
		err = s.Commit(ctx, model.Commit{Stamp: stamp(9, 1), Base: &model.Version{Last: stamp(0, 2), Committed: true},
			Players: []model.Player{player("a", 1, 2, 0)}})
		require.True(t, errors.Is(err, repository.ErrConflict), "got %v", err)

		p, _, err := s.Get(ctx, "a")
		require.NoError(t, err)
		require.InDelta(t, 1016, p.Rating, 1e-9)

		st, ok, err = s.Load(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Commit(ctx, model.Commit{Stamp: stamp(9, 1), Base: st.Version(ok),
			Players: []model.Player{player("a", 1030, 2, 0)}}))
	})

	t.Run("top orders by rating then first seen", func(t *testing.T) {
		s, _ := open(t)
		require.NoError(t, s.Commit(ctx, model.Commit{Stamp: stamp(0, 1), NextSeq: 4, Players: []model.Player{
			player("late", 1100, 3, 3), player("early", 1100, 3, 0), player("low", 900, 3, 1), player("new", 1200, 0, 2),
		}}))

		top, err := s.Top(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, top, 4)
		ids := []string{top[0].PlayerID, top[1].PlayerID, top[2].PlayerID, top[3].PlayerID}
		require.Equal(t, []string{"new", "early", "late", "low"}, ids)
		require.Equal(t, []int{1, 2, 3, 4}, []int{top[0].Rank, top[1].Rank, top[2].Rank, top[3].Rank})

		filtered, err := s.Top(ctx, 2, 1)
		require.NoError(t, err)
		require.Len(t, filtered, 2)
		require.Equal(t, "early", filtered[0].PlayerID)
		require.Equal(t, 1, filtered[0].Rank)
		require.Equal(t, 3, filtered[0].MatchesPlayed)

		_, err = s.Top(ctx, 0, 0)
		require.True(t, errors.Is(err, repository.ErrInvalidLimit))

		e, err := s.Rank(ctx, "late")
		require.NoError(t, err)
		require.Equal(t, 3, e.Rank)
		_, err = s.Rank(ctx, "ghost")
		require.True(t, errors.Is(err, repository.ErrNotFound))
	})

	t.Run("history is append only and ordered", func(t *testing.T) {
		s, _ := open(t)
		seed(t, s)

		all, err := s.History(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 6)
		for i := 1; i < len(all); i++ {
			require.False(t, all[i-1].Stamp.After(all[i].Stamp), "row %d out of order", i)
		}

		a, err := s.History(ctx, "a")
		require.NoError(t, err)
		require.Len(t, a, 2)
		require.InDelta(t, 1016, a[0].Rating, 1e-9)
		require.InDelta(t, 1030, a[1].Rating, 1e-9)
		require.Equal(t, 2, a[1].Stamp.Round)

		none, err := s.History(ctx, "ghost")
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("snapshot reconstructs past state", func(t *testing.T) {
		s, _ := open(t)
		seed(t, s)

		snap, err := s.Snapshot(ctx, stamp(0, 2))
		require.NoError(t, err)
		require.Equal(t, 2, snap.Stamp.Round)
		require.Equal(t, map[string]float64{"a": 1030, "b": 984, "c": 986}, snap.Ratings)

		snap, err = s.Snapshot(ctx, stamp(3, 0))
		require.NoError(t, err)
		require.True(t, snap.Stamp.Time.Equal(Base))
		require.InDelta(t, 984, snap.Ratings["b"], 1e-9)

		latest, err := s.Snapshot(ctx, stamp(60, 0))
		require.NoError(t, err)
		require.InDelta(t, 1000, latest.Ratings["b"], 1e-9)

		_, err = s.Snapshot(ctx, stamp(-1, 0))
		require.True(t, errors.Is(err, repository.ErrNotFound))
	})

	t.Run("csv export", func(t *testing.T) {
		s, _ := open(t)
		seed(t, s)

		var buf bytes.Buffer
		require.NoError(t, repository.ExportHistoryCSV(ctx, s, "b", &buf))
		points, err := repository.ReadHistoryCSV(&buf)
		require.NoError(t, err)
		require.Len(t, points, 2)
		require.Equal(t, "b", points[1].PlayerID)
		require.InDelta(t, 1000, points[1].Rating, 1e-9)
	})

	t.Run("state survives reopen", func(t *testing.T) {
		s, reopen := open(t)
		if reopen == nil {
			t.Skip("backend is not persistent")
		}
		seed(t, s)
		require.NoError(t, s.Close())

		s2 := reopen()
		defer func() { _ = s2.Close() }()

		st, ok, err := s2.Load(ctx, "a", "b", "c")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 1, st.Last.Round)
		require.EqualValues(t, 3, st.NextSeq)
		require.InDelta(t, 970, st.Players["c"].Rating, 1e-9)

		all, err := s2.History(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 6)

		require.True(t, errors.Is(s2.Commit(ctx, model.Commit{Stamp: stamp(5, 1),
			Players: []model.Player{player("a", 1, 1, 0)}}), repository.ErrOutOfOrder))
	})
}

// SharedFactory opens two store handles over the same persisted data.
type SharedFactory func(t *testing.T) (a, b repository.Store)

// RunShared checks that two handles writing the same data never lose a commit.
func RunShared(t *testing.T, open SharedFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("a writer with a stale load is refused", func(t *testing.T) {
		a, b := open(t)

		stA, okA, err := a.Load(ctx, "p")
		require.NoError(t, err)
		require.Empty(t, stA.Players)

		stB, okB, err := b.Load(ctx, "p")
		require.NoError(t, err)
		require.NoError(t, b.Commit(ctx, model.Commit{Stamp: stamp(0, 1), Base: stB.Version(okB), NextSeq: 1,
			Players: []model.Player{player("p", 1016, 1, 0)}}))

		err = a.Commit(ctx, model.Commit{Stamp: stamp(60, 1), Base: stA.Version(okA), NextSeq: 1,
			Players: []model.Player{player("p", 984, 1, 0)}})
		require.True(t, errors.Is(err, repository.ErrConflict), "got %v", err)

		p, found, err := a.Get(ctx, "p")
		require.NoError(t, err)
		require.True(t, found)
		require.InDelta(t, 1016, p.Rating, 1e-9)

		stA, okA, err = a.Load(ctx, "p")
		require.NoError(t, err)
		require.True(t, okA)
		require.InDelta(t, 1016, stA.Players["p"].Rating, 1e-9)
		require.NoError(t, a.Commit(ctx, model.Commit{Stamp: stamp(60, 1), Base: stA.Version(okA), NextSeq: 1,
			Players: []model.Player{player("p", 1000, 2, 0)}}))

		h, err := b.History(ctx, "p")
		require.NoError(t, err)
		require.Len(t, h, 2)
		require.InDelta(t, 1016, h[0].Rating, 1e-9)
		require.InDelta(t, 1000, h[1].Rating, 1e-9)
	})
}
