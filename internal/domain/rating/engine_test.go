package rating_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/lighthouse/internal/domain/guard"
	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/outcome"
	rating "github.com/okian/lighthouse/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

var errDown = errors.New("backend down")

// fakeStore keeps committed state in maps and can be told to fail.
type fakeStore struct {
	mu        sync.Mutex
	players   map[string]model.Player
	last      model.Stamp
	committed bool
	next      int64
	commits   int
	failLoad  bool
	failWrite bool
	// racer, when set, runs as a second writer just before each commit lands.
	racer func(s *fakeStore)
}

func newFakeStore() *fakeStore {
	return &fakeStore{players: map[string]model.Player{}}
}

func (s *fakeStore) Load(_ context.Context, ids ...string) (model.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad {
		return model.State{}, false, errDown
	}
	st := model.State{Last: s.last, NextSeq: s.next, Players: map[string]model.Player{}}
	for _, id := range ids {
		if p, ok := s.players[id]; ok {
			st.Players[id] = p
		}
	}
	return st, s.committed, nil
}

func (s *fakeStore) Commit(_ context.Context, c model.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return errDown
	}
	if s.racer != nil {
		s.racer(s)
	}
	if b := c.Base; b != nil && (b.Committed != s.committed || (s.committed && b.Last.Compare(s.last) != 0)) {
		return rating.ErrConflict
	}
	for _, p := range c.Players {
		s.players[p.ID] = p
	}
	s.last, s.next, s.committed = c.Stamp, c.NextSeq, true
	s.commits++
	return nil
}

func (s *fakeStore) rating(id string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[id]; ok {
		return p.Rating
	}
	return model.DefaultRating
}

var matchTime = time.Date(2023, 3, 4, 20, 0, 0, 0, time.UTC)

func mkRound(match string, idx int, at time.Time, results ...model.PlayerResult) model.Round {
	return model.Round{MatchID: match, Index: idx, Timestamp: at, Results: results}
}

func win(id string) model.PlayerResult  { return model.PlayerResult{PlayerID: id, Outcome: model.Win} }
func loss(id string) model.PlayerResult { return model.PlayerResult{PlayerID: id, Outcome: model.Loss} }
func draw(id string) model.PlayerResult { return model.PlayerResult{PlayerID: id, Outcome: model.Draw} }

func TestEngineNew(t *testing.T) {
	Convey("Given engine construction", t, func() {
		Convey("When k is not positive", func() {
			_, err := rating.New(newFakeStore(), rating.WithKFactor(0))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, rating.ErrInvalidFactor), ShouldBeTrue)
			})
		})

		Convey("When no store is given", func() {
			_, err := rating.New(nil)

			Convey("Then it is rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When defaults are used", func() {
			e, err := rating.New(newFakeStore())

			Convey("Then the pairwise strategy is selected", func() {
				So(err, ShouldBeNil)
				So(e.Strategy(), ShouldEqual, outcome.StrategyPairwise)
			})
		})
	})
}

func TestEngineApply(t *testing.T) {
	ctx := context.Background()

	Convey("Given two fresh players and the aggregate strategy", t, func() {
		store := newFakeStore()
		e, err := rating.New(store, rating.WithModel(outcome.Aggregate{}), rating.WithKFactor(32), rating.WithGFactor(1))
		So(err, ShouldBeNil)

		Convey("When the first beats the second", func() {
			res, err := e.Apply(ctx, mkRound("m1", 1, matchTime, win("a"), loss("b")))

			Convey("Then the winner gains 16 and the loser drops 16", func() {
				So(err, ShouldBeNil)
				So(res.Deltas["a"], ShouldAlmostEqual, 16.0, 1e-9)
				So(res.Deltas["b"], ShouldAlmostEqual, -16.0, 1e-9)
				So(store.rating("a"), ShouldAlmostEqual, 1016.0, 1e-9)
				So(store.rating("b"), ShouldAlmostEqual, 984.0, 1e-9)
				So(res.Created, ShouldResemble, []string{"a", "b"})
			})

			Convey("Then the win and the loss are counted", func() {
				So(store.players["a"].Wins, ShouldEqual, 1)
				So(store.players["a"].Losses, ShouldEqual, 0)
				So(store.players["b"].Losses, ShouldEqual, 1)
			})

			Convey("And a second round of the match is lost", func() {
				_, err := e.Apply(ctx, mkRound("m1", 2, matchTime, loss("a"), win("b")))

				Convey("Then rounds are counted while matches are not", func() {
					So(err, ShouldBeNil)
					a := store.players["a"]
					So(a.Wins, ShouldEqual, 1)
					So(a.Losses, ShouldEqual, 1)
					So(a.RoundsPlayed(), ShouldEqual, 2)
					So(a.MatchesPlayed, ShouldEqual, 1)
					So(a.WinRatio(), ShouldEqual, 0.5)
				})
			})

			Convey("And the same round is replayed", func() {
				_, err := e.Apply(ctx, mkRound("m1", 1, matchTime, win("a"), loss("b")))

				Convey("Then it is rejected and nothing changes", func() {
					So(errors.Is(err, guard.ErrStaleRound), ShouldBeTrue)
					So(rating.IsSkippable(err), ShouldBeTrue)
					So(store.commits, ShouldEqual, 1)
					So(store.rating("a"), ShouldAlmostEqual, 1016.0, 1e-9)
				})
			})
		})
	})

	Convey("Given two 1000 winners against a 1200 loser with the pairwise strategy", t, func() {
		store := newFakeStore()
		store.players["x"] = model.Player{ID: "x", Rating: 1200, Seq: 0}
		store.next = 1
		e, _ := rating.New(store, rating.WithModel(outcome.Pairwise{}))

		Convey("When the winners win", func() {
			res, err := e.Apply(ctx, mkRound("m1", 1, matchTime, win("a"), win("b"), loss("x")))

			Convey("Then each winner collects one pairing and the loser both", func() {
				So(err, ShouldBeNil)
				So(res.Pairings, ShouldEqual, 2)
				So(res.Deltas["a"], ShouldAlmostEqual, 24.31, 0.01)
				So(res.Deltas["b"], ShouldAlmostEqual, 24.31, 0.01)
				So(res.Deltas["x"], ShouldAlmostEqual, -48.63, 0.01)
				So(res.Deltas["a"]+res.Deltas["b"]+res.Deltas["x"], ShouldAlmostEqual, 0, 1e-9)
			})

			Convey("Then new players are sequenced after the known one", func() {
				So(store.players["a"].Seq, ShouldEqual, 1)
				So(store.players["b"].Seq, ShouldEqual, 2)
				So(store.next, ShouldEqual, 3)
			})
		})
	})

	Convey("Given a round where everyone drew", t, func() {
		store := newFakeStore()
		e, _ := rating.New(store)

		_, err := e.Apply(ctx, mkRound("m1", 1, matchTime, draw("a"), draw("b")))

		Convey("Then it is degenerate and nothing is committed", func() {
			So(rating.Reason(err), ShouldEqual, "degenerate")
			So(store.commits, ShouldEqual, 0)
		})
	})

	Convey("Given the weighted strategy and a player without features", t, func() {
		store := newFakeStore()
		clf := &outcome.LogisticClassifier{Coefficients: map[string]float64{"damageDealt": 0.001}}
		m, err := outcome.New(outcome.StrategyWeighted, outcome.WithClassifier(clf))
		So(err, ShouldBeNil)
		e, _ := rating.New(store, rating.WithModel(m))

		r := mkRound("m1", 1, matchTime, win("a"), loss("b"))
		r.Results[0].Features = map[string]float64{"damageDealt": 900}
		_, err = e.Apply(ctx, r)

		Convey("Then the round is malformed and nothing is committed", func() {
			So(errors.Is(err, outcome.ErrMalformedFeatures), ShouldBeTrue)
			So(rating.Reason(err), ShouldEqual, "malformed")
			So(store.commits, ShouldEqual, 0)
		})
	})

	Convey("Given two rounds of one match", t, func() {
		store := newFakeStore()
		e, _ := rating.New(store)

		_, err1 := e.Apply(ctx, mkRound("m1", 1, matchTime, win("a"), loss("b")))
		_, err2 := e.Apply(ctx, mkRound("m1", 2, matchTime, loss("a"), win("b")))
		_, err3 := e.Apply(ctx, mkRound("m2", 1, matchTime.Add(time.Hour), win("a"), loss("b")))

		Convey("Then matches are counted, not rounds", func() {
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)
			So(err3, ShouldBeNil)
			So(store.players["a"].MatchesPlayed, ShouldEqual, 2)
			So(store.players["b"].LastMatchID, ShouldEqual, "m2")
		})
	})

	Convey("Given a store that fails to commit", t, func() {
		store := newFakeStore()
		store.failWrite = true
		e, _ := rating.New(store)

		_, err := e.Apply(ctx, mkRound("m1", 1, matchTime, win("a"), loss("b")))

		Convey("Then the error is not skippable", func() {
			So(errors.Is(err, errDown), ShouldBeTrue)
			So(rating.IsSkippable(err), ShouldBeFalse)
		})
	})
}

func TestEngineProcess(t *testing.T) {
	ctx := context.Background()

	Convey("Given a sequence with stale and degenerate rounds", t, func() {
		store := newFakeStore()
		e, _ := rating.New(store)
		rounds := []model.Round{
			mkRound("m1", 1, matchTime, win("a"), loss("b")),
			mkRound("m1", 2, matchTime, draw("a"), draw("b")),
			mkRound("m1", 3, matchTime, win("b"), loss("a")),
			mkRound("m0", 1, matchTime.Add(-time.Hour), win("a"), loss("b")),
			mkRound("m2", 1, matchTime.Add(time.Hour), win("a"), loss("c")),
		}

		rep, err := e.Process(ctx, rounds)

		Convey("Then the bad rounds are skipped and the rest applied", func() {
			So(err, ShouldBeNil)
			So(rep.Applied, ShouldEqual, 3)
			So(rep.Degenerate, ShouldEqual, 1)
			So(rep.Stale, ShouldEqual, 1)
			So(rep.Skipped(), ShouldEqual, 2)
			So(rep.Last, ShouldResemble, model.Stamp{Time: matchTime.Add(time.Hour), Round: 1})
		})

		Convey("And replaying the whole sequence again", func() {
			before := map[string]float64{"a": store.rating("a"), "b": store.rating("b"), "c": store.rating("c")}
			rep2, err := e.Process(ctx, rounds)

			Convey("Then every round is stale and state is unchanged", func() {
				So(err, ShouldBeNil)
				So(rep2.Applied, ShouldEqual, 0)
				So(rep2.Stale, ShouldEqual, 5)
				So(store.rating("a"), ShouldEqual, before["a"])
				So(store.rating("c"), ShouldEqual, before["c"])
			})
		})
	})

	Convey("Given a store that becomes unavailable", t, func() {
		store := newFakeStore()
		store.failLoad = true
		e, _ := rating.New(store)

		rep, err := e.Process(ctx, []model.Round{mkRound("m1", 1, matchTime, win("a"), loss("b"))})

		Convey("Then the run stops with the store error", func() {
			So(errors.Is(err, errDown), ShouldBeTrue)
			So(rep.Applied, ShouldEqual, 0)
		})
	})

	Convey("Given a cancelled context", t, func() {
		store := newFakeStore()
		e, _ := rating.New(store)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := e.Process(cctx, []model.Round{mkRound("m1", 1, matchTime, win("a"), loss("b"))})

		Convey("Then nothing is applied", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(store.commits, ShouldEqual, 0)
		})
	})
}

func TestEngineConcurrentWriter(t *testing.T) {
	ctx := context.Background()

	Convey("Given another writer that commits once between load and commit", t, func() {
		store := newFakeStore()
		raced := false
		store.racer = func(s *fakeStore) {
			if raced {
				return
			}
			raced = true
			s.players["a"] = model.Player{ID: "a", Rating: 1100, Seq: 0, MatchesPlayed: 1, LastMatchID: "other"}
			s.last, s.committed, s.next = model.Stamp{Time: matchTime.Add(-time.Hour), Round: 1}, true, 1
			s.commits++
		}
		e, _ := rating.New(store)

		res, err := e.Apply(ctx, mkRound("m1", 1, matchTime, win("a"), loss("b")))

		Convey("Then the round is recomputed on the other writer's state", func() {
			So(err, ShouldBeNil)
			So(store.commits, ShouldEqual, 2)
			So(store.rating("a"), ShouldBeGreaterThan, 1100)
			So(res.Ratings["a"], ShouldEqual, store.rating("a"))
			So(res.Created, ShouldResemble, []string{"b"})
			So(store.players["a"].MatchesPlayed, ShouldEqual, 2)
			So(store.rating("a")-1100, ShouldAlmostEqual, -(store.rating("b") - model.DefaultRating), 1e-9)
		})
	})

	Convey("Given another writer that always wins the race", t, func() {
		store := newFakeStore()
		tick := 0
		store.racer = func(s *fakeStore) {
			tick++
			s.last, s.committed = model.Stamp{Time: matchTime.Add(-time.Hour), Round: tick}, true
		}
		e, _ := rating.New(store, rating.WithCommitAttempts(2))

		_, err := e.Apply(ctx, mkRound("m1", 1, matchTime, win("a"), loss("b")))

		Convey("Then the conflict surfaces after the configured attempts", func() {
			So(errors.Is(err, rating.ErrConflict), ShouldBeTrue)
			So(rating.IsSkippable(err), ShouldBeFalse)
			So(tick, ShouldEqual, 2)
			So(store.commits, ShouldEqual, 0)
		})
	})

	Convey("Given another writer that commits a later round first", t, func() {
		store := newFakeStore()
		store.racer = func(s *fakeStore) {
			if !s.committed {
				s.last, s.committed = model.Stamp{Time: matchTime.Add(time.Hour), Round: 1}, true
			}
		}
		e, _ := rating.New(store)

		_, err := e.Apply(ctx, mkRound("m1", 1, matchTime, win("a"), loss("b")))

		Convey("Then the reload finds the round stale", func() {
			So(errors.Is(err, guard.ErrStaleRound), ShouldBeTrue)
			So(store.commits, ShouldEqual, 0)
			So(store.rating("a"), ShouldEqual, model.DefaultRating)
		})
	})
}
