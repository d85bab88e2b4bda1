package guard_test

import (
	"errors"
	"testing"
	"time"

	guard "github.com/okian/lighthouse/internal/domain/guard"
	model "github.com/okian/lighthouse/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGuard(t *testing.T) {
	Convey("Given a guard with the default epoch", t, func() {
		g := guard.New()
		base := time.Date(2023, 3, 4, 20, 0, 0, 0, time.UTC)

		Convey("When the store is empty", func() {
			last := g.Last(model.Stamp{}, false)

			Convey("Then the epoch is used", func() {
				So(last.Time.Equal(guard.DefaultEpoch), ShouldBeTrue)
				So(g.Admit(last, model.Round{Timestamp: base, Index: 1}), ShouldBeNil)
			})

			Convey("And a round predates the epoch", func() {
				err := g.Admit(last, model.Round{Timestamp: guard.DefaultEpoch.Add(-time.Hour), Index: 1})

				Convey("Then it is rejected", func() {
					So(errors.Is(err, guard.ErrStaleRound), ShouldBeTrue)
				})
			})
		})

		Convey("When a round was already applied", func() {
			last := model.Stamp{Time: base, Round: 2}

			Convey("Then the same round is rejected", func() {
				err := g.Admit(last, model.Round{Timestamp: base, Index: 2})
				So(errors.Is(err, guard.ErrStaleRound), ShouldBeTrue)

				var stale *guard.StaleError
				So(errors.As(err, &stale), ShouldBeTrue)
				So(stale.Last, ShouldResemble, last)
			})

			Convey("Then an earlier round of the same match is rejected", func() {
				So(g.Admit(last, model.Round{Timestamp: base, Index: 1}), ShouldNotBeNil)
			})

			Convey("Then the next round of the same match is admitted", func() {
				So(g.Admit(last, model.Round{Timestamp: base, Index: 3}), ShouldBeNil)
			})

			Convey("Then a later match is admitted", func() {
				So(g.Admit(last, model.Round{Timestamp: base.Add(time.Minute), Index: 1}), ShouldBeNil)
			})
		})

		Convey("When a custom epoch is set", func() {
			epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			g := guard.New(guard.WithEpoch(epoch))

			Convey("Then rounds before it are rejected", func() {
				err := g.Admit(g.Epoch(), model.Round{Timestamp: base, Index: 1})
				So(err, ShouldNotBeNil)
			})
		})
	})
}
