package replay

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerate(t *testing.T) {
	Convey("Given a season configuration", t, func() {
		cfg := DefaultSeason()
		cfg.Players = 12
		cfg.Matches = 20
		cfg.TeamSize = 3
		cfg.Features = true

		rounds, err := Generate(cfg)
		So(err, ShouldBeNil)

		Convey("Then every match yields its rounds", func() {
			So(rounds, ShouldHaveLength, cfg.Matches*cfg.RoundsPerMatch)
			for _, r := range rounds {
				So(r.Validate(), ShouldBeNil)
				So(r.Results, ShouldHaveLength, 2*cfg.TeamSize)
				So(r.Results[0].Features, ShouldContainKey, "kills")
			}
		})

		Convey("Then rounds are in stamp order", func() {
			for i := 1; i < len(rounds); i++ {
				So(rounds[i].Stamp().After(rounds[i-1].Stamp()), ShouldBeTrue)
			}
			last := cfg.Start.Add(time.Duration(cfg.Matches-1) * cfg.Interval)
			So(rounds[len(rounds)-1].Timestamp.Equal(last), ShouldBeTrue)
		})

		Convey("Then no player appears on both sides", func() {
			for _, r := range rounds {
				seen := map[string]bool{}
				for _, res := range r.Results {
					So(seen[res.PlayerID], ShouldBeFalse)
					seen[res.PlayerID] = true
				}
			}
		})

		Convey("Then the same seed yields the same season", func() {
			again, err := Generate(cfg)
			So(err, ShouldBeNil)
			So(again[5].MatchID, ShouldEqual, rounds[5].MatchID)
			So(again[5].Results, ShouldResemble, rounds[5].Results)

			cfg.Seed = 2
			other, err := Generate(cfg)
			So(err, ShouldBeNil)
			So(other[0].MatchID, ShouldNotEqual, rounds[0].MatchID)
		})
	})

	Convey("Given seasons that cannot be generated", t, func() {
		tooFew := DefaultSeason()
		tooFew.Players = 9
		noTeams := DefaultSeason()
		noTeams.TeamSize = 0
		noStart := DefaultSeason()
		noStart.Start = time.Time{}

		for _, cfg := range []SeasonConfig{tooFew, noTeams, noStart} {
			_, err := Generate(cfg)
			So(errors.Is(err, ErrInvalidSeason), ShouldBeTrue)
		}
	})
}
