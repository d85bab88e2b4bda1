package balance

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func ids(rs []Rated) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.PlayerID
	}
	return out
}

func TestBalance(t *testing.T) {
	Convey("Given four players of distinct strength", t, func() {
		players := []Rated{
			{PlayerID: "C", Rating: 1100},
			{PlayerID: "A", Rating: 1400},
			{PlayerID: "D", Rating: 1000},
			{PlayerID: "B", Rating: 1300},
		}

		Convey("Then the strongest and weakest end up together", func() {
			teams := Balance(players)
			So(ids(teams.A), ShouldResemble, []string{"A", "D"})
			So(ids(teams.B), ShouldResemble, []string{"B", "C"})
			So(teams.SumA, ShouldEqual, 2400)
			So(teams.SumB, ShouldEqual, 2400)
			So(teams.Gap(), ShouldEqual, 0)
		})

		Convey("Then the input slice is left untouched", func() {
			Balance(players)
			So(players[0].PlayerID, ShouldEqual, "C")
		})
	})

	Convey("Given an odd number of players", t, func() {
		teams := Balance([]Rated{
			{PlayerID: "A", Rating: 1400},
			{PlayerID: "B", Rating: 1300},
			{PlayerID: "C", Rating: 900},
		})

		Convey("Then the leftover joins the weaker team", func() {
			So(ids(teams.A), ShouldResemble, []string{"A"})
			So(ids(teams.B), ShouldResemble, []string{"B", "C"})
			So(teams.Gap(), ShouldEqual, 800)
		})
	})

	Convey("Given tied ratings", t, func() {
		teams := Balance([]Rated{
			{PlayerID: "x", Rating: 1000},
			{PlayerID: "y", Rating: 1000},
			{PlayerID: "z", Rating: 1000},
			{PlayerID: "w", Rating: 1000},
		})

		Convey("Then input order decides placement", func() {
			So(ids(teams.A), ShouldResemble, []string{"x", "z"})
			So(ids(teams.B), ShouldResemble, []string{"y", "w"})
		})
	})

	Convey("Given zero or one player", t, func() {
		empty := Balance(nil)
		So(empty.A, ShouldBeEmpty)
		So(empty.B, ShouldBeEmpty)

		one := Balance([]Rated{{PlayerID: "solo", Rating: 1000}})
		So(ids(one.A), ShouldResemble, []string{"solo"})
		So(one.B, ShouldBeEmpty)
	})

	Convey("Given six players the running gap stays small", t, func() {
		teams := Balance([]Rated{
			{PlayerID: "p1", Rating: 1500},
			{PlayerID: "p2", Rating: 1450},
			{PlayerID: "p3", Rating: 1200},
			{PlayerID: "p4", Rating: 1100},
			{PlayerID: "p5", Rating: 1000},
			{PlayerID: "p6", Rating: 990},
		})
		So(teams.A, ShouldHaveLength, 3)
		So(teams.B, ShouldHaveLength, 3)
		So(teams.Gap(), ShouldBeLessThanOrEqualTo, 60)
	})
}
