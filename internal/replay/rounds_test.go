package replay

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestReadRounds(t *testing.T) {
	Convey("Given a JSON-lines file of rounds", t, func() {
		input := `# season one
{"match_id":"m1","round":1,"timestamp":"2023-03-04T20:00:00Z","results":[{"player_id":"a","team":"A","result":"Win"},{"player_id":"b","team":"B","result":"Loss"}]}

{"match_id":"m1","round":2,"timestamp":"2023-03-04T20:00:00Z","results":[{"player_id":"a","team":"A","result":"Loss","features":{"kills":1}},{"player_id":"b","team":"B","result":"Win"}]}
`
		rounds, err := ReadRounds(strings.NewReader(input))

		Convey("Then rounds are returned in file order", func() {
			So(err, ShouldBeNil)
			So(rounds, ShouldHaveLength, 2)
			So(rounds[0].Index, ShouldEqual, 1)
			So(rounds[1].Results[0].Features["kills"], ShouldEqual, 1)
		})

		Convey("Then writing them back reads the same rounds", func() {
			var buf bytes.Buffer
			So(WriteRounds(&buf, rounds), ShouldBeNil)
			again, err := ReadRounds(&buf)
			So(err, ShouldBeNil)
			So(again, ShouldHaveLength, 2)
			So(again[1].MatchID, ShouldEqual, "m1")
			So(again[1].Timestamp.Equal(rounds[1].Timestamp), ShouldBeTrue)
		})
	})

	Convey("Given malformed lines", t, func() {
		for _, line := range []string{
			`{"match_id":`,
			`{"match_id":"m1","round":1,"timestamp":"2023-03-04T20:00:00Z","results":[{"player_id":"a","result":"Victory"}]}`,
			`{"match_id":"m1","round":1,"timestamp":"2023-03-04T20:00:00Z","results":[]}`,
			`{"match_id":"m1","round":1,"timestamp":"2023-03-04T20:00:00Z","results":[{"player_id":"a","result":"Win"}],"mode":"ranked"}`,
		} {
			_, err := ReadRounds(strings.NewReader("\n" + line + "\n"))
			So(errors.Is(err, ErrMalformedLine), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "line 2")
		}
	})
}
