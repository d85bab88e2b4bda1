package clock_test

import (
	"testing"
	"time"

	"github.com/okian/lighthouse/internal/clock"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClock(t *testing.T) {
	Convey("Given the real clock", t, func() {
		before := time.Now()
		got := clock.Real{}.Now()

		Convey("Then it reads the system time", func() {
			So(got.Before(before), ShouldBeFalse)
		})
	})

	Convey("Given a mock clock", t, func() {
		fixed := time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)
		clk := clock.Mock{T: fixed}

		Convey("Then every read returns the fixed time", func() {
			So(clk.Now(), ShouldEqual, fixed)
			So(clk.Now(), ShouldEqual, fixed)
		})
	})
}
