package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/lighthouse/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given the default config", t, func() {
		cfg := config.New()

		convey.Convey("Then it carries the rating defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 1)
			convey.So(cfg.Rating.KFactor, convey.ShouldEqual, 32.0)
			convey.So(cfg.Rating.GFactor, convey.ShouldEqual, 1.0)
			convey.So(cfg.Rating.Strategy, convey.ShouldEqual, "pairwise")
			convey.So(cfg.Store.Driver, convey.ShouldEqual, "memory")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the epoch parses as a date", func() {
			epoch, err := cfg.Rating.EpochTime()
			convey.So(err, convey.ShouldBeNil)
			convey.So(epoch, convey.ShouldEqual, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC))
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid configs", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":            func(c *config.Config) { c.Addr = "" },
			"zero queue":            func(c *config.Config) { c.QueueSize = 0 },
			"zero workers":          func(c *config.Config) { c.WorkerCount = 0 },
			"zero k":                func(c *config.Config) { c.Rating.KFactor = 0 },
			"negative g":            func(c *config.Config) { c.Rating.GFactor = -1 },
			"weighted without clf":  func(c *config.Config) { c.Rating.Strategy = "weighted" },
			"postgres without dsn":  func(c *config.Config) { c.Store.Driver = "postgres" },
			"bad epoch":             func(c *config.Config) { c.Rating.Epoch = "March" },
			"negative min matches":  func(c *config.Config) { c.Rating.MinMatches = -2 },
			"zero leaderboard size": func(c *config.Config) { c.MaxLeaderboardLimit = 0 },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)

			convey.Convey("Then "+name+" is rejected", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
