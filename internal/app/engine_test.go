package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lighthouse/internal/adapters/repository"
	service "github.com/okian/lighthouse/internal/app"
	"github.com/okian/lighthouse/internal/config"
	"github.com/okian/lighthouse/internal/domain/guard"
	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/outcome"
)

func TestNewModel(t *testing.T) {
	Convey("Given rating configuration", t, func() {
		cfg := config.New().Rating

		Convey("Then the default strategy is pairwise", func() {
			m, err := service.NewModel(cfg)
			So(err, ShouldBeNil)
			So(m.Name(), ShouldEqual, outcome.StrategyPairwise)
		})

		Convey("Then the weighted strategy loads its classifier", func() {
			path := filepath.Join(t.TempDir(), "clf.yaml")
			So(os.WriteFile(path, []byte("intercept: 0\ncoefficients:\n  kills: 0.3\n"), 0o600), ShouldBeNil)
			cfg.Strategy = outcome.StrategyWeighted
			cfg.ClassifierPath = path

			m, err := service.NewModel(cfg)
			So(err, ShouldBeNil)
			So(m.Name(), ShouldEqual, outcome.StrategyWeighted)
		})

		Convey("Then a missing classifier fails", func() {
			cfg.Strategy = outcome.StrategyWeighted
			cfg.ClassifierPath = filepath.Join(t.TempDir(), "missing.yaml")
			_, err := service.NewModel(cfg)
			So(err, ShouldNotBeNil)
		})

		Convey("Then an unknown strategy fails", func() {
			cfg.Strategy = "glicko"
			_, err := service.NewModel(cfg)
			So(errors.Is(err, outcome.ErrUnknownStrategy), ShouldBeTrue)
		})
	})
}

func TestNewEngine(t *testing.T) {
	Convey("Given an engine built from configuration", t, func() {
		ctx := context.Background()
		cfg := config.New().Rating
		cfg.Strategy = outcome.StrategyAggregate
		cfg.KFactor = 16

		engine, err := service.NewEngine(repository.NewMemoryStore(), cfg)
		So(err, ShouldBeNil)
		So(engine.Strategy(), ShouldEqual, outcome.StrategyAggregate)

		Convey("Then the configured k factor applies", func() {
			res, err := engine.Apply(ctx, model.Round{
				MatchID:   "m1",
				Index:     1,
				Timestamp: time.Date(2023, 3, 4, 20, 0, 0, 0, time.UTC),
				Results: []model.PlayerResult{
					{PlayerID: "a", Team: "A", Outcome: model.Win},
					{PlayerID: "b", Team: "B", Outcome: model.Loss},
				},
			})
			So(err, ShouldBeNil)
			So(res.Deltas["a"], ShouldAlmostEqual, 8, 1e-9)
		})

		Convey("Then rounds before the epoch are stale", func() {
			_, err := engine.Apply(ctx, model.Round{
				MatchID:   "m0",
				Index:     1,
				Timestamp: time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
				Results: []model.PlayerResult{
					{PlayerID: "a", Team: "A", Outcome: model.Win},
					{PlayerID: "b", Team: "B", Outcome: model.Loss},
				},
			})
			So(errors.Is(err, guard.ErrStaleRound), ShouldBeTrue)
		})
	})

	Convey("Given an invalid epoch", t, func() {
		cfg := config.New().Rating
		cfg.Epoch = "soon"

		Convey("Then no engine is built", func() {
			_, err := service.NewEngine(repository.NewMemoryStore(), cfg)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
