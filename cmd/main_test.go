package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/okian/lighthouse/internal/config"
	"github.com/okian/lighthouse/internal/domain/outcome"
	"github.com/okian/lighthouse/internal/telemetry"
	"github.com/okian/lighthouse/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithWriter(os.Stderr)); err != nil {
		panic(err)
	}
}

var tracer = noop.NewTracerProvider().Tracer("test")

func TestNewApplication(t *testing.T) {
	convey.Convey("Given a configuration over a bolt store", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.Rating.Strategy = outcome.StrategyAggregate
		cfg.Store.Driver = "bolt"
		cfg.Store.Path = filepath.Join(t.TempDir(), "ratings.db")

		a, err := newApplication(ctx, cfg, tracer)
		convey.So(err, convey.ShouldBeNil)
		convey.So(a.svc.Start(ctx), convey.ShouldBeNil)
		a.health.SetReady(true)
		defer func() { _ = a.svc.Stop(ctx) }()

		do := func(method, target, body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(method, target, strings.NewReader(body))
			rec := httptest.NewRecorder()
			a.handler.ServeHTTP(rec, req)
			return rec
		}

		convey.Convey("Then health, docs and metrics are served", func() {
			convey.So(do(http.MethodGet, "/livez", "").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(do(http.MethodGet, "/readyz", "").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(do(http.MethodGet, "/openapi.yaml", "").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(do(http.MethodGet, "/metrics", "").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then a round applied over HTTP is visible on the leaderboard", func() {
			round := `{"match_id":"m1","round":1,"timestamp":"2023-03-04T20:00:00Z","results":[
				{"player_id":"a","team":"A","result":"Win"},{"player_id":"b","team":"B","result":"Loss"}]}`
			convey.So(do(http.MethodPost, "/rounds?sync=true", round).Code, convey.ShouldEqual, http.StatusOK)

			rec := do(http.MethodGet, "/leaderboard", "")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"player_id":"a"`)

			updateServiceMetrics(ctx, a.svc)
		})

		convey.Convey("Then rounds before the configured epoch are stale", func() {
			round := `{"match_id":"m0","round":1,"timestamp":"2022-12-31T20:00:00Z","results":[
				{"player_id":"a","team":"A","result":"Win"},{"player_id":"b","team":"B","result":"Loss"}]}`
			convey.So(do(http.MethodPost, "/rounds?sync=true", round).Code, convey.ShouldEqual, http.StatusConflict)
		})
	})

	convey.Convey("Given an unknown store driver", t, func() {
		cfg := config.New()
		cfg.Store.Driver = "cassandra"

		convey.Convey("Then the application is not built", func() {
			_, err := newApplication(context.Background(), cfg, tracer)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestInitLogging(t *testing.T) {
	convey.Convey("Given a configuration with an invalid log level", t, func() {
		cfg := config.New()
		cfg.LogLevel = "chatty"
		cfg.LogFormat = "json"

		convey.Convey("Then logging falls back to info", func() {
			convey.So(initLogging(cfg, telemetry.NewNopProvider("test")), convey.ShouldBeNil)
		})

		convey.Convey("Then an unknown format fails", func() {
			cfg.LogFormat = "xml"
			convey.So(initLogging(cfg, telemetry.NewNopProvider("test")), convey.ShouldNotBeNil)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given a short-lived context", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		convey.Convey("Then the system updater returns when it ends", func() {
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
		})
	})
}
