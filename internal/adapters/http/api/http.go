// Package api exposes the rating service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/lighthouse/internal/adapters/repository"
	service "github.com/okian/lighthouse/internal/app"
	"github.com/okian/lighthouse/internal/domain/aggregator"
	"github.com/okian/lighthouse/internal/domain/balance"
	"github.com/okian/lighthouse/internal/domain/guard"
	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/outcome"
	"github.com/okian/lighthouse/internal/domain/rating"
	"github.com/okian/lighthouse/internal/domain/types"
	"github.com/okian/lighthouse/internal/health"
	"github.com/okian/lighthouse/pkg/metrics"
)

const requestTimeout = 30 * time.Second

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	Submit(ctx context.Context, round model.Round) error
	Apply(ctx context.Context, round model.Round) (rating.Result, error)

	Top(ctx context.Context, n, minMatches int) ([]types.Entry, error)
	MaxLeaderboardLimit() int
	Player(ctx context.Context, id string) (types.Entry, bool, error)
	History(ctx context.Context, playerID string) ([]model.HistoryPoint, error)
	ExportHistory(ctx context.Context, playerID string, w io.Writer) error
	Snapshot(ctx context.Context, at model.Stamp) (model.Snapshot, error)
	BalanceTeams(ctx context.Context, ids []string) (balance.Teams, error)
	Stats(ctx context.Context) (service.Stats, error)
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the rating API.
type Server struct {
	deps   Dependencies
	health *health.Handler
	docs   func(chi.Router)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHealth mounts /livez and /readyz from h.
func WithHealth(h *health.Handler) ServerOption {
	return func(s *Server) { s.health = h }
}

// WithDocs lets fn register documentation routes on the root router.
func WithDocs(fn func(chi.Router)) ServerOption {
	return func(s *Server) { s.docs = fn }
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	s := &Server{deps: deps}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler serving every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	if s.health != nil {
		r.Get("/livez", s.health.LivenessHandler())
		r.Get("/readyz", s.health.ReadinessHandler())
	}
	if s.docs != nil {
		s.docs(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/rounds", s.handlePostRound)
		r.Get("/leaderboard", s.handleGetLeaderboard)
		r.Get("/players/{id}", s.handleGetPlayer)
		r.Get("/players/{id}/history", s.handleGetPlayerHistory)
		r.Get("/history", s.handleGetHistory)
		r.Get("/snapshot", s.handleGetSnapshot)
		r.Post("/teams", s.handlePostTeams)
		r.Get("/stats", s.handleGetStats)
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps domain and store errors to a status and code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidRound),
		errors.Is(err, service.ErrInvalidPlayers):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "invalid_limit"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, guard.ErrStaleRound):
		return http.StatusConflict, "stale_round"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, aggregator.ErrDegenerateRound):
		return http.StatusUnprocessableEntity, "degenerate_round"
	case errors.Is(err, outcome.ErrMalformedFeatures):
		return http.StatusUnprocessableEntity, "malformed_features"
	case errors.Is(err, ErrBackpressure), errors.Is(err, service.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	case errors.Is(err, repository.ErrUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
