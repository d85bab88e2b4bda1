// Package rating applies rounds to the rating store.
package rating

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/lighthouse/internal/domain/aggregator"
	"github.com/okian/lighthouse/internal/domain/guard"
	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/outcome"
	"github.com/okian/lighthouse/pkg/logger"
	"github.com/okian/lighthouse/pkg/metrics"
)

const tracerName = "github.com/okian/lighthouse/internal/domain/rating"

// Store is the part of the rating store the engine writes through.
type Store interface {
	// Load returns the committed state for ids. ok is false when nothing was ever committed.
	Load(ctx context.Context, ids ...string) (state model.State, ok bool, err error)
	// Commit atomically writes the players, their history rows and the new last stamp.
	Commit(ctx context.Context, c model.Commit) error
}

// Result describes one committed round.
type Result struct {
	Stamp   model.Stamp
	MatchID string
	// Deltas is the net change per participant.
	Deltas map[string]float64
	// Ratings is the new rating per participant.
	Ratings  map[string]float64
	Created  []string
	Pairings int
}

// Report summarises a Process run.
type Report struct {
	Applied    int
	Stale      int
	Degenerate int
	Malformed  int
	// Last is the stamp of the last round committed by this run.
	Last model.Stamp
}

// Skipped is the number of rounds dropped.
func (r Report) Skipped() int {
	return r.Stale + r.Degenerate + r.Malformed
}

// Engine turns rounds into rating updates.
// All writes go through one mutex around load, compute and commit.
type Engine struct {
	mu     sync.Mutex
	store  Store
	guard  *guard.Guard
	model  outcome.Model
	k, g   float64
	log    logger.Logger
	tracer trace.Tracer
	// attempts bounds the load-commit cycles tried when the store reports a conflict.
	attempts int
}

// New creates an engine writing to store.
func New(store Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:    store,
		guard:    guard.New(),
		model:    outcome.Pairwise{},
		k:        DefaultKFactor,
		g:        DefaultGFactor,
		log:      logger.Discard(),
		tracer:   otel.Tracer(tracerName),
		attempts: DefaultCommitAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	if store == nil {
		return nil, fmt.Errorf("rating store is nil")
	}
	if !(e.k > 0) || math.IsInf(e.k, 0) {
		return nil, fmt.Errorf("%w: k=%v", ErrInvalidFactor, e.k)
	}
	if !(e.g >= 0) || math.IsInf(e.g, 0) {
		return nil, fmt.Errorf("%w: g=%v", ErrInvalidFactor, e.g)
	}
	return e, nil
}

// Strategy names the expected-outcome model in use.
func (e *Engine) Strategy() string {
	return e.model.Name()
}

// Apply computes and commits one round. On any error the store is unchanged.
func (e *Engine) Apply(ctx context.Context, round model.Round) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "rating.Apply", trace.WithAttributes(
		attribute.String("match.id", round.MatchID),
		attribute.Int("round.index", round.Index),
		attribute.String("rating.strategy", e.model.Name()),
	))
	defer span.End()

	start := time.Now()
	res, err := e.apply(ctx, round)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("rating.pairings", res.Pairings))

	metrics.RecordRoundApplied(e.model.Name(), time.Since(start))
	metrics.UpdateLastApplied(res.Stamp.Time)
	if len(res.Created) > 0 {
		metrics.RecordPlayersCreated(len(res.Created))
	}
	for _, d := range res.Deltas {
		metrics.RecordRatingDelta(d)
	}
	return res, nil
}

func (e *Engine) apply(ctx context.Context, round model.Round) (Result, error) {
	part, splitErr := aggregator.Split(round)

	e.mu.Lock()
	defer e.mu.Unlock()

	for attempt := 1; ; attempt++ {
		res, err := e.attempt(ctx, round, part, splitErr)
		if !errors.Is(err, ErrConflict) || attempt == e.attempts {
			return res, err
		}
		e.log.Warn(ctx, "store moved during commit, reloading",
			logger.String("match_id", round.MatchID),
			logger.Int("round", round.Index),
			logger.Int("attempt", attempt),
		)
	}
}

// attempt runs one load, compute and commit cycle. The commit is conditional on
// the loaded state, so a concurrent writer makes it fail with ErrConflict.
func (e *Engine) attempt(ctx context.Context, round model.Round, part aggregator.Partition, splitErr error) (Result, error) {
	state, ok, err := e.store.Load(ctx, part.Participants()...)
	if err != nil {
		return Result{}, fmt.Errorf("loading rating state: %w", err)
	}
	if err := e.guard.Admit(e.guard.Last(state.Last, ok), round); err != nil {
		return Result{}, err
	}
	if splitErr != nil {
		return Result{}, splitErr
	}

	players := state.Players
	if players == nil {
		players = make(map[string]model.Player, len(part.Winners)+len(part.Losers))
	}
	next, created := aggregator.Register(players, part.Participants(), state.NextSeq)

	pairings, err := e.model.Pairings(ctx, outcome.Sides{
		Winners: competitors(players, part, part.Winners),
		Losers:  competitors(players, part, part.Losers),
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", round, err)
	}

	deltas := e.deltas(pairings)

	ids := part.Participants()
	updated := make([]model.Player, 0, len(ids))
	ratings := make(map[string]float64, len(ids))
	for i, id := range ids {
		p := players[id]
		p.Rating += deltas[id]
		if i < len(part.Winners) {
			p.Wins++
		} else {
			p.Losses++
		}
		if p.LastMatchID != round.MatchID {
			p.MatchesPlayed++
			p.LastMatchID = round.MatchID
		}
		updated = append(updated, p)
		ratings[id] = p.Rating
	}

	stamp := round.Stamp().UTC()
	if err := e.store.Commit(ctx, model.Commit{
		Stamp:   stamp,
		MatchID: round.MatchID,
		Players: updated,
		NextSeq: next,
		Base:    state.Version(ok),
	}); err != nil {
		return Result{}, fmt.Errorf("committing %s: %w", round, err)
	}

	return Result{
		Stamp:    stamp,
		MatchID:  round.MatchID,
		Deltas:   deltas,
		Ratings:  ratings,
		Created:  created,
		Pairings: len(pairings),
	}, nil
}

// deltas sums every pairing's components per player. Each pairing is zero-sum
// when both weights are equal.
func (e *Engine) deltas(pairings []outcome.Pairing) map[string]float64 {
	out := make(map[string]float64)
	for _, p := range pairings {
		win := e.k * e.g * (1 - p.Probability)
		loss := e.k * e.g * (p.Probability - 1)
		for _, id := range p.Winners {
			out[id] += win * p.WinnerWeight
		}
		for _, id := range p.Losers {
			out[id] += loss * p.LoserWeight
		}
	}
	return out
}

func competitors(players map[string]model.Player, part aggregator.Partition, ids []string) []outcome.Competitor {
	out := make([]outcome.Competitor, len(ids))
	for i, id := range ids {
		out[i] = outcome.Competitor{
			PlayerID: id,
			Rating:   players[id].Rating,
			Features: part.Results[id].Features,
		}
	}
	return out
}

// Process applies rounds in the given order. Rounds failing for a reason
// IsSkippable accepts are logged and counted; any other error ends the run.
func (e *Engine) Process(ctx context.Context, rounds []model.Round) (Report, error) {
	var rep Report
	for _, r := range rounds {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res, err := e.Apply(ctx, r)
		if err != nil {
			if !e.skip(ctx, r, err, &rep) {
				return rep, err
			}
			continue
		}
		rep.Applied++
		rep.Last = res.Stamp
	}
	return rep, nil
}

// Skip records a non-fatal failure of round. It returns false when err must stop the caller.
func (e *Engine) Skip(ctx context.Context, round model.Round, err error) bool {
	var rep Report
	return e.skip(ctx, round, err, &rep)
}

func (e *Engine) skip(ctx context.Context, round model.Round, err error, rep *Report) bool {
	reason := Reason(err)
	switch reason {
	case metrics.ReasonStale:
		rep.Stale++
	case metrics.ReasonDegenerate:
		rep.Degenerate++
	case metrics.ReasonMalformed:
		rep.Malformed++
	default:
		return false
	}
	metrics.RecordRoundSkipped(reason)
	e.log.Warn(ctx, "round skipped",
		logger.String("match_id", round.MatchID),
		logger.Int("round", round.Index),
		logger.String("reason", reason),
		logger.Error(err),
	)
	return true
}
