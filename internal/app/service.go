// Package service wires the rating store, engine, queue and workers into the
// operations the HTTP API and the replay tool depend on.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/okian/lighthouse/internal/adapters/mq/queue"
	"github.com/okian/lighthouse/internal/adapters/mq/worker"
	"github.com/okian/lighthouse/internal/adapters/repository"
	"github.com/okian/lighthouse/internal/domain/balance"
	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/rating"
	"github.com/okian/lighthouse/internal/domain/types"
	"github.com/okian/lighthouse/pkg/logger"
	"github.com/okian/lighthouse/pkg/metrics"
)

const (
	defaultQueueSize           = 10000
	defaultMaxLeaderboardLimit = 100
)

// Service implements the API dependencies for the rating system.
type Service struct {
	mu sync.RWMutex

	store  repository.Store
	engine *rating.Engine
	queue  *queue.InMemoryQueue
	pool   *worker.Pool

	workerCount int
	queueSize   int
	maxLimit    int
	minMatches  int

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of workers draining the round queue.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of rounds waiting to be applied.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMaxLeaderboardLimit caps the n accepted by Top.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithMinMatches sets the leaderboard filter used when the caller gives none.
func WithMinMatches(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.minMatches = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store and engine. The service owns the store
// and closes it on Stop.
func New(store repository.Store, engine *rating.Engine, opts ...Option) *Service {
	s := &Service{
		store:       store,
		engine:      engine,
		workerCount: 1,
		queueSize:   defaultQueueSize,
		maxLimit:    defaultMaxLeaderboardLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the queue and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store not reachable: %w", err)
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize), queue.WithLogger(s.logger.Named("queue")))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.engine)
	s.pool.Start(context.WithoutCancel(ctx))

	if n, err := s.store.Count(ctx); err == nil {
		metrics.UpdatePlayersTracked(n)
	}

	s.started = true
	s.logger.Info(ctx, "rating service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.String("strategy", s.engine.Strategy()),
	)
	return nil
}

// Stop drains queued rounds into the engine and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping rating service")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	s.started = false
	s.logger.Info(ctx, "rating service stopped")
	return errors.Join(errs...)
}

// Submit validates round and queues it for the workers.
func (s *Service) Submit(ctx context.Context, round model.Round) error {
	if err := round.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	if !s.queue.Enqueue(ctx, round) {
		return ErrQueueFull
	}
	s.logger.Debug(ctx, "round queued",
		logger.String("match_id", round.MatchID),
		logger.Int("round", round.Index),
	)
	return nil
}

// Apply validates round and applies it synchronously.
func (s *Service) Apply(ctx context.Context, round model.Round) (rating.Result, error) {
	if err := round.Validate(); err != nil {
		return rating.Result{}, err
	}
	res, err := s.engine.Apply(ctx, round)
	if err != nil {
		return rating.Result{}, err
	}
	s.refreshPlayerCount(ctx, len(res.Created))
	return res, nil
}

// Process applies rounds synchronously in order, skipping the ones the
// engine reports as skippable.
func (s *Service) Process(ctx context.Context, rounds []model.Round) (rating.Report, error) {
	rep, err := s.engine.Process(ctx, rounds)
	s.refreshPlayerCount(ctx, rep.Applied)
	return rep, err
}

func (s *Service) refreshPlayerCount(ctx context.Context, changed int) {
	if changed == 0 {
		return
	}
	if n, err := s.store.Count(ctx); err == nil {
		metrics.UpdatePlayersTracked(n)
	}
}

// CurrentRating returns the rating of id, or the default for unseen players.
func (s *Service) CurrentRating(ctx context.Context, id string) (float64, error) {
	p, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return model.DefaultRating, nil
	}
	return p.Rating, nil
}

// Player returns the leaderboard entry for id. Unseen players get the default
// rating, rank 0 and found=false.
func (s *Service) Player(ctx context.Context, id string) (entry types.Entry, found bool, err error) {
	e, err := s.store.Rank(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return types.Entry{PlayerID: id, Rating: model.DefaultRating}, false, nil
	}
	if err != nil {
		return types.Entry{}, false, err
	}
	return e, true, nil
}

// Rank returns the leaderboard entry for a known player.
func (s *Service) Rank(ctx context.Context, id string) (types.Entry, error) {
	return s.store.Rank(ctx, id)
}

// Top returns the n best players with at least minMatches matches. A negative
// minMatches selects the configured default.
func (s *Service) Top(ctx context.Context, n, minMatches int) ([]types.Entry, error) {
	if n < 1 || n > s.maxLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", repository.ErrInvalidLimit, s.maxLimit)
	}
	if minMatches < 0 {
		minMatches = s.minMatches
	}
	return s.store.Top(ctx, n, minMatches)
}

// MaxLeaderboardLimit is the largest n Top accepts.
func (s *Service) MaxLeaderboardLimit() int { return s.maxLimit }

// History returns the rating series of playerID, or of everyone when empty.
func (s *Service) History(ctx context.Context, playerID string) ([]model.HistoryPoint, error) {
	return s.store.History(ctx, playerID)
}

// ExportHistory writes the history of playerID as CSV.
func (s *Service) ExportHistory(ctx context.Context, playerID string, w io.Writer) error {
	return repository.ExportHistoryCSV(ctx, s.store, playerID, w)
}

// Snapshot returns every rating as of at.
func (s *Service) Snapshot(ctx context.Context, at model.Stamp) (model.Snapshot, error) {
	return s.store.Snapshot(ctx, at)
}

// BalanceTeams splits ids into two teams using their current ratings.
// Repeated ids count once; unseen players rate at the default.
func (s *Service) BalanceTeams(ctx context.Context, ids []string) (balance.Teams, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return balance.Teams{}, fmt.Errorf("%w: empty player id", ErrInvalidPlayers)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	st, _, err := s.store.Load(ctx, unique...)
	if err != nil {
		return balance.Teams{}, err
	}
	players := make([]balance.Rated, len(unique))
	for i, id := range unique {
		r := model.DefaultRating
		if p, ok := st.Players[id]; ok {
			r = p.Rating
		}
		players[i] = balance.Rated{PlayerID: id, Rating: r}
	}
	return balance.Balance(players), nil
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Started       bool         `json:"started"`
	Strategy      string       `json:"strategy"`
	Workers       int          `json:"workers"`
	QueueLength   int          `json:"queue_length"`
	QueueCapacity int          `json:"queue_capacity"`
	Players       int          `json:"players"`
	Processed     int64        `json:"processed"`
	Failed        int64        `json:"failed"`
	LastApplied   *model.Stamp `json:"last_applied,omitempty"`
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:       s.started,
		Strategy:      s.engine.Strategy(),
		Workers:       s.workerCount,
		QueueCapacity: s.queueSize,
	}
	if s.started {
		st.QueueLength = s.queue.Len(ctx)
		st.Processed = s.pool.Processed()
		st.Failed = s.pool.Failed()
	}

	n, err := s.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.Players = n
	metrics.UpdatePlayersTracked(n)

	state, ok, err := s.store.Load(ctx)
	if err != nil {
		return Stats{}, err
	}
	if ok {
		last := state.Last
		st.LastApplied = &last
	}
	return st, nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
