// Package worker drains the round queue into the rating engine.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/rating"
	"github.com/okian/lighthouse/pkg/logger"
	"github.com/okian/lighthouse/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Applier applies a round. Skip reports whether a failed round may be dropped.
type Applier interface {
	Apply(ctx context.Context, round model.Round) (rating.Result, error)
	Skip(ctx context.Context, round model.Round, err error) bool
}

// Queue defines how workers receive rounds.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Round
}

// Worker processes rounds until its queue is drained or it is stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	applier Applier
	name    string
	onError func(ctx context.Context, round model.Round, err error)

	processed atomic.Int64
	failed    atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		applier:  applier,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. It returns when ctx is done, Shutdown is
// called or the queue channel closes.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	// Stops the dequeue goroutine once this loop no longer receives.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rounds := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case r, ok := <-rounds:
			if !ok {
				return
			}
			if err := w.process(ctx, r); err != nil {
				w.logger.Error(ctx, "round failed",
					logger.String("match_id", r.MatchID),
					logger.Int("round", r.Index),
					logger.Error(err),
				)
				if w.onError != nil {
					w.onError(ctx, r, err)
				}
			}
		}
	}
}

// Shutdown stops the worker without waiting for the queue to drain.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed is the number of rounds handled, skipped ones included.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Failed is the number of rounds that failed with a non-skippable error.
func (w *InMemoryWorker) Failed() int64 { return w.failed.Load() }

func (w *InMemoryWorker) process(ctx context.Context, r model.Round) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	w.processed.Add(1)
	if _, err := w.applier.Apply(ctx, r); err != nil {
		if w.applier.Skip(ctx, r, err) {
			return nil
		}
		w.failed.Add(1)
		metrics.RecordWorkerError()
		return fmt.Errorf("applying round %s: %w", r, err)
	}
	return nil
}

// Pool manages multiple workers reading the same queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewPool creates a worker pool. With more than one worker, rounds may reach
// the engine out of order and be dropped as stale.
func NewPool(workerCount int, queue Queue, applier Applier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(queue, applier, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start starts all workers in the pool. The workers run until the queue is
// drained, ctx is done or Shutdown gives up waiting for them.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

func (p *Pool) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Processed is the number of rounds handled across the pool.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Failed is the number of rounds that failed across the pool.
func (p *Pool) Failed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Failed()
	}
	return n
}

// Shutdown closes the queue and waits for the workers to drain it. When ctx
// or the pool timeout expires first, the workers' context is cancelled, which
// aborts in-flight rounds and stops the dequeue goroutines.
func (p *Pool) Shutdown(ctx context.Context) error {
	defer p.stop()

	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-drainCtx.Done():
			if !timedOut {
				p.stop()
			}
			timedOut = true
			p.logger.Warn(ctx, "worker did not drain in time", logger.Int("worker_id", i))
			w.shutdownOnce.Do(func() { close(w.shutdown) })
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", drainCtx.Err())
	}
	return nil
}
