// Package queue buffers submitted rounds between the API and the rating workers.
//
// Rounds leave the queue in the order they were accepted.
package queue

import (
	"context"
	"sync"

	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/pkg/logger"
	"github.com/okian/lighthouse/pkg/metrics"
)

const (
	defaultQueueCapacity = 10000
	defaultBufferSize    = 10000
)

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a round to the queue.
	// Returns false if the queue is full or closed and the round was not enqueued.
	Enqueue(ctx context.Context, r model.Round) bool

	// Dequeue returns a channel that will receive rounds as they become available.
	// The channel is closed when the queue is closed and drained, or ctx is done.
	Dequeue(ctx context.Context) <-chan model.Round

	// Len returns the current number of queued rounds.
	Len(ctx context.Context) int

	// Close stops accepting rounds. Already queued rounds can still be dequeued.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	rounds     chan model.Round
	capacity   int
	bufferSize int
	logger     logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}
	q.rounds = make(chan model.Round, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a round to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r model.Round) bool { //nolint:gocritic // hugeParam: passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || len(q.rounds) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		return false
	}

	select {
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return false
	default:
	}

	select {
	case q.rounds <- r:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.rounds))
		return true
	default:
		metrics.RecordQueueEnqueueError()
		return false
	}
}

// Dequeue returns a channel that will receive rounds as they become available.
// The forwarding goroutine exits when ctx is done. A round it already took off
// the queue but could not hand over is logged and dropped.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Round {
	out := make(chan model.Round)
	go func() {
		defer close(out)
		for {
			var (
				r  model.Round
				ok bool
			)
			select {
			case <-ctx.Done():
				return
			case r, ok = <-q.rounds:
				if !ok {
					return
				}
			}
			select {
			case out <- r:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.rounds))
			case <-ctx.Done():
				metrics.RecordQueueDropped()
				q.logger.Warn(ctx, "dropping dequeued round, consumer stopped",
					logger.String("match_id", r.MatchID),
					logger.Int("round", r.Index),
					logger.Error(ctx.Err()),
				)
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued rounds.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.rounds)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting rounds. It is safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.rounds)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
