package worker

import (
	"context"

	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithErrorHandler is called for every round that fails with a non-skippable error.
func WithErrorHandler(fn func(ctx context.Context, round model.Round, err error)) Option {
	return func(w *InMemoryWorker) {
		w.onError = fn
	}
}
