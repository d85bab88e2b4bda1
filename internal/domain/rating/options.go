package rating

import (
	"github.com/okian/lighthouse/internal/domain/guard"
	"github.com/okian/lighthouse/internal/domain/outcome"
	"github.com/okian/lighthouse/pkg/logger"
	"go.opentelemetry.io/otel/trace"
)

// Default update factors.
const (
	DefaultKFactor = 32.0
	DefaultGFactor = 1.0
)

// DefaultCommitAttempts is how many times a round is computed when another
// writer keeps committing between load and commit.
const DefaultCommitAttempts = 3

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithKFactor sets the learning rate.
func WithKFactor(k float64) Option {
	return func(e *Engine) {
		e.k = k
	}
}

// WithGFactor sets the per-round weight multiplier.
func WithGFactor(g float64) Option {
	return func(e *Engine) {
		e.g = g
	}
}

// WithModel sets the expected-outcome strategy.
func WithModel(m outcome.Model) Option {
	return func(e *Engine) {
		if m != nil {
			e.model = m
		}
	}
}

// WithGuard sets the ordering guard.
func WithGuard(g *guard.Guard) Option {
	return func(e *Engine) {
		if g != nil {
			e.guard = g
		}
	}
}

// WithCommitAttempts sets how many load-commit cycles a round gets before
// ErrConflict is returned. Values below 1 are ignored.
func WithCommitAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.attempts = n
		}
	}
}

// WithLogger sets the logger for skipped-round diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTracer sets the tracer Apply spans are started on.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}
