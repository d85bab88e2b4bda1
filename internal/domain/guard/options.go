package guard

import "time"

// Option applies a configuration option to the Guard.
type Option func(*Guard)

// WithEpoch sets the last-applied time reported for a store that has never committed.
func WithEpoch(t time.Time) Option {
	return func(g *Guard) {
		if !t.IsZero() {
			g.epoch = t.UTC()
		}
	}
}
