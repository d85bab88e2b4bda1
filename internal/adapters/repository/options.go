package repository

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsLabel sets the driver label the store reports metrics under.
// Backends that wrap a MemoryStore use their own name.
func WithMetricsLabel(name string) Option {
	return func(s *MemoryStore) {
		if name != "" {
			s.label = name
		}
	}
}
