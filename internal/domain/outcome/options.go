package outcome

type options struct {
	normalize  bool
	classifier Classifier
}

// Option applies a configuration option to New.
type Option func(*options)

// WithNormalize makes the pairwise strategy average each player's components
// over the pairings touching them instead of summing them.
func WithNormalize(normalize bool) Option {
	return func(o *options) {
		o.normalize = normalize
	}
}

// WithClassifier sets the performance model used by the weighted strategy.
func WithClassifier(c Classifier) Option {
	return func(o *options) {
		o.classifier = c
	}
}
