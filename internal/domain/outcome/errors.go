package outcome

import "errors"

var (
	// ErrMalformedFeatures is returned when a feature vector is missing or not finite.
	ErrMalformedFeatures = errors.New("malformed feature vector")
	// ErrUnknownStrategy is returned by New for an unregistered strategy name.
	ErrUnknownStrategy = errors.New("unknown outcome strategy")
	// ErrNoClassifier is returned when the weighted strategy has no classifier.
	ErrNoClassifier = errors.New("weighted strategy requires a classifier")
	// ErrEmptySide is returned when either side of a pairing is empty.
	ErrEmptySide = errors.New("empty side")
)
