package service

import (
	"fmt"

	"github.com/okian/lighthouse/internal/config"
	"github.com/okian/lighthouse/internal/domain/guard"
	"github.com/okian/lighthouse/internal/domain/outcome"
	"github.com/okian/lighthouse/internal/domain/rating"
)

// NewModel selects the expected-outcome strategy named by cfg. The weighted
// strategy loads its classifier from cfg.ClassifierPath.
func NewModel(cfg config.RatingConfig) (outcome.Model, error) {
	opts := []outcome.Option{outcome.WithNormalize(cfg.Normalize)}
	if cfg.Strategy == outcome.StrategyWeighted {
		clf, err := outcome.LoadClassifier(cfg.ClassifierPath)
		if err != nil {
			return nil, fmt.Errorf("loading classifier: %w", err)
		}
		opts = append(opts, outcome.WithClassifier(clf))
	}
	m, err := outcome.New(cfg.Strategy, opts...)
	if err != nil {
		return nil, fmt.Errorf("building outcome model: %w", err)
	}
	return m, nil
}

// NewEngine builds a rating engine over store from cfg. Extra options are
// applied last.
func NewEngine(store rating.Store, cfg config.RatingConfig, extra ...rating.Option) (*rating.Engine, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	epoch, err := cfg.EpochTime()
	if err != nil {
		return nil, err
	}
	opts := []rating.Option{
		rating.WithKFactor(cfg.KFactor),
		rating.WithGFactor(cfg.GFactor),
		rating.WithModel(model),
		rating.WithGuard(guard.New(guard.WithEpoch(epoch))),
	}
	engine, err := rating.New(store, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("creating rating engine: %w", err)
	}
	return engine, nil
}
