package outcome

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Classifier estimates from round statistics the probability that a player was on
// the winning side.
type Classifier interface {
	WinProbability(features map[string]float64) (float64, error)
}

// LogisticClassifier is a fitted binary logistic regression.
// Features absent from a vector count as zero.
type LogisticClassifier struct {
	Intercept    float64            `yaml:"intercept"`
	Coefficients map[string]float64 `yaml:"coefficients"`
}

// LoadClassifier reads a fitted model from a YAML file.
func LoadClassifier(path string) (*LogisticClassifier, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading classifier: %w", err)
	}
	var c LogisticClassifier
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing classifier: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *LogisticClassifier) validate() error {
	if len(c.Coefficients) == 0 {
		return fmt.Errorf("classifier has no coefficients")
	}
	if !finite(c.Intercept) {
		return fmt.Errorf("classifier intercept is not finite")
	}
	for name, v := range c.Coefficients {
		if !finite(v) {
			return fmt.Errorf("classifier coefficient %q is not finite", name)
		}
	}
	return nil
}

// Features lists the coefficient names in sorted order.
func (c *LogisticClassifier) Features() []string {
	out := make([]string, 0, len(c.Coefficients))
	for name := range c.Coefficients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// WinProbability implements Classifier.
func (c *LogisticClassifier) WinProbability(features map[string]float64) (float64, error) {
	if features == nil {
		return 0, fmt.Errorf("%w: no features recorded", ErrMalformedFeatures)
	}
	for name, v := range features {
		if !finite(v) {
			return 0, fmt.Errorf("%w: %q is %v", ErrMalformedFeatures, name, v)
		}
	}
	z := c.Intercept
	for name, coef := range c.Coefficients {
		z += coef * features[name]
	}
	return 1 / (1 + math.Exp(-z)), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
