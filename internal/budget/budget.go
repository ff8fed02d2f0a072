// Package budget caps the word count of a structured response and splits the
// cap across sections by weight.
package budget

import (
	"fmt"
	"math"
)

// Config defines word-budget guardrails for a run. Nil fields defer to the
// application defaults.
type Config struct {
	Cap     *int
	Weights map[string]float64
}

// Validate ensures the budget values are sane before use.
func (c Config) Validate() error {
	if c.Cap != nil && *c.Cap < 0 {
		return fmt.Errorf("cap cannot be negative")
	}
	if len(c.Weights) > 0 {
		sum := 0.0
		for name, w := range c.Weights {
			if w < 0 {
				return fmt.Errorf("weight %s cannot be negative", name)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > 1e-6 {
			return fmt.Errorf("weights must sum to 1.0, got %.4f", sum)
		}
	}
	return nil
}

// Clone produces a deep copy of the config.
func (c Config) Clone() Config {
	clone := Config{}
	if c.Cap != nil {
		v := *c.Cap
		clone.Cap = &v
	}
	if c.Weights != nil {
		clone.Weights = make(map[string]float64, len(c.Weights))
		for k, v := range c.Weights {
			clone.Weights[k] = v
		}
	}
	return clone
}

// Merge overlays non-nil values from override onto base.
func Merge(base Config, override Config) Config {
	result := base.Clone()
	if override.Cap != nil {
		v := *override.Cap
		result.Cap = &v
	}
	if override.Weights != nil {
		result.Weights = make(map[string]float64, len(override.Weights))
		for k, v := range override.Weights {
			result.Weights[k] = v
		}
	}
	return result
}

// IsZero reports whether the config defines no explicit limits.
func (c Config) IsZero() bool {
	if c.Cap != nil && *c.Cap != 0 {
		return false
	}
	return len(c.Weights) == 0
}

// Resolve fills nil fields from the supplied defaults.
func (c Config) Resolve(defaultCap int, defaultWeights map[string]float64) (int, map[string]float64) {
	capWords := defaultCap
	if c.Cap != nil {
		capWords = *c.Cap
	}
	weights := c.Weights
	if len(weights) == 0 {
		weights = defaultWeights
	}
	return capWords, weights
}
