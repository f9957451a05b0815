package train

import (
	"fmt"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/balance"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/classifier"
)

// Threshold policies.
const (
	// PolicyQuantile fits the flag thresholds to the training table.
	PolicyQuantile = "quantile"
	// PolicyFixed persists the 500 / 50 / 10 constants.
	PolicyFixed = "fixed"
)

// Config controls one training run.
type Config struct {
	Candidates      []string
	TestSize        float64
	Seed            int64
	Neighbors       int
	ThresholdPolicy string
}

// DefaultConfig returns an 80/20 split with seed 42, three balancing
// neighbours, quantile thresholds and both tree ensembles as candidates.
func DefaultConfig() Config {
	return Config{
		Candidates:      []string{classifier.RandomForestFamily, classifier.GradientBoostingFamily},
		TestSize:        0.2,
		Seed:            balance.DefaultSeed,
		Neighbors:       balance.DefaultNeighbors,
		ThresholdPolicy: PolicyQuantile,
	}
}

func (c Config) validate(reg *classifier.Registry) error {
	if len(c.Candidates) == 0 {
		return fmt.Errorf("train: no candidate classifiers")
	}
	for _, name := range c.Candidates {
		if _, err := reg.Get(name); err != nil {
			return fmt.Errorf("train: %w", err)
		}
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return fmt.Errorf("train: test size %v must be in (0, 1)", c.TestSize)
	}
	switch c.ThresholdPolicy {
	case PolicyQuantile, PolicyFixed:
	default:
		return fmt.Errorf("train: unknown threshold policy %q", c.ThresholdPolicy)
	}
	return nil
}
