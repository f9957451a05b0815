package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/balance"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/classifier"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := preset()
	ApplyDefaults(&cfg)
	return &cfg
}

// Load reads a YAML config file and applies defaults. An empty path yields
// Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// preset holds the defaults for fields where zero is a valid setting, so they
// are filled before decoding rather than after.
func preset() Config {
	return Config{
		Training: TrainingConf{
			Seed:             balance.DefaultSeed,
			RandomForest:     classifier.DefaultForestParams(),
			GradientBoosting: classifier.DefaultBoostingParams(),
		},
	}
}

// Parse decodes YAML over the preset values and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := preset()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ApplyDefaults fills zero values. Training.Seed is left alone: 0 is a valid seed.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeoutMs == 0 {
		cfg.Server.ReadTimeoutMs = 10000
	}
	if cfg.Server.WriteTimeoutMs == 0 {
		cfg.Server.WriteTimeoutMs = 30000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Bundle.Dir == "" {
		cfg.Bundle.Dir = "models"
	}
	if cfg.Bundle.DebounceMs == 0 {
		cfg.Bundle.DebounceMs = 250
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 16
	}
	if cfg.Engine.QueueDepth == 0 {
		cfg.Engine.QueueDepth = 1024
	}
	if cfg.Engine.TimeoutMs == 0 {
		cfg.Engine.TimeoutMs = 5000
	}
	t := &cfg.Training
	if len(t.Candidates) == 0 {
		t.Candidates = []string{classifier.RandomForestFamily, classifier.GradientBoostingFamily}
	}
	if t.TestSize == 0 {
		t.TestSize = 0.2
	}
	if t.Neighbors == 0 {
		t.Neighbors = balance.DefaultNeighbors
	}
	if t.ThresholdPolicy == "" {
		t.ThresholdPolicy = "quantile"
	}
	if t.RandomForest.Trees == 0 {
		t.RandomForest = classifier.DefaultForestParams()
	}
	if t.GradientBoosting.Trees == 0 {
		t.GradientBoosting = classifier.DefaultBoostingParams()
	}
	if cfg.Batch.Workers == 0 {
		cfg.Batch.Workers = 8
	}
}

// Registry builds the classifier families with the configured parameters.
func (t TrainingConf) Registry() *classifier.Registry {
	reg := classifier.NewRegistry()
	reg.Register(classifier.NewForestFamily(t.RandomForest))
	reg.Register(classifier.NewBoostingFamily(t.GradientBoosting))
	return reg
}
