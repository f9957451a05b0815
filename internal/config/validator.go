package config

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/classifier"
)

var (
	validLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validFormats  = map[string]bool{"json": true, "text": true}
	validPolicies = map[string]bool{"quantile": true, "fixed": true}
)

// Validate checks the config for:
//   - Out-of-range concurrency and timeout settings
//   - Unknown logging level, format or threshold policy
//   - Training candidates that no classifier family provides
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if cfg.Server.MaxBodyBytes < 0 {
		errs = append(errs, "server.max_body_bytes must not be negative")
	}
	if cfg.Bundle.Dir == "" {
		errs = append(errs, "bundle.dir is required")
	}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level))
	}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("logging.format %q is not one of json, text", cfg.Logging.Format))
	}
	if cfg.Engine.Workers < 1 {
		errs = append(errs, "engine.workers must be at least 1")
	}
	if cfg.Engine.QueueDepth < 1 {
		errs = append(errs, "engine.queue_depth must be at least 1")
	}
	if cfg.Engine.TimeoutMs < 1 {
		errs = append(errs, "engine.timeout_ms must be at least 1")
	}
	if cfg.Batch.Workers < 1 {
		errs = append(errs, "batch.workers must be at least 1")
	}

	t := cfg.Training
	if t.TestSize <= 0 || t.TestSize >= 1 {
		errs = append(errs, fmt.Sprintf("training.test_size %v must be between 0 and 1", t.TestSize))
	}
	if t.Neighbors < 1 {
		errs = append(errs, "training.balancer_neighbors must be at least 1")
	}
	if !validPolicies[t.ThresholdPolicy] {
		errs = append(errs, fmt.Sprintf("training.threshold_policy %q is not one of quantile, fixed", t.ThresholdPolicy))
	}
	known := map[string]bool{classifier.RandomForestFamily: true, classifier.GradientBoostingFamily: true}
	seen := map[string]bool{}
	for i, c := range t.Candidates {
		if !known[c] {
			errs = append(errs, fmt.Sprintf("training.candidates[%d]: unknown classifier %q", i, c))
		}
		if seen[c] {
			errs = append(errs, fmt.Sprintf("training.candidates[%d]: duplicate classifier %q", i, c))
		}
		seen[c] = true
	}
	if t.RandomForest.MaxDepth < 1 || t.GradientBoosting.MaxDepth < 1 {
		errs = append(errs, "training max_depth must be at least 1")
	}
	if t.GradientBoosting.LearningRate <= 0 {
		errs = append(errs, "training.gradient_boosting.learning_rate must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
