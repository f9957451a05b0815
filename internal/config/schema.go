package config

import (
	"github.com/gyaneshwarpardhi/receiptrisk/internal/classifier"
)

// Config is the top-level YAML structure.
type Config struct {
	Server   ServerConf   `yaml:"server"`
	Bundle   BundleConf   `yaml:"bundle"`
	Logging  LoggingConf  `yaml:"logging"`
	Engine   EngineConf   `yaml:"engine"`
	Training TrainingConf `yaml:"training"`
	Batch    BatchConf    `yaml:"batch"`
}

// ServerConf holds HTTP listener settings.
type ServerConf struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

// BundleConf locates the model bundle store.
type BundleConf struct {
	Dir        string `yaml:"dir"`
	Watch      bool   `yaml:"watch"`
	DebounceMs int    `yaml:"debounce_ms"`
}

// LoggingConf selects log level and format.
type LoggingConf struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConf holds tunable concurrency settings.
type EngineConf struct {
	Workers    int `yaml:"workers"`
	QueueDepth int `yaml:"queue_depth"`
	TimeoutMs  int `yaml:"timeout_ms"`
}

// TrainingConf controls the trainer and its candidate families.
type TrainingConf struct {
	Candidates       []string                  `yaml:"candidates"`
	TestSize         float64                   `yaml:"test_size"`
	Seed             int64                     `yaml:"seed"`
	Neighbors        int                       `yaml:"balancer_neighbors"`
	ThresholdPolicy  string                    `yaml:"threshold_policy"`
	RandomForest     classifier.ForestParams   `yaml:"random_forest"`
	GradientBoosting classifier.BoostingParams `yaml:"gradient_boosting"`
}

// BatchConf tunes the batch tester.
type BatchConf struct {
	Workers int `yaml:"workers"`
}
