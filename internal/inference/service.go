// Package inference scores raw receipts against a loaded model bundle.
package inference

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/bundle"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/feature"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/risk"
)

// ErrModelNotLoaded is returned by Score before a bundle is installed or
// after loading failed.
var ErrModelNotLoaded = errors.New("model not loaded")

// State is the model lifecycle of a Service.
type State int32

const (
	StateNotLoaded State = iota
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "not_loaded"
	}
}

// Loader produces a verified bundle, typically bundle.Store.
type Loader interface {
	Load() (*bundle.Bundle, error)
}

// ModelInfo identifies the bundle that produced a prediction.
type ModelInfo struct {
	Version   string  `json:"version"`
	ModelType string  `json:"model_type"`
	AUCScore  float64 `json:"auc_score"`
}

// Prediction is a decision plus the model that made it.
type Prediction struct {
	risk.Decision
	Model ModelInfo `json:"-"`
}

// loaded pairs a bundle with the extractor built from its thresholds.
type loaded struct {
	bundle    *bundle.Bundle
	extractor *feature.Extractor
	info      ModelInfo
}

// Service owns one model bundle. Score is safe for concurrent use and never
// blocks on Load or Swap.
type Service struct {
	current atomic.Pointer[loaded]
	state   atomic.Int32
	now     func() time.Time

	mu      sync.Mutex
	loadErr error
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for receipts with no readable date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service in the not-loaded state.
func New(opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load installs the bundle from l. A failure is terminal: the service stays
// failed and later calls return the first error without retrying.
func (s *Service) Load(l Loader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateFailed {
		return s.loadErr
	}
	b, err := l.Load()
	if err != nil {
		s.loadErr = fmt.Errorf("load bundle: %w", err)
		s.state.Store(int32(StateFailed))
		return s.loadErr
	}
	return s.install(b)
}

// Swap atomically replaces the live bundle. In-flight Score calls finish on
// the bundle they started with. A failed service cannot be revived.
func (s *Service) Swap(b *bundle.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateFailed {
		return s.loadErr
	}
	return s.install(b)
}

func (s *Service) install(b *bundle.Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.current.Store(&loaded{
		bundle:    b,
		extractor: b.Extractor(feature.WithClock(s.now)),
		info: ModelInfo{
			Version:   b.Metadata.Version,
			ModelType: b.Classifier.Family(),
			AUCScore:  b.Metadata.BestAUC,
		},
	})
	s.state.Store(int32(StateLoaded))
	return nil
}

// State reports the current lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

// Ready reports whether a bundle is installed.
func (s *Service) Ready() bool {
	return s.State() == StateLoaded
}

// LoadError returns the error that failed the service, if any.
func (s *Service) LoadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Model describes the live bundle; ok is false when none is installed.
func (s *Service) Model() (ModelInfo, bool) {
	l := s.current.Load()
	if l == nil || !s.Ready() {
		return ModelInfo{}, false
	}
	return l.info, true
}

// Features returns the live bundle's ordered feature list.
func (s *Service) Features() []string {
	l := s.current.Load()
	if l == nil {
		return nil
	}
	return append([]string(nil), l.bundle.Features...)
}

// Vector returns the unscaled feature vector the live bundle would score.
func (s *Service) Vector(rec receipt.Record) ([]float64, error) {
	l := s.current.Load()
	if l == nil || !s.Ready() {
		return nil, ErrModelNotLoaded
	}
	return l.extractor.Extract(rec, l.bundle.Features), nil
}

// Score derives, scales and classifies rec.
func (s *Service) Score(rec receipt.Record) (Prediction, error) {
	l := s.current.Load()
	if l == nil || !s.Ready() {
		return Prediction{}, ErrModelNotLoaded
	}
	vec := l.extractor.Extract(rec, l.bundle.Features)
	scaled, err := l.bundle.Scaler.TransformRow(vec)
	if err != nil {
		return Prediction{}, fmt.Errorf("scale features: %w", err)
	}
	p, err := l.bundle.Classifier.PredictProba(scaled)
	if err != nil {
		return Prediction{}, fmt.Errorf("classify: %w", err)
	}
	return Prediction{Decision: risk.Decide(p), Model: l.info}, nil
}
