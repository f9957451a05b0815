// Package classifier holds the binary probability models the trainer can fit
// and the JSON envelope they are persisted in.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrWidth is returned when an input vector does not match the fitted width.
var ErrWidth = errors.New("classifier: feature width mismatch")

// Classifier scores a standardised feature vector.
type Classifier interface {
	// PredictProba returns P(fraud) in [0, 1].
	PredictProba(x []float64) (float64, error)
	Family() string
	NumFeatures() int
	// Importances are normalised to sum to 1, indexed like the input vector.
	Importances() []float64
}

// Family fits and decodes one kind of classifier.
type Family interface {
	Name() string
	Fit(ctx context.Context, x [][]float64, y []int) (Classifier, error)
	Decode(payload json.RawMessage) (Classifier, error)
}

// Registry maps family names to implementations.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu       sync.RWMutex
	families map[string]Family
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{families: make(map[string]Family)}
}

// DefaultRegistry registers random forest and gradient boosting with their
// default parameters.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewForestFamily(DefaultForestParams()))
	r.Register(NewBoostingFamily(DefaultBoostingParams()))
	return r
}

// Register adds a family. Panics on duplicate name to surface misconfiguration early.
func (r *Registry) Register(f Family) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.families[f.Name()]; exists {
		panic(fmt.Sprintf("classifier registry: duplicate family %q", f.Name()))
	}
	r.families[f.Name()] = f
}

// Get returns the family registered under name.
func (r *Registry) Get(name string) (Family, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[name]
	if !ok {
		return nil, fmt.Errorf("no classifier family registered as %q", name)
	}
	return f, nil
}

// Names returns the registered family names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.families))
	for k := range r.families {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type envelope struct {
	Family    string          `json:"family"`
	NumInputs int             `json:"n_features"`
	Payload   json.RawMessage `json:"payload"`
}

// Marshal wraps c in the family envelope.
func Marshal(c Classifier) ([]byte, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Family(), err)
	}
	return json.Marshal(envelope{Family: c.Family(), NumInputs: c.NumFeatures(), Payload: payload})
}

// Unmarshal decodes an envelope written by Marshal using the family named in it.
func (r *Registry) Unmarshal(data []byte) (Classifier, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode classifier envelope: %w", err)
	}
	fam, err := r.Get(env.Family)
	if err != nil {
		return nil, err
	}
	c, err := fam.Decode(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Family, err)
	}
	if c.NumFeatures() != env.NumInputs {
		return nil, fmt.Errorf("decode %s: envelope declares %d features, payload has %d", env.Family, env.NumInputs, c.NumFeatures())
	}
	return c, nil
}

func checkTrainingSet(x [][]float64, y []int) error {
	if len(x) == 0 {
		return errors.New("classifier: empty training set")
	}
	if len(x) != len(y) {
		return fmt.Errorf("classifier: %d rows but %d labels", len(x), len(y))
	}
	width := len(x[0])
	if width == 0 {
		return errors.New("classifier: rows have no features")
	}
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("classifier: row %d has %d features, want %d", i, len(row), width)
		}
	}
	return nil
}

func labelsToFloat(y []int) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		if v != 0 {
			out[i] = 1
		}
	}
	return out
}
