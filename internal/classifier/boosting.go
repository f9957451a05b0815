package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// GradientBoostingFamily is the family name recorded in bundles.
const GradientBoostingFamily = "GradientBoostingClassifier"

// BoostingParams configure gradient boosting on log-loss.
type BoostingParams struct {
	Trees           int     `json:"n_estimators" yaml:"n_estimators"`
	LearningRate    float64 `json:"learning_rate" yaml:"learning_rate"`
	MaxDepth        int     `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	Seed            int64   `json:"random_state" yaml:"random_state"`
}

// DefaultBoostingParams returns 100 stages of depth 6 at rate 0.1.
func DefaultBoostingParams() BoostingParams {
	return BoostingParams{
		Trees:           100,
		LearningRate:    0.1,
		MaxDepth:        6,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
	}
}

// Boosted is a fitted additive model of regression trees in log-odds space.
type Boosted struct {
	Width        int       `json:"n_features"`
	Init         float64   `json:"init"`
	LearningRate float64   `json:"learning_rate"`
	Trees        []*Tree   `json:"trees"`
	Importance   []float64 `json:"feature_importances"`
}

func (b *Boosted) Family() string         { return GradientBoostingFamily }
func (b *Boosted) NumFeatures() int       { return b.Width }
func (b *Boosted) Importances() []float64 { return append([]float64(nil), b.Importance...) }

// PredictProba returns the logistic of the summed stage outputs.
func (b *Boosted) PredictProba(x []float64) (float64, error) {
	if len(x) != b.Width {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrWidth, len(x), b.Width)
	}
	return sigmoid(b.raw(x)), nil
}

func (b *Boosted) raw(x []float64) float64 {
	f := b.Init
	for _, t := range b.Trees {
		f += b.LearningRate * t.Predict(x)
	}
	return f
}

func (b *Boosted) validate() error {
	if b.Width <= 0 || len(b.Trees) == 0 {
		return fmt.Errorf("boosted model is empty")
	}
	if math.IsNaN(b.Init) || math.IsInf(b.Init, 0) {
		return fmt.Errorf("boosted model has non-finite init")
	}
	for i, t := range b.Trees {
		if err := t.validate(b.Width); err != nil {
			return fmt.Errorf("stage %d: %w", i, err)
		}
	}
	return nil
}

type boostingFamily struct {
	params BoostingParams
}

// NewBoostingFamily returns the gradient boosting family with p.
func NewBoostingFamily(p BoostingParams) Family {
	return &boostingFamily{params: p}
}

func (bf *boostingFamily) Name() string { return GradientBoostingFamily }

// Fit runs the stages sequentially. Each stage fits a tree to the log-loss
// gradient and sets leaves to a single Newton step.
func (bf *boostingFamily) Fit(ctx context.Context, x [][]float64, y []int) (Classifier, error) {
	if err := checkTrainingSet(x, y); err != nil {
		return nil, err
	}
	p := bf.params
	if p.Trees <= 0 || p.LearningRate <= 0 {
		return nil, fmt.Errorf("gradient boosting: n_estimators and learning_rate must be positive")
	}
	width := len(x[0])
	target := labelsToFloat(y)

	var pos float64
	for _, v := range target {
		pos += v
	}
	prior := clampProb(pos / float64(len(target)))
	model := &Boosted{
		Width:        width,
		Init:         math.Log(prior / (1 - prior)),
		LearningRate: p.LearningRate,
		Trees:        make([]*Tree, 0, p.Trees),
	}

	raw := make([]float64, len(x))
	for i := range raw {
		raw[i] = model.Init
	}
	prob := make([]float64, len(x))
	residual := make([]float64, len(x))
	rows := make([]int, len(x))
	for i := range rows {
		rows[i] = i
	}
	tp := treeParams{
		maxDepth:        p.MaxDepth,
		minSamplesSplit: p.MinSamplesSplit,
		minSamplesLeaf:  p.MinSamplesLeaf,
	}
	rng := rand.New(rand.NewSource(p.Seed))
	imp := make([]float64, width)

	newton := func(rows []int) float64 {
		var num, den float64
		for _, r := range rows {
			num += residual[r]
			den += prob[r] * (1 - prob[r])
		}
		if den < 1e-150 {
			return 0
		}
		return num / den
	}

	for m := 0; m < p.Trees; m++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range raw {
			prob[i] = sigmoid(raw[i])
			residual[i] = target[i] - prob[i]
		}
		t := growTree(x, residual, rows, tp, newton, rng)
		for i := range raw {
			raw[i] += p.LearningRate * t.Predict(x[i])
		}
		for j, v := range t.importance {
			imp[j] += v
		}
		model.Trees = append(model.Trees, t)
	}
	model.Importance = normalize(imp)
	return model, nil
}

func (bf *boostingFamily) Decode(payload json.RawMessage) (Classifier, error) {
	var b Boosted
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, err
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func clampProb(p float64) float64 {
	const eps = 1e-15
	return math.Min(math.Max(p, eps), 1-eps)
}
