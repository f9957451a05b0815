package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RandomForestFamily is the family name recorded in bundles.
const RandomForestFamily = "RandomForestClassifier"

// ForestParams configure a random forest.
type ForestParams struct {
	Trees           int   `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        int   `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	Seed            int64 `json:"random_state" yaml:"random_state"`
	// Workers bounds parallel tree fitting; 0 means GOMAXPROCS.
	Workers int `json:"-" yaml:"workers"`
}

// DefaultForestParams returns 200 trees of depth ≤ 10 with sqrt feature sampling.
func DefaultForestParams() ForestParams {
	return ForestParams{
		Trees:           200,
		MaxDepth:        10,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Seed:            42,
	}
}

// Forest is a fitted bagged ensemble of probability trees.
type Forest struct {
	Width      int       `json:"n_features"`
	Trees      []*Tree   `json:"trees"`
	Importance []float64 `json:"feature_importances"`
}

func (f *Forest) Family() string         { return RandomForestFamily }
func (f *Forest) NumFeatures() int       { return f.Width }
func (f *Forest) Importances() []float64 { return append([]float64(nil), f.Importance...) }

// PredictProba averages the leaf fraud rate across trees.
func (f *Forest) PredictProba(x []float64) (float64, error) {
	if len(x) != f.Width {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrWidth, len(x), f.Width)
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

func (f *Forest) validate() error {
	if f.Width <= 0 || len(f.Trees) == 0 {
		return fmt.Errorf("forest is empty")
	}
	for i, t := range f.Trees {
		if err := t.validate(f.Width); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

type forestFamily struct {
	params ForestParams
}

// NewForestFamily returns the random forest family with p.
func NewForestFamily(p ForestParams) Family {
	return &forestFamily{params: p}
}

func (ff *forestFamily) Name() string { return RandomForestFamily }

// Fit grows each tree on its own bootstrap sample. Trees draw from
// independent seeded sources so the result does not depend on scheduling.
func (ff *forestFamily) Fit(ctx context.Context, x [][]float64, y []int) (Classifier, error) {
	if err := checkTrainingSet(x, y); err != nil {
		return nil, err
	}
	p := ff.params
	if p.Trees <= 0 {
		return nil, fmt.Errorf("random forest: n_estimators must be positive")
	}
	width := len(x[0])
	target := labelsToFloat(y)
	tp := treeParams{
		maxDepth:        p.MaxDepth,
		minSamplesSplit: p.MinSamplesSplit,
		minSamplesLeaf:  p.MinSamplesLeaf,
		maxFeatures:     int(math.Max(1, math.Sqrt(float64(width)))),
	}

	seeds := rand.New(rand.NewSource(p.Seed))
	treeSeeds := make([]int64, p.Trees)
	for i := range treeSeeds {
		treeSeeds[i] = seeds.Int63()
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	trees := make([]*Tree, p.Trees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(treeSeeds[i]))
			rows := make([]int, len(x))
			for j := range rows {
				rows[j] = rng.Intn(len(x))
			}
			trees[i] = growTree(x, target, rows, tp, meanLeaf(target), rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	imp := make([]float64, width)
	for _, t := range trees {
		for j, v := range normalize(t.importance) {
			imp[j] += v
		}
	}
	return &Forest{Width: width, Trees: trees, Importance: normalize(imp)}, nil
}

func (ff *forestFamily) Decode(payload json.RawMessage) (Classifier, error) {
	var f Forest
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, err
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
