package classifier_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/classifier"
)

// separable returns two noisy clusters where column 0 carries the signal and
// column 1 is noise.
func separable(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, 0, n)
	y := make([]int, 0, n)
	for i := 0; i < n; i++ {
		label := i % 2
		x = append(x, []float64{float64(label)*4 + rng.NormFloat64()*0.5, rng.NormFloat64()})
		y = append(y, label)
	}
	return x, y
}

func smallForest() classifier.Family {
	p := classifier.DefaultForestParams()
	p.Trees = 25
	return classifier.NewForestFamily(p)
}

func smallBoosting() classifier.Family {
	p := classifier.DefaultBoostingParams()
	p.Trees = 30
	p.MaxDepth = 3
	return classifier.NewBoostingFamily(p)
}

func TestFamilies_SeparateClusters(t *testing.T) {
	x, y := separable(200, 1)

	for _, fam := range []classifier.Family{smallForest(), smallBoosting()} {
		t.Run(fam.Name(), func(t *testing.T) {
			c, err := fam.Fit(context.Background(), x, y)
			require.NoError(t, err)
			assert.Equal(t, fam.Name(), c.Family())
			assert.Equal(t, 2, c.NumFeatures())

			lo, err := c.PredictProba([]float64{0, 0})
			require.NoError(t, err)
			hi, err := c.PredictProba([]float64{4, 0})
			require.NoError(t, err)
			assert.Less(t, lo, 0.3)
			assert.Greater(t, hi, 0.7)
			assert.GreaterOrEqual(t, lo, 0.0)
			assert.LessOrEqual(t, hi, 1.0)

			imp := c.Importances()
			require.Len(t, imp, 2)
			assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
			assert.Greater(t, imp[0], imp[1])

			_, err = c.PredictProba([]float64{1})
			assert.ErrorIs(t, err, classifier.ErrWidth)
		})
	}
}

func TestForest_Deterministic(t *testing.T) {
	x, y := separable(120, 7)
	a, err := smallForest().Fit(context.Background(), x, y)
	require.NoError(t, err)
	b, err := smallForest().Fit(context.Background(), x, y)
	require.NoError(t, err)

	for _, row := range [][]float64{{0.5, 1}, {2, -1}, {3.3, 0}} {
		pa, _ := a.PredictProba(row)
		pb, _ := b.PredictProba(row)
		assert.Equal(t, pa, pb)
	}
}

func TestFit_CancelledContext(t *testing.T) {
	x, y := separable(50, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := smallForest().Fit(ctx, x, y)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = smallBoosting().Fit(ctx, x, y)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFit_RejectsBadInput(t *testing.T) {
	_, err := smallForest().Fit(context.Background(), nil, nil)
	assert.Error(t, err)
	_, err = smallBoosting().Fit(context.Background(), [][]float64{{1}, {1, 2}}, []int{0, 1})
	assert.Error(t, err)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	x, y := separable(100, 5)
	reg := classifier.NewRegistry()
	reg.Register(smallForest())
	reg.Register(smallBoosting())

	for _, name := range reg.Names() {
		t.Run(name, func(t *testing.T) {
			fam, err := reg.Get(name)
			require.NoError(t, err)
			c, err := fam.Fit(context.Background(), x, y)
			require.NoError(t, err)

			raw, err := classifier.Marshal(c)
			require.NoError(t, err)
			back, err := reg.Unmarshal(raw)
			require.NoError(t, err)

			assert.Equal(t, c.Family(), back.Family())
			assert.Equal(t, c.Importances(), back.Importances())
			for _, row := range x[:10] {
				want, _ := c.PredictProba(row)
				got, _ := back.PredictProba(row)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := classifier.DefaultRegistry()
	assert.Equal(t, []string{classifier.GradientBoostingFamily, classifier.RandomForestFamily}, reg.Names())

	_, err := reg.Get("SVC")
	assert.Error(t, err)
	assert.Panics(t, func() { reg.Register(smallForest()) })

	_, err = reg.Unmarshal([]byte(`{"family":"SVC","n_features":2,"payload":{}}`))
	assert.Error(t, err)
	_, err = reg.Unmarshal([]byte(`{"family":"RandomForestClassifier","n_features":2,"payload":{"n_features":2,"trees":[]}}`))
	assert.Error(t, err)
	_, err = reg.Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}
