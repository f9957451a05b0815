package evaluate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/evaluate"
)

func TestAUC(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		labels []int
		want   float64
	}{
		{"perfect", []float64{0.1, 0.2, 0.8, 0.9}, []int{0, 0, 1, 1}, 1},
		{"inverted", []float64{0.9, 0.8, 0.2, 0.1}, []int{0, 0, 1, 1}, 0},
		{"all tied", []float64{0.5, 0.5, 0.5, 0.5}, []int{0, 1, 0, 1}, 0.5},
		{"one swap", []float64{0.1, 0.4, 0.35, 0.8}, []int{0, 0, 1, 1}, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluate.AUC(tt.scores, tt.labels)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestAUC_DoesNotReorderInput(t *testing.T) {
	scores := []float64{0.9, 0.1, 0.5}
	_, err := evaluate.AUC(scores, []int{1, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.1, 0.5}, scores)
}

func TestAUC_Errors(t *testing.T) {
	_, err := evaluate.AUC([]float64{0.1, 0.2}, []int{1, 1})
	assert.ErrorIs(t, err, evaluate.ErrOneClass)
	_, err = evaluate.AUC([]float64{0.1}, []int{1, 0})
	assert.Error(t, err)
}

func TestPredict_ThresholdIsInclusive(t *testing.T) {
	assert.Equal(t, []int{0, 1, 1}, evaluate.Predict([]float64{0.4999, 0.5, 0.93}))
}

func TestClassify(t *testing.T) {
	labels := []int{0, 0, 0, 1, 1}
	pred := []int{0, 0, 1, 1, 0}

	r := evaluate.Classify(pred, labels)
	assert.InDelta(t, 0.6, r.Accuracy, 1e-12)
	assert.Equal(t, [2][2]int{{2, 1}, {1, 1}}, r.Confusion)

	assert.InDelta(t, 2.0/3, r.Legitimate.Precision, 1e-12)
	assert.InDelta(t, 2.0/3, r.Legitimate.Recall, 1e-12)
	assert.Equal(t, 3, r.Legitimate.Support)

	assert.InDelta(t, 0.5, r.Fraud.Precision, 1e-12)
	assert.InDelta(t, 0.5, r.Fraud.Recall, 1e-12)
	assert.InDelta(t, 0.5, r.Fraud.F1, 1e-12)
	assert.Equal(t, 2, r.Fraud.Support)

	assert.Equal(t, 5, r.MacroAvg.Support)
	assert.InDelta(t, (2.0/3+0.5)/2, r.MacroAvg.Precision, 1e-12)
	assert.InDelta(t, 0.6*(2.0/3)+0.4*0.5, r.WeightedAvg.Recall, 1e-12)
}

func TestClassify_NoPositivePredictions(t *testing.T) {
	r := evaluate.Classify([]int{0, 0}, []int{0, 1})
	assert.Equal(t, 0.0, r.Fraud.Precision)
	assert.Equal(t, 0.0, r.Fraud.F1)
}
