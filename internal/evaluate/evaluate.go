// Package evaluate scores held-out predictions: ROC AUC, accuracy and a
// per-class precision/recall report.
package evaluate

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// DecisionThreshold is the probability at or above which a prediction counts
// as fraud.
const DecisionThreshold = 0.5

// ErrOneClass is returned by AUC when the labels hold a single class.
var ErrOneClass = errors.New("evaluate: AUC needs both classes in the labels")

// AUC returns the area under the ROC curve of scores against labels (1 = fraud).
func AUC(scores []float64, labels []int) (float64, error) {
	if len(scores) != len(labels) {
		return 0, fmt.Errorf("evaluate: %d scores but %d labels", len(scores), len(labels))
	}
	y := append([]float64(nil), scores...)
	classes := make([]bool, len(labels))
	var pos int
	for i, l := range labels {
		classes[i] = l == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return 0, ErrOneClass
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// Predict converts probabilities to hard labels at DecisionThreshold.
func Predict(scores []float64) []int {
	out := make([]int, len(scores))
	for i, s := range scores {
		if s >= DecisionThreshold {
			out[i] = 1
		}
	}
	return out
}

// Accuracy is the fraction of predicted labels equal to the truth.
func Accuracy(pred, labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	var hit int
	for i := range labels {
		if pred[i] == labels[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(labels))
}

// ClassMetrics are precision, recall and F1 for one class.
type ClassMetrics struct {
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1_score" yaml:"f1_score"`
	Support   int     `json:"support" yaml:"support"`
}

// Report is the held-out evaluation of one classifier.
type Report struct {
	Accuracy    float64      `json:"accuracy" yaml:"accuracy"`
	Legitimate  ClassMetrics `json:"legitimate" yaml:"legitimate"`
	Fraud       ClassMetrics `json:"fraud" yaml:"fraud"`
	MacroAvg    ClassMetrics `json:"macro_avg" yaml:"macro_avg"`
	WeightedAvg ClassMetrics `json:"weighted_avg" yaml:"weighted_avg"`
	// Confusion is indexed [truth][predicted].
	Confusion [2][2]int `json:"confusion_matrix" yaml:"confusion_matrix"`
}

// Classify builds a Report from hard predictions. Undefined ratios are 0.
func Classify(pred, labels []int) Report {
	var cm [2][2]int
	for i := range labels {
		cm[labels[i]&1][pred[i]&1]++
	}

	per := func(c int) ClassMetrics {
		tp := cm[c][c]
		predicted := cm[0][c] + cm[1][c]
		actual := cm[c][0] + cm[c][1]
		m := ClassMetrics{
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, actual),
			Support:   actual,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		return m
	}
	legit, fraud := per(0), per(1)
	total := legit.Support + fraud.Support

	r := Report{
		Accuracy:   Accuracy(pred, labels),
		Legitimate: legit,
		Fraud:      fraud,
		MacroAvg: ClassMetrics{
			Precision: (legit.Precision + fraud.Precision) / 2,
			Recall:    (legit.Recall + fraud.Recall) / 2,
			F1:        (legit.F1 + fraud.F1) / 2,
			Support:   total,
		},
		WeightedAvg: ClassMetrics{Support: total},
		Confusion:   cm,
	}
	if total > 0 {
		wl, wf := float64(legit.Support)/float64(total), float64(fraud.Support)/float64(total)
		r.WeightedAvg.Precision = wl*legit.Precision + wf*fraud.Precision
		r.WeightedAvg.Recall = wl*legit.Recall + wf*fraud.Recall
		r.WeightedAvg.F1 = wl*legit.F1 + wf*fraud.F1
	}
	return r
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
