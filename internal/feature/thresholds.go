package feature

import (
	"math"
	"sort"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"
)

// Fixed cut-offs used when a bundle carries no fitted thresholds.
const (
	DefaultHighAmount    = 500
	DefaultLowAmount     = 50
	DefaultHighItemCount = 10
)

// Quantiles used to fit thresholds from a training table.
const (
	HighQuantile = 0.9
	LowQuantile  = 0.1
)

// Thresholds are the cut-offs behind is_high_amount, is_low_amount and
// is_high_item_count. Training persists them in the bundle and inference
// applies the persisted values.
type Thresholds struct {
	HighAmount    float64 `json:"high_amount" yaml:"high_amount"`
	LowAmount     float64 `json:"low_amount" yaml:"low_amount"`
	HighItemCount float64 `json:"high_item_count" yaml:"high_item_count"`
}

// DefaultThresholds returns the fixed constants (500, 50, 10).
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighAmount:    DefaultHighAmount,
		LowAmount:     DefaultLowAmount,
		HighItemCount: DefaultHighItemCount,
	}
}

// IsZero reports whether no threshold was set, as in bundles written before
// thresholds were persisted.
func (t Thresholds) IsZero() bool {
	return t == Thresholds{}
}

// FitThresholds computes the 90th/10th percentile cut-offs of a training table
// with linear interpolation between order statistics. An empty table yields
// the defaults.
func FitThresholds(records []receipt.Record) Thresholds {
	if len(records) == 0 {
		return DefaultThresholds()
	}
	amounts := make([]float64, len(records))
	items := make([]float64, len(records))
	for i, r := range records {
		amounts[i] = r.TotalAmount
		items[i] = float64(r.ItemCount)
	}
	sort.Float64s(amounts)
	sort.Float64s(items)
	return Thresholds{
		HighAmount:    quantile(amounts, HighQuantile),
		LowAmount:     quantile(amounts, LowQuantile),
		HighItemCount: quantile(items, HighQuantile),
	}
}

// quantile returns the p-quantile of sorted at position (n-1)p, interpolating
// between the neighbouring order statistics.
func quantile(sorted []float64, p float64) float64 {
	h := float64(len(sorted)-1) * p
	lo, hi := int(math.Floor(h)), int(math.Ceil(h))
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}
