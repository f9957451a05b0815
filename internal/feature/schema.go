// Package feature derives the fixed-order numeric feature vector from a raw
// receipt. The same Extractor serves the trainer and every inference transport.
package feature

import (
	"fmt"
)

// Canonical feature names, in the order training emits them.
const (
	TotalAmount           = "total_amount"
	Tip                   = "tip"
	ItemCount             = "item_count"
	TipRatio              = "tip_ratio"
	AvgItemPrice          = "avg_item_price"
	AmountLog             = "amount_log"
	IsHighAmount          = "is_high_amount"
	IsLowAmount           = "is_low_amount"
	IsWeekend             = "is_weekend"
	IsMonthEnd            = "is_month_end"
	Month                 = "month"
	DayOfWeek             = "day_of_week"
	VendorNameLength      = "vendor_name_length"
	VendorHasNumbers      = "vendor_has_numbers"
	VendorHasSpecialChars = "vendor_has_special_chars"
	VendorWordCount       = "vendor_word_count"
	HasPaymentMethod      = "has_payment_method"
	HasItems              = "has_items"
	IsHighItemCount       = "is_high_item_count"
	HasTip                = "has_tip"
)

// Names returns the canonical ordered feature list. The slice is a fresh copy.
func Names() []string {
	return []string{
		TotalAmount, Tip, ItemCount, TipRatio, AvgItemPrice,
		AmountLog, IsHighAmount, IsLowAmount,
		IsWeekend, IsMonthEnd, Month, DayOfWeek,
		VendorNameLength, VendorHasNumbers, VendorHasSpecialChars, VendorWordCount,
		HasPaymentMethod,
		HasItems, IsHighItemCount,
		HasTip,
	}
}

// Schema is an ordered, duplicate-free list of feature names. It is what a
// bundle's scaler and classifier were fit against.
type Schema struct {
	names []string
}

// NewSchema validates names. Unknown names are allowed (they extract as 0) but
// empty or duplicate names are rejected because they can never be intentional.
func NewSchema(names []string) (Schema, error) {
	if len(names) == 0 {
		return Schema{}, fmt.Errorf("feature schema: no feature names")
	}
	seen := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return Schema{}, fmt.Errorf("feature schema: name at position %d is empty", i)
		}
		if prev, ok := seen[n]; ok {
			return Schema{}, fmt.Errorf("feature schema: duplicate name %q at positions %d and %d", n, prev, i)
		}
		seen[n] = i
	}
	out := make([]string, len(names))
	copy(out, names)
	return Schema{names: out}, nil
}

// Names returns a copy of the ordered names.
func (s Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len is the vector width.
func (s Schema) Len() int { return len(s.names) }

// Unknown returns the names the extractor does not derive.
func (s Schema) Unknown() []string {
	var out []string
	for _, n := range s.names {
		if !Known(n) {
			out = append(out, n)
		}
	}
	return out
}

// Known reports whether name is one of the canonical features.
func Known(name string) bool {
	_, ok := Set{}.Value(name)
	return ok
}
