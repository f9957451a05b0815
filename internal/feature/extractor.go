package feature

import (
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"
)

// Epsilon keeps the ratio features finite without branching on zero.
const Epsilon = 1e-6

// Extractor is a pure function object: receipt in, vector out. It never fails;
// malformed input degrades to documented defaults. Safe for concurrent use.
type Extractor struct {
	thresholds Thresholds
	now        func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock replaces the clock consulted when a receipt date is missing or
// unparsable.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor builds an extractor that applies t. A zero t means the fixed
// default thresholds.
func NewExtractor(t Thresholds, opts ...Option) *Extractor {
	if t.IsZero() {
		t = DefaultThresholds()
	}
	e := &Extractor{thresholds: t, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Thresholds returns the cut-offs this extractor applies.
func (e *Extractor) Thresholds() Thresholds { return e.thresholds }

// Derive computes every canonical feature for rec.
func (e *Extractor) Derive(rec receipt.Record) Set {
	amount := rec.TotalAmount
	tip := rec.Tip
	items := float64(rec.ItemCount)

	date, ok := parseDate(rec.Date)
	if !ok {
		date = e.now()
	}

	vendor := rec.Vendor
	var hasDigit, hasSpecial bool
	for _, r := range vendor {
		if unicode.IsDigit(r) {
			hasDigit = true
		}
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsSpace(r) {
			hasSpecial = true
		}
	}

	return Set{
		TotalAmount:           amount,
		Tip:                   tip,
		ItemCount:             items,
		TipRatio:              tip / (amount + Epsilon),
		AvgItemPrice:          amount / (items + Epsilon),
		AmountLog:             math.Log(amount + 1),
		IsHighAmount:          flag(amount > e.thresholds.HighAmount),
		IsLowAmount:           flag(amount < e.thresholds.LowAmount),
		IsWeekend:             flag(isoWeekday(date) >= 5),
		IsMonthEnd:            flag(date.Day() >= 25),
		Month:                 float64(date.Month()),
		DayOfWeek:             float64(isoWeekday(date)),
		VendorNameLength:      float64(utf8.RuneCountInString(vendor)),
		VendorHasNumbers:      flag(hasDigit),
		VendorHasSpecialChars: flag(hasSpecial),
		VendorWordCount:       float64(len(strings.Fields(vendor))),
		HasPaymentMethod:      flag(strings.TrimSpace(rec.PaymentMethod) != ""),
		HasItems:              flag(rec.ItemCount > 0),
		IsHighItemCount:       flag(items > e.thresholds.HighItemCount),
		HasTip:                flag(tip > 0),
	}
}

// Extract returns the vector for rec with vector[i] matching names[i].
// Names the extractor does not know extract as 0, as does any non-finite value.
func (e *Extractor) Extract(rec receipt.Record, names []string) []float64 {
	set := e.Derive(rec)
	out := make([]float64, len(names))
	for i, name := range names {
		v, _ := set.Value(name)
		out[i] = finite(v)
	}
	return out
}

// Matrix extracts one row per record.
func (e *Extractor) Matrix(records []receipt.Record, names []string) [][]float64 {
	out := make([][]float64, len(records))
	for i, r := range records {
		out[i] = e.Extract(r, names)
	}
	return out
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
