package receipt

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CleanNumeric keeps only ASCII digits and dots, dropping currency symbols,
// thousands separators, signs and whitespace.
func CleanNumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if (c >= '0' && c <= '9') || c == '.' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// ParseAmount strips everything but digits and dots and parses the remainder.
// Anything that still does not parse ("", "1.2.3") yields 0.
func ParseAmount(s string) float64 {
	clean := CleanNumeric(s)
	if clean == "" {
		return 0
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// ParseFloat is the coercion used for typed numeric fields: plain numbers
// parse as-is (sign included), anything else falls back to ParseAmount.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return ParseAmount(s)
}

// ParseInt coerces text to an integer count, truncating fractional values.
func ParseInt(s string) int {
	return truncate(ParseFloat(s))
}

// ParseLabel reads a fraud label column value.
func ParseLabel(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "1.0", "true", "t", "yes", "y", "fraud":
		return true, nil
	case "0", "0.0", "false", "f", "no", "n", "legit", "":
		return false, nil
	}
	return false, fmt.Errorf("receipt: invalid fraud label %q", s)
}

func truncate(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

// looseString renders any JSON scalar as text; null and absent become "".
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return string(raw)
	}
}

func looseFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		return ParseFloat(t)
	}
	return 0
}

func looseInt(raw json.RawMessage) int {
	return truncate(looseFloat(raw))
}
