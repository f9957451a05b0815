package receipt

import (
	"encoding/json"
	"strings"
)

// Text is a JSON scalar read as a string, so {"value": 42.5} and
// {"value": "42.5"} decode the same way.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	*t = Text(looseString(json.RawMessage(data)))
	return nil
}

// Item is one {label, value} pair as produced by the OCR/summarize step
// upstream of the fraud check.
type Item struct {
	Label Text `json:"label"`
	Value Text `json:"value"`
}

// FromItems maps a loosely typed item list onto a Record. Labels are matched
// case-insensitively by substring, first matching rule wins per item and later
// items overwrite earlier ones. ItemCount is the number of items supplied.
func FromItems(items []Item) Record {
	rec := Record{ItemCount: len(items)}
	for _, item := range items {
		label := strings.ToLower(string(item.Label))
		value := string(item.Value)
		switch {
		case strings.Contains(label, "vendor"):
			rec.Vendor = value
		case strings.Contains(label, "total") && strings.Contains(label, "amount"):
			rec.TotalAmount = ParseAmount(value)
		case strings.Contains(label, "date"):
			rec.Date = value
		case strings.Contains(label, "tip"):
			rec.Tip = ParseAmount(value)
		case strings.Contains(label, "payment") || strings.Contains(label, "method"):
			rec.PaymentMethod = value
		}
	}
	return rec
}
