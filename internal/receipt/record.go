// Package receipt defines the raw receipt record consumed by both the training
// and the inference pipelines, and the tolerant decoding every transport shares.
package receipt

import (
	"encoding/json"
)

// Record is the canonical input model for a submitted expense receipt.
// Fields hold already-coerced values; Date stays raw text because the feature
// extractor owns the "unparsable means now" policy.
type Record struct {
	Vendor        string  `json:"vendor"`
	TotalAmount   float64 `json:"total_amount"`
	Date          string  `json:"date"`
	ItemCount     int     `json:"item_count"`
	Tip           float64 `json:"tip"`
	PaymentMethod string  `json:"payment_method"`
}

// LabeledRecord is a historical record with its fraud label, used for training
// and batch evaluation.
type LabeledRecord struct {
	Record
	IsFraud bool `json:"is_fraud"`
}

// UnmarshalJSON accepts loosely typed receipts: numeric fields may arrive as
// JSON numbers or as text carrying currency symbols, text fields may arrive as
// any scalar. Missing fields keep their zero value.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = fromFields(fields)
	return nil
}

func fromFields(fields map[string]json.RawMessage) Record {
	return Record{
		Vendor:        looseString(fields["vendor"]),
		TotalAmount:   looseFloat(fields["total_amount"]),
		Date:          looseString(fields["date"]),
		ItemCount:     looseInt(fields["item_count"]),
		Tip:           looseFloat(fields["tip"]),
		PaymentMethod: looseString(fields["payment_method"]),
	}
}

// Columns lists the raw columns of a labeled receipt table in their canonical order.
var Columns = []string{"vendor", "total_amount", "date", "item_count", "tip", "payment_method", "is_fraud"}
