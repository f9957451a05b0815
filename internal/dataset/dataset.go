// Package dataset loads labelled receipt tables from CSV files and SQLite
// databases into memory.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"
)

// LabelColumn names the fraud label column.
const LabelColumn = "is_fraud"

// DefaultTable is the SQLite table read when none is named.
const DefaultTable = "receipts"

// ErrMissingLabel is returned when a table has no is_fraud column.
var ErrMissingLabel = errors.New("dataset: missing is_fraud label column")

// Table is an in-memory labelled receipt table.
type Table struct {
	// Columns are the source column names in source order.
	Columns []string
	Records []receipt.LabeledRecord
}

// Unlabelled returns the raw records without labels.
func (t *Table) Unlabelled() []receipt.Record {
	out := make([]receipt.Record, len(t.Records))
	for i, r := range t.Records {
		out[i] = r.Record
	}
	return out
}

// FraudCount returns the number of fraud-labelled rows.
func (t *Table) FraudCount() int {
	n := 0
	for _, r := range t.Records {
		if r.IsFraud {
			n++
		}
	}
	return n
}

// Load reads path, choosing the reader by extension: .csv files are CSV,
// .db, .sqlite and .sqlite3 files are SQLite databases read from table.
func Load(ctx context.Context, path, table string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".db", ".sqlite", ".sqlite3":
		return LoadSQLite(ctx, path, table)
	default:
		return nil, fmt.Errorf("dataset: unsupported file type %q", filepath.Ext(path))
	}
}

// rowBuilder maps source columns to record fields by name.
type rowBuilder struct {
	index map[string]int
}

func newRowBuilder(columns []string) (*rowBuilder, error) {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[strings.ToLower(strings.TrimSpace(c))] = i
	}
	if _, ok := idx[LabelColumn]; !ok {
		return nil, ErrMissingLabel
	}
	return &rowBuilder{index: idx}, nil
}

func (b *rowBuilder) get(row []string, col string) string {
	i, ok := b.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (b *rowBuilder) build(row []string) (receipt.LabeledRecord, error) {
	label, err := receipt.ParseLabel(b.get(row, LabelColumn))
	if err != nil {
		return receipt.LabeledRecord{}, err
	}
	return receipt.LabeledRecord{
		Record: receipt.Record{
			Vendor:        b.get(row, "vendor"),
			TotalAmount:   receipt.ParseFloat(b.get(row, "total_amount")),
			Date:          b.get(row, "date"),
			ItemCount:     receipt.ParseInt(b.get(row, "item_count")),
			Tip:           receipt.ParseFloat(b.get(row, "tip")),
			PaymentMethod: b.get(row, "payment_method"),
		},
		IsFraud: label,
	}, nil
}
