package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"
)

// LoadCSV reads a headed CSV file of labelled receipts.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()
	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadCSV reads a headed CSV stream. Columns are matched by name, so order
// and extra columns do not matter.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("dataset: empty CSV")
		}
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}
	b, err := newRowBuilder(header)
	if err != nil {
		return nil, err
	}

	t := &Table{Columns: header}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: line %d: %w", line, err)
		}
		rec, err := b.build(row)
		if err != nil {
			return nil, fmt.Errorf("dataset: line %d: %w", line, err)
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// WriteCSV writes records with the canonical receipt columns.
func WriteCSV(w io.Writer, records []receipt.LabeledRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(receipt.Columns); err != nil {
		return err
	}
	for _, r := range records {
		label := "0"
		if r.IsFraud {
			label = "1"
		}
		if err := cw.Write([]string{
			r.Vendor,
			strconv.FormatFloat(r.TotalAmount, 'f', -1, 64),
			r.Date,
			strconv.Itoa(r.ItemCount),
			strconv.FormatFloat(r.Tip, 'f', -1, 64),
			r.PaymentMethod,
			label,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
