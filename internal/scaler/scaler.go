// Package scaler standardises feature columns to zero mean and unit variance.
package scaler

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ErrNotFitted is returned by Transform on a scaler with no moments.
var ErrNotFitted = errors.New("scaler: not fitted")

// Standard holds per-column mean and scale. A column with zero spread gets a
// scale of 1 so its transformed values are mean-centred rather than infinite.
type Standard struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit computes population mean and standard deviation per column of x.
func Fit(x [][]float64) (*Standard, error) {
	if len(x) == 0 {
		return nil, errors.New("scaler: no rows to fit")
	}
	width := len(x[0])
	s := &Standard{Mean: make([]float64, width), Scale: make([]float64, width)}
	col := make([]float64, len(x))
	for c := 0; c < width; c++ {
		for r, row := range x {
			if len(row) != width {
				return nil, fmt.Errorf("scaler: row %d has %d columns, want %d", r, len(row), width)
			}
			col[r] = row[c]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[c] = mean
		if std == 0 {
			std = 1
		}
		s.Scale[c] = std
	}
	return s, nil
}

// Width is the number of columns the scaler was fitted on.
func (s *Standard) Width() int { return len(s.Mean) }

// Validate checks the stored moments are usable.
func (s *Standard) Validate() error {
	if len(s.Mean) == 0 {
		return ErrNotFitted
	}
	if len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("scaler: %d means but %d scales", len(s.Mean), len(s.Scale))
	}
	for i, v := range s.Scale {
		if v == 0 {
			return fmt.Errorf("scaler: zero scale at column %d", i)
		}
	}
	return nil
}

// TransformRow standardises one vector into a new slice.
func (s *Standard) TransformRow(v []float64) ([]float64, error) {
	if len(s.Mean) == 0 {
		return nil, ErrNotFitted
	}
	if len(v) != len(s.Mean) {
		return nil, fmt.Errorf("scaler: vector has %d columns, want %d", len(v), len(s.Mean))
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

// Transform standardises every row of x.
func (s *Standard) Transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		t, err := s.TransformRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}
