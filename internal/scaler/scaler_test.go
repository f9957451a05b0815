package scaler_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/scaler"
)

func TestFit_PopulationMoments(t *testing.T) {
	s, err := scaler.Fit([][]float64{{1, 5}, {3, 5}})
	require.NoError(t, err)

	assert.Equal(t, []float64{2, 5}, s.Mean)
	assert.InDelta(t, 1.0, s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1], "constant column keeps unit scale")
	require.NoError(t, s.Validate())

	out, err := s.TransformRow([]float64{3, 5})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0}, out, 1e-12)
}

func TestTransform_WidthMismatch(t *testing.T) {
	s, err := scaler.Fit([][]float64{{1, 2, 3}})
	require.NoError(t, err)
	_, err = s.TransformRow([]float64{1, 2})
	assert.Error(t, err)

	_, err = s.Transform([][]float64{{1, 2, 3}, {1}})
	assert.Error(t, err)
}

func TestFit_Errors(t *testing.T) {
	_, err := scaler.Fit(nil)
	assert.Error(t, err)
	_, err = scaler.Fit([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
}

func TestUnfitted(t *testing.T) {
	var s scaler.Standard
	assert.ErrorIs(t, s.Validate(), scaler.ErrNotFitted)
	_, err := s.TransformRow([]float64{1})
	assert.ErrorIs(t, err, scaler.ErrNotFitted)
}

func TestJSONRoundTripPreservesTransform(t *testing.T) {
	s, err := scaler.Fit([][]float64{{1, 10}, {2, 30}, {9, 20}})
	require.NoError(t, err)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	var back scaler.Standard
	require.NoError(t, json.Unmarshal(raw, &back))

	a, _ := s.TransformRow([]float64{4, 4})
	b, _ := back.TransformRow([]float64{4, 4})
	assert.Equal(t, a, b)
}
