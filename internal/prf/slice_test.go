package prf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSlice(t *testing.T) {
	tests := []struct {
		text string
		want SliceSpec
	}{
		{"x = 0 +- 0.2", SliceSpec{Axis: 'x', Offset: 0, Thickness: 0.2}},
		{"y=-1.5+-0.25", SliceSpec{Axis: 'y', Offset: -1.5, Thickness: 0.25}},
		{"  x =  2e-1 +-  1 ", SliceSpec{Axis: 'x', Offset: 0.2, Thickness: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParseSlice(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "x 0 +- 1", "z = 0 +- 1", "x = 0", "x = a +- 1", "x = 0 +- b", "x = 0 +- 0", "x = 0 +- -1"} {
		_, err := ParseSlice(bad)
		assert.ErrorIs(t, err, ErrConfiguration, bad)
	}
}

func TestSliceSpec(t *testing.T) {
	x := SliceSpec{Axis: 'x', Offset: 0.5, Thickness: 0.2}
	assert.Equal(t, byte('y'), x.Other())
	assert.Equal(t, byte('x'), SliceSpec{Axis: 'y'}.Other())
	assert.Equal(t, "x = 0.5 +- 0.2", x.String())
}

func TestSelectSlice(t *testing.T) {
	samples := []Sample{
		{XOff: 0.1, YOff: -1, Value: 1, Err: 0.1},
		{XOff: 0.2, YOff: 2, Value: 2, Err: 0.2}, // on the boundary: excluded
		{XOff: -0.15, YOff: 3, Value: 3, Err: 0.3},
		{XOff: 1, YOff: 0.05, Value: 4, Err: 0.4},
	}

	d := SelectSlice(samples, SliceSpec{Axis: 'x', Offset: 0, Thickness: 0.2})
	assert.Equal(t, SliceData{Coord: []float64{-1, 3}, Value: []float64{1, 3}, Err: []float64{0.1, 0.3}}, d)

	d = SelectSlice(samples, SliceSpec{Axis: 'y', Offset: 0, Thickness: 0.1})
	assert.Equal(t, SliceData{Coord: []float64{1}, Value: []float64{4}, Err: []float64{0.4}}, d)

	assert.Zero(t, SelectSlice(samples, SliceSpec{Axis: 'y', Offset: 10, Thickness: 0.1}).Len())
}

func TestBinnedStatistic(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	v := []float64{1, 2, 3, 4, 5}
	tests := map[string][]float64{
		"mean":   {1.5, 4},
		"median": {1.5, 4},
		"count":  {2, 3},
		"sum":    {3, 12},
		"min":    {1, 3},
		"max":    {2, 5},
		"std":    {0.5, math.Sqrt(2.0 / 3.0)},
	}
	for statistic, want := range tests {
		t.Run(statistic, func(t *testing.T) {
			got, err := BinnedStatistic(x, v, statistic, 2)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, got, 1e-12)
		})
	}
}

func TestBinnedStatistic_EmptyBins(t *testing.T) {
	x := []float64{0, 0, 4}
	v := []float64{1, 3, 5}

	mean, err := BinnedStatistic(x, v, "mean", 4)
	require.NoError(t, err)
	require.Len(t, mean, 4)
	assert.Equal(t, 2.0, mean[0])
	assert.True(t, math.IsNaN(mean[1]))
	assert.True(t, math.IsNaN(mean[2]))
	assert.Equal(t, 5.0, mean[3])

	count, err := BinnedStatistic(x, v, "count", 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0, 0, 1}, count)

	// A single distinct coordinate still gets a bin of unit width.
	single, err := BinnedStatistic([]float64{1, 1}, []float64{2, 4}, "max", 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, single)
}

func TestBinnedStatistic_Errors(t *testing.T) {
	_, err := BinnedStatistic([]float64{1}, []float64{1}, "mode", 2)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = BinnedStatistic([]float64{1}, []float64{1}, "mean", 0)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = BinnedStatistic([]float64{1, 2}, []float64{1}, "mean", 1)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = BinnedStatistic(nil, nil, "mean", 1)
	assert.ErrorIs(t, err, ErrEmptyInput)
}
