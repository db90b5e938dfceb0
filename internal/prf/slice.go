package prf

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SliceSpec selects samples close to a line of constant x or y offset.
type SliceSpec struct {
	Axis      byte // 'x': constant x offset, 'y': constant y offset
	Offset    float64
	Thickness float64
}

// Other returns the axis the slice runs along.
func (s SliceSpec) Other() byte {
	if s.Axis == 'x' {
		return 'y'
	}
	return 'x'
}

func (s SliceSpec) String() string {
	return fmt.Sprintf("%c = %g +- %g", s.Axis, s.Offset, s.Thickness)
}

// ParseSlice parses "x = 0 +- 0.2". White space around tokens is ignored.
func ParseSlice(text string) (SliceSpec, error) {
	axis, rest, ok := strings.Cut(text, "=")
	if !ok {
		return SliceSpec{}, fmt.Errorf("%w: slice %q must look like x = <offset> +- <thickness>", ErrConfiguration, text)
	}
	axis = strings.TrimSpace(axis)
	if axis != "x" && axis != "y" {
		return SliceSpec{}, fmt.Errorf("%w: slice axis must be x or y, got %q", ErrConfiguration, axis)
	}
	offText, thickText, ok := strings.Cut(rest, "+-")
	if !ok {
		return SliceSpec{}, fmt.Errorf("%w: slice %q is missing +- thickness", ErrConfiguration, text)
	}
	offset, err := strconv.ParseFloat(strings.TrimSpace(offText), 64)
	if err != nil {
		return SliceSpec{}, fmt.Errorf("%w: invalid slice offset in %q: %v", ErrConfiguration, text, err)
	}
	thickness, err := strconv.ParseFloat(strings.TrimSpace(thickText), 64)
	if err != nil {
		return SliceSpec{}, fmt.Errorf("%w: invalid slice thickness in %q: %v", ErrConfiguration, text, err)
	}
	if thickness <= 0 {
		return SliceSpec{}, fmt.Errorf("%w: slice thickness must be positive, got %g", ErrConfiguration, thickness)
	}
	return SliceSpec{Axis: axis[0], Offset: offset, Thickness: thickness}, nil
}

// SliceData is the part of a sample set that falls within a slice. Coord is
// the offset along the slice direction.
type SliceData struct {
	Coord []float64
	Value []float64
	Err   []float64
}

// Len returns the number of selected samples.
func (d SliceData) Len() int { return len(d.Coord) }

// SelectSlice keeps samples whose offset along spec.Axis is strictly
// within Thickness of spec.Offset.
func SelectSlice(samples []Sample, spec SliceSpec) SliceData {
	var d SliceData
	for _, s := range samples {
		across, along := s.XOff, s.YOff
		if spec.Axis == 'y' {
			across, along = s.YOff, s.XOff
		}
		if math.Abs(across-spec.Offset) < spec.Thickness {
			d.Coord = append(d.Coord, along)
			d.Value = append(d.Value, s.Value)
			d.Err = append(d.Err, s.Err)
		}
	}
	return d
}

// Binning configures a binned statistic overlay.
type Binning struct {
	Statistic string
	Bins      int
}

// Enabled reports whether binning was requested.
func (b Binning) Enabled() bool { return b.Statistic != "" && b.Bins > 0 }

var binStatistics = map[string]func(sorted []float64) float64{
	"mean":  func(v []float64) float64 { return stat.Mean(v, nil) },
	"count": func(v []float64) float64 { return float64(len(v)) },
	"sum":   floats.Sum,
	"min":   func(v []float64) float64 { return v[0] },
	"max":   func(v []float64) float64 { return v[len(v)-1] },
	"std": func(v []float64) float64 {
		_, std := stat.PopMeanStdDev(v, nil)
		return std
	},
	"median": func(v []float64) float64 {
		n := len(v)
		if n%2 == 1 {
			return v[n/2]
		}
		return (v[n/2-1] + v[n/2]) / 2
	},
}

// BinnedStatistic splits [min x, max x] into nbins equal-width bins (the
// last bin closed) and applies statistic to the values falling in each.
// Empty bins yield NaN, or 0 for "count".
func BinnedStatistic(x, values []float64, statistic string, nbins int) ([]float64, error) {
	fn, ok := binStatistics[statistic]
	if !ok {
		return nil, fmt.Errorf("%w: unknown binning statistic %q", ErrConfiguration, statistic)
	}
	if nbins < 1 {
		return nil, fmt.Errorf("%w: number of bins must be positive, got %d", ErrConfiguration, nbins)
	}
	if len(x) != len(values) {
		return nil, fmt.Errorf("%w: binning %d coordinates with %d values", ErrConfiguration, len(x), len(values))
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: nothing to bin", ErrEmptyInput)
	}

	lo, hi := floats.Min(x), floats.Max(x)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(nbins)

	groups := make([][]float64, nbins)
	for i, v := range x {
		b := int((v - lo) / width)
		if b >= nbins {
			b = nbins - 1
		}
		groups[b] = append(groups[b], values[i])
	}

	out := make([]float64, nbins)
	for i, g := range groups {
		if len(g) == 0 {
			if statistic == "count" {
				out[i] = 0
			} else {
				out[i] = math.NaN()
			}
			continue
		}
		sort.Float64s(g)
		out[i] = fn(g)
	}
	return out, nil
}
