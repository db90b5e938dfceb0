package prf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// PaddedSampleSet holds real samples followed by synthetic zero-valued
// boundary samples. The set owns its buffer; the slices returned by its
// accessors alias it and must not be modified.
type PaddedSampleSet struct {
	samples    []Sample
	numReal    int
	errorFloor float64
}

// All returns every sample, real ones first.
func (p *PaddedSampleSet) All() []Sample { return p.samples }

// Real returns the real samples kept inside the extraction rectangle.
func (p *PaddedSampleSet) Real() []Sample { return p.samples[:p.numReal] }

// Synthetic returns the boundary samples.
func (p *PaddedSampleSet) Synthetic() []Sample { return p.samples[p.numReal:] }

// Len returns the total number of samples.
func (p *PaddedSampleSet) Len() int { return len(p.samples) }

// NumReal returns the number of real samples.
func (p *PaddedSampleSet) NumReal() int { return p.numReal }

// ErrorFloor returns the error assigned to synthetic samples: the smallest
// real error divided by the number of real samples.
func (p *PaddedSampleSet) ErrorFloor() float64 { return p.errorFloor }

// MiddlePoints returns the number of interior nodes along each edge strip
// for the given padding configuration.
func MiddlePoints(padFraction float64, padNPoints int) int {
	return int(float64(padNPoints) / padFraction)
}

// SyntheticCount returns the number of boundary samples Pad generates.
func SyntheticCount(padFraction float64, padNPoints int) int {
	n := padNPoints
	return 4*n*n + 4*n*MiddlePoints(padFraction, padNPoints)
}

// linspace follows numpy: n evenly spaced values from lo to hi inclusive.
func linspace(n int, lo, hi float64) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// Pad keeps the samples strictly inside the extraction rectangle and
// surrounds that rectangle with synthetic zero-valued samples, so that a
// spline fitted to the result falls to zero past the edges.
//
// The returned Domain is the rectangle grown by padFraction of its width
// and height on each side. The padding consists of four padNPoints x
// padNPoints corner blocks and, along each edge, a strip of padNPoints
// rows by MiddlePoints columns of interior nodes; blocks touch without
// overlapping.
func Pad(samples []Sample, r PRFRange, padFraction float64, padNPoints int) (*PaddedSampleSet, Domain, error) {
	if err := r.Validate(); err != nil {
		return nil, Domain{}, err
	}
	if math.IsNaN(padFraction) || math.IsInf(padFraction, 0) || padFraction <= 0 {
		return nil, Domain{}, fmt.Errorf("%w: pad fraction must be positive, got %g", ErrConfiguration, padFraction)
	}
	if padNPoints < 0 {
		return nil, Domain{}, fmt.Errorf("%w: pad points must be non-negative, got %d", ErrConfiguration, padNPoints)
	}

	inner := r.Bounds()
	xPad := r.Width * padFraction
	yPad := r.Height * padFraction
	domain := Domain{
		XMin: inner.XMin - xPad,
		XMax: inner.XMax + xPad,
		YMin: inner.YMin - yPad,
		YMax: inner.YMax + yPad,
	}

	numReal := 0
	for i := range samples {
		if inner.ContainsStrict(samples[i].XOff, samples[i].YOff) {
			numReal++
		}
	}
	if numReal == 0 {
		return nil, domain, fmt.Errorf("%w: no samples inside %v to pad", ErrEmptyInput, inner)
	}

	buf := make([]Sample, 0, numReal+SyntheticCount(padFraction, padNPoints))
	minErr := math.Inf(1)
	for i := range samples {
		s := samples[i]
		if !inner.ContainsStrict(s.XOff, s.YOff) {
			continue
		}
		buf = append(buf, s)
		minErr = math.Min(minErr, s.Err)
	}
	floor := minErr / float64(numReal)

	middle := MiddlePoints(padFraction, padNPoints)
	cornerX := linspace(padNPoints, 0, xPad)
	cornerY := linspace(padNPoints, 0, yPad)
	midX := linspace(middle+2, inner.XMin, inner.XMax)
	midY := linspace(middle+2, inner.YMin, inner.YMax)
	midX, midY = midX[1:len(midX)-1], midY[1:len(midY)-1]

	emit := func(xs, ys []float64, dx, dy float64) {
		for _, y := range ys {
			for _, x := range xs {
				buf = append(buf, Sample{XOff: x + dx, YOff: y + dy, Value: 0, Err: floor})
			}
		}
	}

	withXStrips := true
	for _, xo := range []float64{domain.XMin, inner.XMax} {
		emit(cornerX, midY, xo, 0)
		for _, yo := range []float64{domain.YMin, inner.YMax} {
			if withXStrips {
				emit(midX, cornerY, 0, yo)
			}
			emit(cornerX, cornerY, xo, yo)
		}
		withXStrips = false
	}

	Diagf("padded %d real samples with %d synthetic (floor %g) over %v",
		numReal, len(buf)-numReal, floor, domain)
	return &PaddedSampleSet{samples: buf, numReal: numReal, errorFloor: floor}, domain, nil
}
