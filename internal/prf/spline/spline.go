// Package spline fits smooth 2D interpolants to padded PRF samples.
//
// Two backends share the Spline contract: a weighted smoothing spline
// whose roughness is tuned to a residual target, and a fixed-resolution
// bicubic grid spline with an explicit nonlinearity penalty. Small
// smoothing fits are thin-plate splines; larger ones reuse the bicubic
// grid with 1/Err^2 weights so the cost grows linearly with the samples.
package spline

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/prf-explorer/internal/prf"
	"gonum.org/v1/gonum/floats"
)

// Spline is a fitted interpolant over a Domain. Evaluation outside the
// domain is backend dependent.
type Spline interface {
	Eval(x, y float64) float64
	Domain() prf.Domain
}

// NodeSpline is a Spline built on a fixed grid of nodes.
type NodeSpline interface {
	Spline
	Nodes() (xs, ys []float64)
}

// Method selects and configures a spline backend.
type Method interface {
	Name() string
	validate() error
	fit(samples []prf.Sample, domain prf.Domain) (Spline, error)
}

// ValidateMethod checks a method's parameters without fitting.
func ValidateMethod(m Method) error {
	if m == nil {
		return fmt.Errorf("%w: no spline method", prf.ErrConfiguration)
	}
	return m.validate()
}

// SmoothingMethod fits a weighted smoothing spline. The weighted residual
// target is Factor times the number of samples; zero interpolates every
// sample. Sets of up to MaxThinPlateSamples get a SmoothingSpline, larger
// ones a weighted GridSpline with NX by NY nodes (DefaultSmoothingNodes
// when unset).
type SmoothingMethod struct {
	Factor float64
	NX, NY int
}

// Name implements Method.
func (SmoothingMethod) Name() string { return "smoothing" }

// GridMethod fits a GridSpline with NX by NY nodes and the given
// nonlinearity penalty.
type GridMethod struct {
	NX, NY  int
	Penalty float64
}

// Name implements Method.
func (GridMethod) Name() string { return "grid" }

// ParseMethod builds a Method from its configured name. The smoothing
// value is the residual factor for "smoothing" and the penalty for "grid".
// Resolution is the node grid of "grid" and of large "smoothing" fits.
func ParseMethod(name string, resolution [2]int, smoothing float64) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "smoothing", "scipy":
		return SmoothingMethod{Factor: smoothing, NX: resolution[0], NY: resolution[1]}, nil
	case "grid", "alglib":
		return GridMethod{NX: resolution[0], NY: resolution[1], Penalty: smoothing}, nil
	default:
		return nil, fmt.Errorf("%w: unknown spline method %q (want smoothing or grid)", prf.ErrConfiguration, name)
	}
}

// Fit fits the method's spline to every sample of set over domain.
func Fit(set *prf.PaddedSampleSet, domain prf.Domain, m Method) (Spline, error) {
	if set == nil || set.Len() == 0 {
		return nil, fmt.Errorf("%w: no samples to fit", prf.ErrEmptyInput)
	}
	return FitSamples(set.All(), domain, m)
}

// FitSamples fits the method's spline to samples over domain.
func FitSamples(samples []prf.Sample, domain prf.Domain, m Method) (Spline, error) {
	if err := ValidateMethod(m); err != nil {
		return nil, err
	}
	if !(domain.XMax > domain.XMin) || !(domain.YMax > domain.YMin) {
		return nil, fmt.Errorf("%w: empty spline domain %v", prf.ErrConfiguration, domain)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples to fit", prf.ErrEmptyInput)
	}

	tolX := 1e-9 * (domain.XMax - domain.XMin)
	tolY := 1e-9 * (domain.YMax - domain.YMin)
	grown := prf.Domain{XMin: domain.XMin - tolX, XMax: domain.XMax + tolX, YMin: domain.YMin - tolY, YMax: domain.YMax + tolY}
	for i, s := range samples {
		if !grown.Contains(s.XOff, s.YOff) {
			return nil, fmt.Errorf("%w: sample %d at (%g, %g) outside spline domain %v",
				prf.ErrConfiguration, i, s.XOff, s.YOff, domain)
		}
	}

	s, err := m.fit(samples, domain)
	if err != nil {
		return nil, fmt.Errorf("%s spline: %w", m.Name(), err)
	}
	prf.Diagf("fitted %s spline to %d samples over %v", m.Name(), len(samples), domain)
	return s, nil
}

// Evaluate evaluates s at paired coordinates. A length-1 slice is
// broadcast against the other; otherwise lengths must match.
func Evaluate(s Spline, xs, ys []float64) ([]float64, error) {
	n := len(xs)
	switch {
	case len(xs) == len(ys):
	case len(xs) == 1:
		n = len(ys)
	case len(ys) == 1:
	default:
		return nil, fmt.Errorf("%w: cannot broadcast %d x values against %d y values",
			prf.ErrConfiguration, len(xs), len(ys))
	}

	out := make([]float64, n)
	for i := range out {
		x, y := xs[0], ys[0]
		if len(xs) > 1 {
			x = xs[i]
		}
		if len(ys) > 1 {
			y = ys[i]
		}
		out[i] = s.Eval(x, y)
	}
	return out, nil
}

// SliceCurve samples s at n points from lo to hi along the slice line.
func SliceCurve(s Spline, spec prf.SliceSpec, lo, hi float64, n int) (coord, values []float64) {
	if n < 2 || math.IsNaN(lo) || math.IsNaN(hi) {
		return nil, nil
	}
	coord = floats.Span(make([]float64, n), lo, hi)
	values = make([]float64, n)
	for i, c := range coord {
		if spec.Axis == 'x' {
			values[i] = s.Eval(spec.Offset, c)
		} else {
			values[i] = s.Eval(c, spec.Offset)
		}
	}
	return coord, values
}
