// Package prfplot draws PRF slices: the samples near a line of constant
// x or y offset, the fitted spline along that line and optional binned
// statistics, one overlay per image region.
package prfplot

import (
	"image/color"
	"math"

	"github.com/banshee-data/prf-explorer/internal/explorer"
	"github.com/banshee-data/prf-explorer/internal/prf"
	"github.com/banshee-data/prf-explorer/internal/prf/spline"
	"gonum.org/v1/gonum/floats"
)

// CurvePoints is the number of points the spline curve is sampled at.
const CurvePoints = 300

// Options controls what a slice figure shows.
type Options struct {
	// ErrorScale multiplies the sample errors drawn as error bars.
	ErrorScale float64
	// Binning adds binned statistic markers when enabled.
	Binning prf.Binning
	// YRange fixes the vertical range when set.
	YRange *[2]float64
	// GridNodes draws the node positions of grid splines along the
	// plotted coordinate.
	GridNodes bool
}

// Series is one region's contribution to a figure.
type Series struct {
	Label   string
	Samples []prf.Sample
	Spline  spline.Spline // may be nil
}

// SeriesFromResult collects one Series per region of an explorer run.
// Regions without samples are left out.
func SeriesFromResult(res *explorer.Result) []Series {
	var out []Series
	for _, r := range res.Regions {
		if len(r.Samples) == 0 {
			continue
		}
		out = append(out, Series{Label: r.Label, Samples: r.Samples, Spline: r.Spline})
	}
	return out
}

// SliceSeries is the plotted data of one Series for one slice.
type SliceSeries struct {
	Label string
	Color color.RGBA
	Data  prf.SliceData
	// Spline curve along the slice; empty without a spline or data.
	CurveX, CurveY []float64
	// Binned statistic markers; empty unless binning is enabled.
	BinX, BinY []float64
	// Node positions along the plotted coordinate.
	Nodes []float64
}

// Figure is the plotted content of one slice spec.
type Figure struct {
	Spec   prf.SliceSpec
	Series []SliceSeries
	YRange *[2]float64
}

// Empty reports whether no series has any data.
func (f *Figure) Empty() bool {
	for _, s := range f.Series {
		if s.Data.Len() > 0 {
			return false
		}
	}
	return true
}

// XLabel names the plotted coordinate.
func (f *Figure) XLabel() string {
	return string(f.Spec.Other()) + " offset (pixels)"
}

// Title describes the slice.
func (f *Figure) Title() string {
	return "PRF slice " + f.Spec.String()
}

// kelly is Kelly's palette of maximally contrasting colours, without white.
var kelly = []color.RGBA{
	{0x22, 0x22, 0x22, 0xff},
	{0xf3, 0xc3, 0x00, 0xff},
	{0x87, 0x56, 0x92, 0xff},
	{0xf3, 0x84, 0x00, 0xff},
	{0xa1, 0xca, 0xf1, 0xff},
	{0xbe, 0x00, 0x32, 0xff},
	{0xc2, 0xb2, 0x80, 0xff},
	{0x84, 0x84, 0x82, 0xff},
	{0x00, 0x88, 0x56, 0xff},
	{0xe6, 0x8f, 0xac, 0xff},
	{0x00, 0x67, 0xa5, 0xff},
	{0xf9, 0x93, 0x79, 0xff},
	{0x60, 0x4e, 0x97, 0xff},
	{0xf6, 0xa6, 0x00, 0xff},
	{0xb3, 0x44, 0x6c, 0xff},
	{0xdc, 0xd3, 0x00, 0xff},
	{0x88, 0x2d, 0x17, 0xff},
	{0x8d, 0xb6, 0x00, 0xff},
	{0x65, 0x45, 0x22, 0xff},
	{0xe2, 0x58, 0x22, 0xff},
	{0x2b, 0x3d, 0x26, 0xff},
}

// SeriesColor returns the colour used for the i-th series.
func SeriesColor(i int) color.RGBA {
	return kelly[i%len(kelly)]
}

// BuildFigure selects each series' samples for spec and evaluates the
// curves and markers to draw.
func BuildFigure(spec prf.SliceSpec, series []Series, opts Options) (*Figure, error) {
	fig := &Figure{Spec: spec, YRange: opts.YRange}
	for i, s := range series {
		ss := SliceSeries{
			Label: s.Label,
			Color: SeriesColor(i),
			Data:  prf.SelectSlice(s.Samples, spec),
		}
		if ss.Data.Len() > 0 {
			if s.Spline != nil {
				lo, hi := floats.Min(ss.Data.Coord), floats.Max(ss.Data.Coord)
				if hi > lo {
					ss.CurveX, ss.CurveY = spline.SliceCurve(s.Spline, spec, lo, hi, CurvePoints)
				}
			}
			if opts.Binning.Enabled() {
				var err error
				ss.BinX, ss.BinY, err = binned(ss.Data, opts.Binning)
				if err != nil {
					return nil, err
				}
			}
		}
		if opts.GridNodes {
			if ns, ok := s.Spline.(spline.NodeSpline); ok {
				xs, ys := ns.Nodes()
				if spec.Other() == 'x' {
					ss.Nodes = xs
				} else {
					ss.Nodes = ys
				}
			}
		}
		fig.Series = append(fig.Series, ss)
	}
	return fig, nil
}

// binned places one marker per non-empty bin. Location statistics are
// applied to the coordinates too; for the others the marker sits at the
// mean coordinate of the bin.
func binned(d prf.SliceData, b prf.Binning) (xs, ys []float64, err error) {
	xStat := b.Statistic
	switch xStat {
	case "count", "sum", "std":
		xStat = "mean"
	}
	bx, err := prf.BinnedStatistic(d.Coord, d.Coord, xStat, b.Bins)
	if err != nil {
		return nil, nil, err
	}
	by, err := prf.BinnedStatistic(d.Coord, d.Value, b.Statistic, b.Bins)
	if err != nil {
		return nil, nil, err
	}
	for i := range bx {
		if math.IsNaN(bx[i]) || math.IsNaN(by[i]) {
			continue
		}
		xs = append(xs, bx[i])
		ys = append(ys, by[i])
	}
	return xs, ys, nil
}
