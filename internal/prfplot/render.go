package prfplot

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const (
	figureWidth  = 10 * vg.Inch
	figureHeight = 7 * vg.Inch
)

// errorPoints pairs sample positions with symmetric error bars.
type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

// NewPlot draws fig as a gonum plot.
func NewPlot(fig *Figure, errorScale float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fig.Title()
	p.X.Label.Text = fig.XLabel()
	p.Y.Label.Text = "normalized response"
	p.Legend.Top = true

	for _, s := range fig.Series {
		n := s.Data.Len()
		if n == 0 {
			continue
		}
		pts := errorPoints{XYs: make(plotter.XYs, n), YErrors: make(plotter.YErrors, n)}
		for i := 0; i < n; i++ {
			pts.XYs[i] = plotter.XY{X: s.Data.Coord[i], Y: s.Data.Value[i]}
			e := s.Data.Err[i] * errorScale
			pts.YErrors[i].Low, pts.YErrors[i].High = e, e
		}
		bars, err := plotter.NewYErrorBars(pts)
		if err != nil {
			return nil, fmt.Errorf("error bars for %s: %w", s.Label, err)
		}
		bars.Color = s.Color
		scatter, err := plotter.NewScatter(pts.XYs)
		if err != nil {
			return nil, fmt.Errorf("samples for %s: %w", s.Label, err)
		}
		scatter.Color = s.Color
		scatter.Shape = draw.CircleGlyph{}
		scatter.Radius = vg.Points(2)
		p.Add(bars, scatter)
		p.Legend.Add(s.Label, scatter)
	}

	for _, s := range fig.Series {
		pts := xys(s.CurveX, s.CurveY)
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("spline curve for %s: %w", s.Label, err)
		}
		line.Color = color.NRGBA{R: 0xff, A: 0xd9}
		line.Width = vg.Points(3)
		p.Add(line)
	}

	for _, s := range fig.Series {
		if len(s.BinX) == 0 {
			continue
		}
		markers, err := plotter.NewScatter(xys(s.BinX, s.BinY))
		if err != nil {
			return nil, fmt.Errorf("binned markers for %s: %w", s.Label, err)
		}
		markers.Color = color.Black
		markers.Shape = draw.RingGlyph{}
		markers.Radius = vg.Points(7)
		p.Add(markers)
	}

	if fig.Empty() {
		p.X.Min, p.X.Max = -1, 1
		p.Y.Min, p.Y.Max = -1, 1
	}
	if fig.YRange != nil {
		p.Y.Min, p.Y.Max = fig.YRange[0], fig.YRange[1]
	}

	// Node lines span the final vertical range, so they go in last.
	for _, s := range fig.Series {
		for _, node := range s.Nodes {
			line, err := plotter.NewLine(plotter.XYs{{X: node, Y: p.Y.Min}, {X: node, Y: p.Y.Max}})
			if err != nil {
				return nil, fmt.Errorf("grid node line for %s: %w", s.Label, err)
			}
			line.Color = s.Color
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
			p.Add(line)
		}
	}

	zero := plotter.NewFunction(func(float64) float64 { return 0 })
	zero.Color = color.RGBA{B: 0xb0, A: 0xff}
	p.Add(zero)
	return p, nil
}

// WritePlot renders fig to w in the given format (png, svg or pdf).
func WritePlot(w io.Writer, fig *Figure, errorScale float64, format string) error {
	p, err := NewPlot(fig, errorScale)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(figureWidth, figureHeight, format)
	if err != nil {
		return fmt.Errorf("failed to render %s plot: %w", format, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write %s plot: %w", format, err)
	}
	return nil
}

func xys(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(x))
	for i := range x {
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: x[i], Y: y[i]})
	}
	return pts
}
