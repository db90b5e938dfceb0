package prfplot

import (
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// NewChart draws fig as an interactive go-echarts chart. Error bars are
// not drawn; the sample error is shown in the tooltip instead.
func NewChart(fig *Figure, errorScale float64) *charts.Scatter {
	yAxis := opts.YAxis{Name: "normalized response", Type: "value"}
	if fig.YRange != nil {
		yAxis.Min, yAxis.Max = fig.YRange[0], fig.YRange[1]
	}
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: fig.Title(), Width: "1000px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: fig.Title(), Subtitle: fmt.Sprintf("error bars x%g", errorScale)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: fig.XLabel(), Type: "value", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(yAxis),
	)

	first := true
	for _, s := range fig.Series {
		if s.Data.Len() == 0 {
			continue
		}
		data := make([]opts.ScatterData, s.Data.Len())
		for i := range data {
			data[i] = opts.ScatterData{
				Value: []interface{}{s.Data.Coord[i], s.Data.Value[i], s.Data.Err[i] * errorScale},
			}
		}
		seriesOpts := []charts.SeriesOpts{
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(s.Color)}),
		}
		for _, node := range s.Nodes {
			seriesOpts = append(seriesOpts, charts.WithMarkLineNameXAxisItemOpts(
				opts.MarkLineNameXAxisItem{Name: "node", XAxis: node}))
		}
		if first {
			seriesOpts = append(seriesOpts, charts.WithMarkLineNameYAxisItemOpts(
				opts.MarkLineNameYAxisItem{Name: "zero", YAxis: 0}))
			first = false
		}
		scatter.AddSeries(s.Label, data, seriesOpts...)

		if len(s.BinX) > 0 {
			bins := make([]opts.ScatterData, len(s.BinX))
			for i := range bins {
				bins[i] = opts.ScatterData{Value: []interface{}{s.BinX[i], s.BinY[i]}}
			}
			scatter.AddSeries(s.Label+" binned", bins,
				charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 15}),
				charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(s.Color), BorderColor: "#000000"}),
			)
		}
	}

	curves := charts.NewLine()
	hasCurves := false
	for _, s := range fig.Series {
		pts := xys(s.CurveX, s.CurveY)
		if len(pts) == 0 {
			continue
		}
		data := make([]opts.LineData, len(pts))
		for i, p := range pts {
			data[i] = opts.LineData{Value: []interface{}{p.X, p.Y}}
		}
		curves.AddSeries(s.Label+" spline", data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: "#ff0000", Width: 3, Opacity: opts.Float(0.85)}),
		)
		hasCurves = true
	}
	if hasCurves {
		scatter.Overlap(curves)
	}
	return scatter
}

// WriteHTML renders fig as a standalone HTML page.
func WriteHTML(w io.Writer, fig *Figure, errorScale float64) error {
	if err := NewChart(fig, errorScale).Render(w); err != nil {
		return fmt.Errorf("failed to render html plot: %w", err)
	}
	return nil
}
