package viz

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Frames are drawn robot-up: forward on the vertical axis, right on the
// horizontal axis, both in metres.
func screenXY(x, y float64) (float64, float64) { return y / 1000, x / 1000 }

// chartExtent returns a symmetric axis bound that contains every sample.
func chartExtent(s Snapshot) float64 {
	extent := 1.0
	for _, p := range s.Frame {
		sx, sy := screenXY(p.X, p.Y)
		extent = math.Max(extent, math.Max(math.Abs(sx), math.Abs(sy)))
	}
	return math.Ceil(extent * 1.05)
}

// RenderChart writes an ECharts scatter page of the snapshot.
func RenderChart(w io.Writer, s Snapshot) error {
	data := make([]opts.ScatterData, 0, len(s.Frame))
	for _, p := range s.Frame {
		sx, sy := screenXY(p.X, p.Y)
		data = append(data, opts.ScatterData{Value: []interface{}{sx, sy, p.Range}})
	}
	pad := chartExtent(s)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Scan", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s  linear=%.0f angular=%.2f", s.Mode, s.Command.Linear, s.Command.Angular),
			Subtitle: fmt.Sprintf("seq=%d points=%d front=%.0f left=%.0f right=%.0f", s.Seq, len(s.Frame), s.Sectors.Front, s.Sectors.Left, s.Sectors.Right),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "right (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "forward (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("scan", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	scatter.AddSeries("robot", []opts.ScatterData{{Value: []interface{}{0, 0, 0}}},
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))

	return scatter.Render(w)
}

// RenderPNG writes a static PNG of the snapshot of the given size in inches.
func RenderPNG(w io.Writer, s Snapshot, size float64) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s  seq=%d", s.Mode, s.Seq)
	p.X.Label.Text = "right (m)"
	p.Y.Label.Text = "forward (m)"
	pad := chartExtent(s)
	p.X.Min, p.X.Max = -pad, pad
	p.Y.Min, p.Y.Max = -pad, pad
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, 0, len(s.Frame))
	for _, sample := range s.Frame {
		sx, sy := screenXY(sample.X, sample.Y)
		pts = append(pts, plotter.XY{X: sx, Y: sy})
	}
	if len(pts) > 0 {
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("failed to build scan scatter: %w", err)
		}
		sc.GlyphStyle.Radius = vg.Points(1.5)
		sc.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		p.Add(sc)
	}

	robot, err := plotter.NewScatter(plotter.XYs{{X: 0, Y: 0}})
	if err != nil {
		return fmt.Errorf("failed to build robot marker: %w", err)
	}
	robot.GlyphStyle.Shape = draw.TriangleGlyph{}
	robot.GlyphStyle.Radius = vg.Points(5)
	robot.GlyphStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	p.Add(robot)

	wt, err := p.WriterTo(vg.Length(size)*vg.Inch, vg.Length(size)*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render PNG: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
