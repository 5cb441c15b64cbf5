// Package report renders calibration diagnostics: a PNG scatter of
// reprojection residuals and an HTML bar chart of per-view RMS error.
package report

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/markercal/internal/calib"
	"github.com/banshee-data/markercal/internal/fsutil"
	"github.com/banshee-data/markercal/internal/security"
	"github.com/banshee-data/markercal/internal/vision"
)

// echartsAssetsHost serves the echarts script for the HTML chart.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Paths are the files a Writer produced.
type Paths struct {
	Residuals string
	Views     string
}

// Writer stores reports under one directory.
type Writer struct {
	dir string
	fs  fsutil.FileSystem
}

// NewWriter returns a writer rooted at dir. A nil fs means the OS filesystem.
func NewWriter(dir string, fsys fsutil.FileSystem) *Writer {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Writer{dir: dir, fs: fsys}
}

// Write renders both reports for result as <stem>_residuals.png and
// <stem>_views.html. The stem is sanitised before use.
func (w *Writer) Write(result calib.Result, stem string) (Paths, error) {
	stem = security.SanitizeFilename(stem)

	var paths Paths
	png, err := ResidualPNG(result)
	if err != nil {
		return paths, err
	}
	if paths.Residuals, err = w.write(stem+"_residuals.png", png); err != nil {
		return paths, err
	}

	html, err := ViewErrorHTML(result)
	if err != nil {
		return paths, err
	}
	if paths.Views, err = w.write(stem+"_views.html", html); err != nil {
		return paths, err
	}
	return paths, nil
}

func (w *Writer) write(name string, data []byte) (string, error) {
	path, err := security.JoinWithin(w.dir, name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", vision.ErrConfiguration, err)
	}
	if err := fsutil.WriteFileAtomic(w.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", vision.ErrIO, err)
	}
	return path, nil
}

// ResidualPlot scatters observed-minus-reprojected offsets in pixels, one
// series per view.
func ResidualPlot(result calib.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Reprojection residuals (RMS %.3f px)", result.RepError)
	p.X.Label.Text = "dx (px)"
	p.Y.Label.Text = "dy (px)"
	p.Add(plotter.NewGrid())

	colors := palette(len(result.Residuals))
	for i, residuals := range result.Residuals {
		if len(residuals) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(residuals))
		for j, r := range residuals {
			pts[j] = plotter.XY{X: r.X, Y: r.Y}
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("%w: view %d residuals: %v", vision.ErrComputation, i+1, err)
		}
		scatter.GlyphStyle.Color = colors[i]
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(scatter)
		p.Legend.Add(fmt.Sprintf("view %d", i+1), scatter)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// ResidualPNG renders ResidualPlot as a 6x6 inch PNG.
func ResidualPNG(result calib.Result) ([]byte, error) {
	p, err := ResidualPlot(result)
	if err != nil {
		return nil, err
	}
	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("%w: render residual plot: %v", vision.ErrIO, err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: encode residual plot: %v", vision.ErrIO, err)
	}
	return buf.Bytes(), nil
}

// ViewErrorChart is a bar per view of its RMS error. Views that failed to
// reproject are shown as empty bars.
func ViewErrorChart(result calib.Result) *charts.Bar {
	x := make([]string, len(result.PerViewErrors))
	y := make([]opts.BarData, len(result.PerViewErrors))
	for i, e := range result.PerViewErrors {
		x[i] = fmt.Sprintf("view %d", i+1)
		if math.IsNaN(e) || math.IsInf(e, 0) {
			y[i] = opts.BarData{Value: "-"}
			continue
		}
		y[i] = opts.BarData{Value: e}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Calibration views", Width: "100%", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Per-view reprojection error",
			Subtitle: fmt.Sprintf("views=%d rms=%.4f px at %s", result.ViewCount, result.RepError, result.CalibratedAt.Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "RMS (px)"}),
	)
	bar.SetXAxis(x).
		AddSeries("rms", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// ViewErrorHTML renders ViewErrorChart as a standalone page.
func ViewErrorHTML(result calib.Result) ([]byte, error) {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(ViewErrorChart(result))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("%w: render view chart: %v", vision.ErrIO, err)
	}
	return buf.Bytes(), nil
}

// palette spreads n hues around the colour wheel.
func palette(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := range colors {
		h := float64(i) / math.Max(float64(n), 1)
		colors[i] = hsv(h, 0.75, 0.85)
	}
	return colors
}

func hsv(h, s, v float64) color.RGBA {
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)
	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 255}
}
