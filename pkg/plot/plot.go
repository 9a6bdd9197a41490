// Package plot draws the figures of a night summary as SVG files.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/fact-project/nightsummary/pkg/qla"
	"github.com/fact-project/nightsummary/pkg/store"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("nothing to plot")

const (
	width  = 8 * vg.Inch
	height = 4 * vg.Inch

	tickFormat = "15:04"
)

var noSourceColor = color.Gray{Y: 200}

// Palette assigns each source a fixed color in order of first appearance.
type Palette struct {
	colors map[string]color.Color
	order  []string
}

// NewPalette returns an empty palette.
func NewPalette() *Palette {
	return &Palette{colors: make(map[string]color.Color, 8)}
}

// Color returns the color of source. Runs without a source are gray.
func (p *Palette) Color(source string) color.Color {
	if source == "" {
		return noSourceColor
	}

	if c, ok := p.colors[source]; ok {
		return c
	}

	c := plotutil.Color(len(p.order))
	p.colors[source] = c
	p.order = append(p.order, source)

	return c
}

// Sources returns the sources seen so far in order of first appearance.
func (p *Palette) Sources() []string {
	return p.order
}

func newTimePlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time [UTC]"
	p.Y.Label.Text = ylabel
	p.X.Tick.Marker = plot.TimeTicks{Format: tickFormat, Time: plot.UTCUnixTime}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	return p
}

func unix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// RunTimeline draws one box per run from start to stop, colored by source.
func RunTimeline(path string, night int64, runs []store.RunInfo) error {
	if len(runs) == 0 {
		return ErrNoData
	}

	p := newTimePlot(fmt.Sprintf("Runs of night %d", night), "")
	p.Y.Min, p.Y.Max = 0, 1
	p.HideY()

	palette := NewPalette()
	legend := make(map[string]*plotter.Polygon, 8)

	for i := range runs {
		r := &runs[i]
		x0, x1 := unix(r.Start), unix(r.Stop)

		box, err := plotter.NewPolygon(plotter.XYs{
			{X: x0, Y: 0.1}, {X: x1, Y: 0.1}, {X: x1, Y: 0.9}, {X: x0, Y: 0.9},
		})
		if err != nil {
			return fmt.Errorf("run %d: %w", r.RunID, err)
		}

		source := r.SourceName()
		box.Color = palette.Color(source)
		box.LineStyle.Width = 0

		p.Add(box)

		if _, ok := legend[source]; !ok && source != "" {
			legend[source] = box
		}
	}

	for _, source := range palette.Sources() {
		p.Legend.Add(source, legend[source])
	}

	return save(p, path)
}

// OnTimeBars draws a horizontal bar chart of on-time hours per label.
func OnTimeBars(path, title string, labels []string, hours []float64) error {
	if len(labels) == 0 {
		return ErrNoData
	}

	if len(labels) != len(hours) {
		return fmt.Errorf("got %d labels for %d values", len(labels), len(hours))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "On-time [h]"

	bars, err := plotter.NewBarChart(plotter.Values(hours), vg.Points(16))
	if err != nil {
		return fmt.Errorf("creating bar chart: %w", err)
	}

	bars.Horizontal = true
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = 0

	p.Add(bars)
	p.NominalY(labels...)

	return save(p, path)
}

// lightCurvePoints are the bins of one source with error bars.
type lightCurvePoints struct {
	plotter.XYs
	plotter.XErrors
	plotter.YErrors
}

// LightCurve draws the excess rate of every bin with its time extent and
// rate uncertainty, one series per source. Bins without a finite rate are
// left out.
func LightCurve(path string, night int64, result *qla.Result) error {
	if result == nil || result.Empty() {
		return ErrNoData
	}

	p := newTimePlot(fmt.Sprintf("Excess rate of night %d", night), "Excess rate [1/h]")
	palette := NewPalette()
	drawn := 0

	for _, source := range result.Sources() {
		var pts lightCurvePoints

		for i := range result.Bins {
			b := &result.Bins[i]
			if b.Source != source || !b.HasFiniteRate() {
				continue
			}

			hw := b.HalfWidth.Seconds()

			pts.XYs = append(pts.XYs, plotter.XY{X: unix(b.TimeMean), Y: b.Rate})
			pts.XErrors = append(pts.XErrors, struct{ Low, High float64 }{hw, hw})
			pts.YErrors = append(pts.YErrors, struct{ Low, High float64 }{
				b.RateUncertainty, b.RateUncertainty,
			})
		}

		if len(pts.XYs) == 0 {
			continue
		}

		c := palette.Color(source)

		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("source %s: %w", source, err)
		}

		scatter.GlyphStyle.Color = c

		xerr, err := plotter.NewXErrorBars(pts)
		if err != nil {
			return fmt.Errorf("source %s: %w", source, err)
		}

		xerr.LineStyle.Color = c

		yerr, err := plotter.NewYErrorBars(pts)
		if err != nil {
			return fmt.Errorf("source %s: %w", source, err)
		}

		yerr.LineStyle.Color = c

		p.Add(xerr, yerr, scatter)
		p.Legend.Add(source, scatter)

		drawn += len(pts.XYs)
	}

	if drawn == 0 {
		return ErrNoData
	}

	return save(p, path)
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}

	return nil
}
