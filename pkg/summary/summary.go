// Package summary builds the night summary of one or more nights: it reads
// runs and QLA results from the store, runs the quick look analysis and
// writes plots and reports to the output directory.
package summary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fact-project/nightsummary/pkg/config"
	"github.com/fact-project/nightsummary/pkg/plot"
	"github.com/fact-project/nightsummary/pkg/qla"
	"github.com/fact-project/nightsummary/pkg/report"
	"github.com/fact-project/nightsummary/pkg/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Output lists the files written for one night.
type Output struct {
	Night    int64
	Dir      string
	Markdown string
	HTML     string
	JSON     string

	// Plots maps plot keys to file paths.
	Plots  map[string]string
	Result *qla.Result
}

// Builder renders night summaries.
type Builder struct {
	log      logrus.FieldLogger
	store    store.Store
	cfg      *config.ReportConfig
	analyzer *qla.Analyzer
	now      func() time.Time
}

// NewBuilder creates a builder reading from s. It fails if the analysis
// parameters of cfg are invalid.
func NewBuilder(
	log logrus.FieldLogger,
	s store.Store,
	cfg *config.Config,
) (*Builder, error) {
	log = log.WithField("component", "summary")

	analyzer, err := qla.NewAnalyzer(log, cfg.QLAParams())
	if err != nil {
		return nil, fmt.Errorf("creating analyzer: %w", err)
	}

	return &Builder{
		log:      log,
		store:    s,
		cfg:      &cfg.Report,
		analyzer: analyzer,
		now:      time.Now,
	}, nil
}

// Summarize collects the runs of a night and analyzes its QLA results
// without writing anything.
func (b *Builder) Summarize(ctx context.Context, night int64) (*report.NightSummary, error) {
	runs, err := b.store.ListRuns(ctx, night)
	if err != nil {
		return nil, err
	}

	qlaRuns, err := b.store.ListQLARuns(ctx, night)
	if err != nil {
		return nil, err
	}

	return &report.NightSummary{
		Title:       b.cfg.Title,
		Night:       night,
		GeneratedAt: b.now().UTC(),
		Runs:        runs,
		QLA:         b.analyzer.Analyze(qlaRuns),
		Plots:       make(map[string]string, 4),
	}, nil
}

// Build writes the summary of a night into <output_dir>/<night>/.
func (b *Builder) Build(ctx context.Context, night int64) (*Output, error) {
	log := b.log.WithField("night", night)

	s, err := b.Summarize(ctx, night)
	if err != nil {
		return nil, fmt.Errorf("summarizing night %d: %w", night, err)
	}

	name := report.FormatNight(night)
	out := &Output{
		Night:  night,
		Dir:    filepath.Join(b.cfg.OutputDir, name),
		Plots:  make(map[string]string, 4),
		Result: s.QLA,
	}

	if err := os.MkdirAll(out.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	if b.cfg.Plots {
		b.drawPlots(log, s, out)
	}

	md := report.GenerateMarkdown(s)

	out.Markdown = filepath.Join(out.Dir, "fact_summary_"+name+".md")
	if err := os.WriteFile(out.Markdown, []byte(md), 0644); err != nil {
		return nil, fmt.Errorf("writing markdown: %w", err)
	}

	if b.cfg.HTML {
		title := fmt.Sprintf("%s %s", b.cfg.Title, name)

		out.HTML = filepath.Join(out.Dir, "fact_summary_"+name+".html")
		if err := os.WriteFile(out.HTML, report.RenderHTML(md, title), 0644); err != nil {
			return nil, fmt.Errorf("writing html: %w", err)
		}
	}

	out.JSON = filepath.Join(out.Dir, "qla_"+name+".json")
	if err := report.WriteResultJSON(out.JSON, night, s.QLA); err != nil {
		return nil, err
	}

	for _, alert := range s.QLA.Alerts() {
		log.WithFields(logrus.Fields{
			"source":       alert.Bin.Source,
			"time":         alert.Bin.TimeMean.Format(time.RFC3339),
			"significance": fmt.Sprintf("%.2f", alert.Bin.Significance),
			"p_value":      alert.PValue,
		}).Warn("Significant excess detected")
	}

	log.WithFields(logrus.Fields{
		"runs":  len(s.Runs),
		"bins":  len(s.QLA.Bins),
		"plots": len(out.Plots),
		"dir":   out.Dir,
	}).Info("Night summary built")

	return out, nil
}

// drawPlots renders the figures of s and records them in both s and out.
// Failures are logged, the report is built without the figure.
func (b *Builder) drawPlots(
	log logrus.FieldLogger,
	s *report.NightSummary,
	out *Output,
) {
	bySource := report.OnTimeBySource(s.Runs)
	byRunType := report.OnTimeByRunType(s.Runs)

	draws := []struct {
		key  string
		draw func(path string) error
	}{
		{report.PlotTimeline, func(path string) error {
			return plot.RunTimeline(path, s.Night, s.Runs)
		}},
		{report.PlotSources, func(path string) error {
			labels, hours := splitEntries(bySource)

			return plot.OnTimeBars(path, "On-time by source", labels, hours)
		}},
		{report.PlotRunTypes, func(path string) error {
			labels, hours := splitEntries(byRunType)

			return plot.OnTimeBars(path, "On-time by run type", labels, hours)
		}},
		{report.PlotLightCurve, func(path string) error {
			return plot.LightCurve(path, s.Night, s.QLA)
		}},
	}

	for _, d := range draws {
		file := d.key + ".svg"
		path := filepath.Join(out.Dir, file)

		if err := d.draw(path); err != nil {
			if !errors.Is(err, plot.ErrNoData) {
				log.WithError(err).WithField("plot", d.key).Warn("Failed to draw plot")
			}

			continue
		}

		s.Plots[d.key] = file
		out.Plots[d.key] = path
	}
}

func splitEntries(entries []report.OnTimeEntry) ([]string, []float64) {
	labels := make([]string, len(entries))
	hours := make([]float64, len(entries))

	for i, e := range entries {
		labels[i] = e.Name
		hours[i] = e.Hours
	}

	return labels, hours
}

// BuildNights builds several nights concurrently. It stops at the first
// failure.
func (b *Builder) BuildNights(ctx context.Context, nights []int64) ([]*Output, error) {
	outputs := make([]*Output, len(nights))

	concurrency := b.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = config.DefaultConcurrency
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, night := range nights {
		g.Go(func() error {
			out, err := b.Build(gCtx, night)
			if err != nil {
				return err
			}

			outputs[i] = out

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return outputs, nil
}
