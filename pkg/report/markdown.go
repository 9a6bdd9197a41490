package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fact-project/nightsummary/pkg/qla"
	"github.com/fact-project/nightsummary/pkg/store"
	"gonum.org/v1/gonum/floats"
)

// Plot keys of NightSummary.Plots.
const (
	PlotTimeline   = "timeline"
	PlotSources    = "sources"
	PlotRunTypes   = "runtypes"
	PlotLightCurve = "lightcurve"
)

const (
	unknownSource  = "(none)"
	unknownRunType = "(unknown)"
	timeLayout     = "15:04:05"
)

// NightSummary is everything shown in the report of one night.
type NightSummary struct {
	Title       string
	Night       int64
	GeneratedAt time.Time
	Runs        []store.RunInfo
	QLA         *qla.Result

	// Plots maps plot keys to image paths relative to the report.
	Plots map[string]string
}

// OnTimeEntry is one row of an on-time breakdown.
type OnTimeEntry struct {
	Name  string
	Hours float64
}

// GenerateMarkdown renders the night summary as markdown.
func GenerateMarkdown(s *NightSummary) string {
	var sb strings.Builder

	sb.Grow(8192)

	writeTitle(&sb, s)
	writeOverview(&sb, s)
	writeOnTime(&sb, "On-Time by Source", "Source",
		OnTimeBySource(s.Runs), s.Plots[PlotSources])
	writeOnTime(&sb, "On-Time by Run Type", "Run Type",
		OnTimeByRunType(s.Runs), s.Plots[PlotRunTypes])
	writeRuns(&sb, s)
	writeQLA(&sb, s)
	writeAlerts(&sb, s.QLA)

	return sb.String()
}

func writeTitle(sb *strings.Builder, s *NightSummary) {
	title := s.Title
	if title == "" {
		title = "Night Summary"
	}

	if date, err := NightDate(s.Night); err == nil {
		fmt.Fprintf(sb, "# %s: %s\n\n", title, date.Format("2006-01-02"))
	} else {
		fmt.Fprintf(sb, "# %s: %d\n\n", title, s.Night)
	}
}

func writeOverview(sb *strings.Builder, s *NightSummary) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| Night | %d |\n", s.Night)
	fmt.Fprintf(sb, "| Runs | %d |\n", len(s.Runs))

	onTimes := make([]float64, len(s.Runs))
	for i := range s.Runs {
		onTimes[i] = s.Runs[i].OnTime
	}

	fmt.Fprintf(sb, "| Total On-Time | %s |\n", formatHours(floats.Sum(onTimes)/3600))

	if len(s.Runs) > 0 {
		first, last := s.Runs[0].Start, s.Runs[0].Stop
		for i := range s.Runs {
			if s.Runs[i].Start.Before(first) {
				first = s.Runs[i].Start
			}

			if s.Runs[i].Stop.After(last) {
				last = s.Runs[i].Stop
			}
		}

		fmt.Fprintf(sb, "| First Run Start | %s |\n",
			first.UTC().Format("2006-01-02 15:04:05 UTC"))
		fmt.Fprintf(sb, "| Last Run Stop | %s |\n",
			last.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	if s.QLA != nil {
		fmt.Fprintf(sb, "| QLA Bins | %d |\n", len(s.QLA.Bins))
		fmt.Fprintf(sb, "| Alerts | %d |\n", len(s.QLA.Alerts()))
	}

	if !s.GeneratedAt.IsZero() {
		fmt.Fprintf(sb, "| Generated | %s |\n",
			s.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	sb.WriteByte('\n')

	if img := s.Plots[PlotTimeline]; img != "" {
		fmt.Fprintf(sb, "![Run timeline](%s)\n\n", img)
	}
}

func writeOnTime(
	sb *strings.Builder,
	heading, label string,
	entries []OnTimeEntry,
	img string,
) {
	if len(entries) == 0 {
		return
	}

	fmt.Fprintf(sb, "## %s\n\n", heading)
	fmt.Fprintf(sb, "| %s | On-Time |\n", label)
	sb.WriteString("|---|---|\n")

	for _, e := range entries {
		fmt.Fprintf(sb, "| %s | %s |\n", escapeCell(e.Name), formatHours(e.Hours))
	}

	sb.WriteByte('\n')

	if img != "" {
		fmt.Fprintf(sb, "![%s](%s)\n\n", heading, img)
	}
}

func writeRuns(sb *strings.Builder, s *NightSummary) {
	if len(s.Runs) == 0 {
		return
	}

	sb.WriteString("## Runs\n\n")
	sb.WriteString("| Run | Type | Source | Start | Stop | On-Time |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")

	for i := range s.Runs {
		r := &s.Runs[i]

		source := r.SourceName()
		if source == "" {
			source = unknownSource
		}

		runType := r.RunType
		if runType == "" {
			runType = unknownRunType
		}

		fmt.Fprintf(sb, "| %d | %s | %s | %s | %s | %s |\n",
			r.RunID,
			escapeCell(runType),
			escapeCell(source),
			r.Start.UTC().Format(timeLayout),
			r.Stop.UTC().Format(timeLayout),
			formatSeconds(r.OnTime),
		)
	}

	sb.WriteByte('\n')
}

func writeQLA(sb *strings.Builder, s *NightSummary) {
	sb.WriteString("## Quick Look Analysis\n\n")

	if s.QLA == nil || s.QLA.Empty() {
		sb.WriteString("No QLA data for this night.\n\n")

		return
	}

	p := s.QLA.Params
	fmt.Fprintf(sb, "Bin width %s min, alpha %s, alert threshold %s sigma.\n\n",
		formatFloat(p.BinWidthMinutes), formatFloat(p.Alpha),
		formatFloat(p.AlertThreshold))

	if img := s.Plots[PlotLightCurve]; img != "" {
		fmt.Fprintf(sb, "![Light curve](%s)\n\n", img)
	}

	sb.WriteString("| Source | Start | Stop | On-Time | Excess | Signal " +
		"| Background | Rate [1/h] | Significance [σ] |\n")
	sb.WriteString("|---|---|---|---|---|---|---|---|---|\n")

	for i := range s.QLA.Bins {
		b := &s.QLA.Bins[i]

		fmt.Fprintf(sb, "| %s | %s | %s | %s | %s | %s | %s | %s | %.2f |\n",
			escapeCell(b.Source),
			b.Start.UTC().Format(timeLayout),
			b.Stop.UTC().Format(timeLayout),
			formatSeconds(b.OnTimeAfterCuts),
			formatFloat(b.ExcessEvents),
			formatFloat(b.SignalEvents),
			formatFloat(b.BackgroundEvents),
			formatRate(b),
			b.Significance,
		)
	}

	sb.WriteByte('\n')
}

func writeAlerts(sb *strings.Builder, result *qla.Result) {
	if result == nil || result.Empty() {
		return
	}

	alerts := result.Alerts()

	sb.WriteString("## Alerts\n\n")

	if len(alerts) == 0 {
		fmt.Fprintf(sb, "No bin reached %s sigma.\n\n",
			formatFloat(result.Params.AlertThreshold))

		return
	}

	sb.WriteString("| Source | Time | Significance [σ] | p-value |\n")
	sb.WriteString("|---|---|---|---|\n")

	for _, a := range alerts {
		fmt.Fprintf(sb, "| %s | %s | %.2f | %.3g |\n",
			escapeCell(a.Bin.Source),
			a.Bin.TimeMean.UTC().Format(timeLayout),
			a.Bin.Significance,
			a.PValue,
		)
	}

	sb.WriteByte('\n')
}

// OnTimeBySource sums on-time in hours per source, largest first. Runs
// without a source are skipped.
func OnTimeBySource(runs []store.RunInfo) []OnTimeEntry {
	return sumOnTime(runs, func(r *store.RunInfo) (string, bool) {
		name := r.SourceName()

		return name, name != ""
	})
}

// OnTimeByRunType sums on-time in hours per run type, largest first.
func OnTimeByRunType(runs []store.RunInfo) []OnTimeEntry {
	return sumOnTime(runs, func(r *store.RunInfo) (string, bool) {
		if r.RunType == "" {
			return unknownRunType, true
		}

		return r.RunType, true
	})
}

func sumOnTime(
	runs []store.RunInfo,
	key func(r *store.RunInfo) (string, bool),
) []OnTimeEntry {
	sums := make(map[string]float64, 8)

	for i := range runs {
		name, ok := key(&runs[i])
		if !ok {
			continue
		}

		sums[name] += runs[i].OnTime / 3600
	}

	entries := make([]OnTimeEntry, 0, len(sums))
	for name, hours := range sums {
		entries = append(entries, OnTimeEntry{Name: name, Hours: hours})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Hours != entries[j].Hours {
			return entries[i].Hours > entries[j].Hours
		}

		return entries[i].Name < entries[j].Name
	})

	return entries
}

func formatRate(b *qla.Bin) string {
	if !b.HasFiniteRate() {
		return "-"
	}

	return fmt.Sprintf("%.1f ± %.1f", b.Rate, b.RateUncertainty)
}

// formatHours formats a duration in hours with two decimals.
func formatHours(h float64) string {
	return fmt.Sprintf("%.2f h", h)
}

// formatSeconds formats seconds as a human-readable duration.
func formatSeconds(s float64) string {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return "-"
	}

	return formatDuration(time.Duration(s * float64(time.Second)))
}

// formatDuration formats a time.Duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.String()
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}

	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	return fmt.Sprintf("%ds", seconds)
}

// formatFloat drops trailing zeros.
func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}

// escapeCell keeps a value from breaking the table.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
