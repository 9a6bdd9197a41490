package qla

import (
	"io"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
)

// SignificanceFunc computes one significance per (on, off) pair.
type SignificanceFunc func(nOn, nOff []float64, alpha float64) []float64

// Result is the significance-annotated QLA table of one night.
type Result struct {
	Params Params `json:"params"`
	Bins   []Bin  `json:"bins"`
}

// Empty reports whether the night had no data to analyze.
func (r *Result) Empty() bool {
	return len(r.Bins) == 0
}

// Alert is a bin whose significance reached the alert threshold.
type Alert struct {
	Index  int     `json:"index"`
	Bin    Bin     `json:"bin"`
	PValue float64 `json:"p_value"`
}

// Alerts returns the bins at or above the alert threshold, in table order.
func (r *Result) Alerts() []Alert {
	var alerts []Alert

	for i := range r.Bins {
		if r.Bins[i].Significance < r.Params.AlertThreshold {
			continue
		}

		alerts = append(alerts, Alert{
			Index:  i,
			Bin:    r.Bins[i],
			PValue: distuv.UnitNormal.Survival(r.Bins[i].Significance),
		})
	}

	return alerts
}

// Sources returns the distinct sources of the table in order of first
// appearance.
func (r *Result) Sources() []string {
	seen := make(map[string]struct{}, 4)
	sources := make([]string, 0, 4)

	for i := range r.Bins {
		if _, ok := seen[r.Bins[i].Source]; ok {
			continue
		}

		seen[r.Bins[i].Source] = struct{}{}
		sources = append(sources, r.Bins[i].Source)
	}

	return sources
}

// MaxSignificanceBySource returns the highest bin significance per source.
func (r *Result) MaxSignificanceBySource() map[string]float64 {
	best := make(map[string]float64, 4)

	for i := range r.Bins {
		b := &r.Bins[i]
		if cur, ok := best[b.Source]; !ok || b.Significance > cur {
			best[b.Source] = b.Significance
		}
	}

	return best
}

// Analyzer runs the QLA pipeline: block grouping, online binning,
// aggregation and Li & Ma significance.
type Analyzer struct {
	log          logrus.FieldLogger
	params       Params
	significance SignificanceFunc
}

// NewAnalyzer validates p and returns an Analyzer.
func NewAnalyzer(log logrus.FieldLogger, p Params) (*Analyzer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &Analyzer{
		log:          log.WithField("component", "qla"),
		params:       p,
		significance: LiMaSignificance,
	}, nil
}

// Params returns the analyzer's parameters.
func (a *Analyzer) Params() Params {
	return a.params
}

// Analyze computes the binned significance table for runs. The runs need not
// be sorted. An empty result means there was no data.
func (a *Analyzer) Analyze(runs []Run) *Result {
	result := &Result{Params: a.params}

	blocks := GroupObservationBlocks(runs)

	for i := range blocks {
		block := &blocks[i]
		bins := AssignBins(block.Runs, a.params.BinWidthMinutes)
		rows := AggregateBins(block.Runs, bins, a.params)

		for j := range rows {
			rows[j].Block = block.ID
		}

		a.log.WithFields(logrus.Fields{
			"block":  block.ID,
			"source": block.Source(),
			"runs":   len(block.Runs),
			"bins":   len(rows),
		}).Debug("Aggregated observation block")

		result.Bins = append(result.Bins, rows...)
	}

	if result.Empty() {
		a.log.WithField("runs", len(runs)).Debug("No QLA data to analyze")

		return result
	}

	nOn := make([]float64, len(result.Bins))
	nOff := make([]float64, len(result.Bins))
	factor := a.params.OffRegionFactor()

	for i := range result.Bins {
		nOn[i] = result.Bins[i].SignalEvents
		nOff[i] = result.Bins[i].BackgroundEvents * factor
	}

	for i, s := range a.significance(nOn, nOff, a.params.Alpha) {
		result.Bins[i].Significance = s
	}

	return result
}

// Analyze runs the pipeline with parameters p and no logging.
func Analyze(runs []Run, p Params) (*Result, error) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	a, err := NewAnalyzer(log, p)
	if err != nil {
		return nil, err
	}

	return a.Analyze(runs), nil
}
