package qla

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultBinWidthMinutes is the target live time of a bin.
	DefaultBinWidthMinutes = 20.0

	// DefaultRetentionFraction is the fraction of the target live time the
	// last bin of a block must reach to be kept.
	DefaultRetentionFraction = 0.9

	// DefaultAlpha is the on/off exposure ratio of the wobble analysis
	// (five off regions).
	DefaultAlpha = 0.2

	// DefaultAlertThreshold is the significance in sigma at which a bin is
	// reported as an alert candidate.
	DefaultAlertThreshold = 5.0

	secondsPerHour = 3600.0
)

// ErrInvalidParams is returned when analysis parameters cannot produce a
// meaningful binning or significance.
var ErrInvalidParams = errors.New("invalid qla parameters")

// Run is one QLA result row joined with its run information.
type Run struct {
	RunID            int64     `json:"run_id"`
	Night            int64     `json:"night"`
	Source           string    `json:"source"`
	Start            time.Time `json:"start"`
	Stop             time.Time `json:"stop"`
	OnTimeAfterCuts  float64   `json:"on_time_after_cuts"`
	ExcessEvents     float64   `json:"excess_events"`
	SignalEvents     float64   `json:"signal_events"`
	BackgroundEvents float64   `json:"background_events"`
}

// Block is a maximal sequence of consecutive runs on the same source.
type Block struct {
	ID   int
	Runs []Run
}

// Source returns the source shared by all runs of the block.
func (b *Block) Source() string {
	if len(b.Runs) == 0 {
		return ""
	}

	return b.Runs[0].Source
}

// Bin is one row of the aggregated QLA table.
type Bin struct {
	Block            int
	Runs             int
	Source           string
	OnTimeAfterCuts  float64
	ExcessEvents     float64
	SignalEvents     float64
	BackgroundEvents float64
	Start            time.Time
	Stop             time.Time
	Rate             float64
	RateUncertainty  float64
	TimeMean         time.Time
	HalfWidth        time.Duration
	Significance     float64
}

type jsonBin struct {
	Block            int       `json:"block"`
	Runs             int       `json:"runs"`
	Source           string    `json:"source_name"`
	OnTimeAfterCuts  float64   `json:"on_time_after_cuts"`
	ExcessEvents     float64   `json:"excess_events_sum"`
	SignalEvents     float64   `json:"signal_events_sum"`
	BackgroundEvents float64   `json:"background_events_sum"`
	Start            time.Time `json:"start_min"`
	Stop             time.Time `json:"stop_max"`
	Rate             *float64  `json:"rate"`
	RateUncertainty  *float64  `json:"rate_uncertainty"`
	TimeMean         time.Time `json:"time_mean"`
	HalfWidthSeconds float64   `json:"half_width"`
	Significance     float64   `json:"significance"`
}

// MarshalJSON encodes the bin with non-finite rates as null, since
// zero-exposure bins are reported as-is.
func (b Bin) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonBin{
		Block:            b.Block,
		Runs:             b.Runs,
		Source:           b.Source,
		OnTimeAfterCuts:  b.OnTimeAfterCuts,
		ExcessEvents:     b.ExcessEvents,
		SignalEvents:     b.SignalEvents,
		BackgroundEvents: b.BackgroundEvents,
		Start:            b.Start,
		Stop:             b.Stop,
		Rate:             finiteOrNil(b.Rate),
		RateUncertainty:  finiteOrNil(b.RateUncertainty),
		TimeMean:         b.TimeMean,
		HalfWidthSeconds: b.HalfWidth.Seconds(),
		Significance:     b.Significance,
	})
}

// HasFiniteRate reports whether rate and its uncertainty can be displayed.
func (b *Bin) HasFiniteRate() bool {
	return isFinite(b.Rate) && isFinite(b.RateUncertainty)
}

func finiteOrNil(v float64) *float64 {
	if !isFinite(v) {
		return nil
	}

	return &v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Params configures binning and significance.
type Params struct {
	BinWidthMinutes   float64 `json:"bin_width_minutes"`
	RetentionFraction float64 `json:"retention_fraction"`
	Alpha             float64 `json:"alpha"`
	AlertThreshold    float64 `json:"alert_threshold"`
}

// DefaultParams returns the standard QLA parameters.
func DefaultParams() Params {
	return Params{
		BinWidthMinutes:   DefaultBinWidthMinutes,
		RetentionFraction: DefaultRetentionFraction,
		Alpha:             DefaultAlpha,
		AlertThreshold:    DefaultAlertThreshold,
	}
}

// Threshold returns the target live time of a bin in seconds.
func (p Params) Threshold() float64 {
	return p.BinWidthMinutes * 60
}

// OffRegionFactor returns the factor converting the background count of the
// on region into the off count, i.e. 1/alpha.
func (p Params) OffRegionFactor() float64 {
	return 1 / p.Alpha
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	if !(p.BinWidthMinutes > 0) || math.IsInf(p.BinWidthMinutes, 0) {
		return fmt.Errorf("%w: bin width must be positive, got %v",
			ErrInvalidParams, p.BinWidthMinutes)
	}

	if !(p.Alpha > 0) || math.IsInf(p.Alpha, 0) {
		return fmt.Errorf("%w: alpha must be positive, got %v",
			ErrInvalidParams, p.Alpha)
	}

	if !(p.RetentionFraction >= 0 && p.RetentionFraction <= 1) {
		return fmt.Errorf("%w: retention fraction must be within [0, 1], got %v",
			ErrInvalidParams, p.RetentionFraction)
	}

	if math.IsNaN(p.AlertThreshold) {
		return fmt.Errorf("%w: alert threshold is NaN", ErrInvalidParams)
	}

	return nil
}
