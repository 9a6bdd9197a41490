package store

import (
	"time"
)

// Table models follow the column naming of the FACT run database. Nullable
// columns are pointers.

// SourceRecord is a row of the Source table.
type SourceRecord struct {
	SourceKey  int64  `gorm:"column:fSourceKEY;primaryKey;autoIncrement:false" json:"source_key" yaml:"source_key"`
	SourceName string `gorm:"column:fSourceName;not null" json:"source_name" yaml:"source_name"`
}

// TableName implements gorm's tabler.
func (SourceRecord) TableName() string { return "Source" }

// RunTypeRecord is a row of the RunType table.
type RunTypeRecord struct {
	RunTypeKey  int64  `gorm:"column:fRunTypeKEY;primaryKey;autoIncrement:false" json:"run_type_key" yaml:"run_type_key"`
	RunTypeName string `gorm:"column:fRunTypeName;not null" json:"run_type_name" yaml:"run_type_name"`
}

// TableName implements gorm's tabler.
func (RunTypeRecord) TableName() string { return "RunType" }

// RunRecord is a row of the RunInfo table.
type RunRecord struct {
	Night      int64      `gorm:"column:fNight;primaryKey;autoIncrement:false" json:"night" yaml:"night"`
	RunID      int64      `gorm:"column:fRunID;primaryKey;autoIncrement:false" json:"run_id" yaml:"run_id"`
	SourceKey  *int64     `gorm:"column:fSourceKEY" json:"source_key,omitempty" yaml:"source_key,omitempty"`
	RunTypeKey *int64     `gorm:"column:fRunTypeKEY" json:"run_type_key,omitempty" yaml:"run_type_key,omitempty"`
	OnTime     *float64   `gorm:"column:fOnTime" json:"on_time,omitempty" yaml:"on_time,omitempty"`
	RunStart   *time.Time `gorm:"column:fRunStart" json:"run_start,omitempty" yaml:"run_start,omitempty"`
	RunStop    *time.Time `gorm:"column:fRunStop" json:"run_stop,omitempty" yaml:"run_stop,omitempty"`
}

// TableName implements gorm's tabler.
func (RunRecord) TableName() string { return "RunInfo" }

// QLARecord is a row of the AnalysisResultsRunLP table. Results of runs
// still being analyzed have NULL event counts.
type QLARecord struct {
	Night           int64    `gorm:"column:fNight;primaryKey;autoIncrement:false" json:"night" yaml:"night"`
	RunID           int64    `gorm:"column:fRunID;primaryKey;autoIncrement:false" json:"run_id" yaml:"run_id"`
	NumExcEvts      *float64 `gorm:"column:fNumExcEvts" json:"num_exc_evts,omitempty" yaml:"num_exc_evts,omitempty"`
	NumSigEvts      *float64 `gorm:"column:fNumSigEvts" json:"num_sig_evts,omitempty" yaml:"num_sig_evts,omitempty"`
	NumBgEvts       *float64 `gorm:"column:fNumBgEvts" json:"num_bg_evts,omitempty" yaml:"num_bg_evts,omitempty"`
	OnTimeAfterCuts *float64 `gorm:"column:fOnTimeAfterCuts" json:"on_time_after_cuts,omitempty" yaml:"on_time_after_cuts,omitempty"`
}

// TableName implements gorm's tabler.
func (QLARecord) TableName() string { return "AnalysisResultsRunLP" }

// Dataset is a bundle of table rows, used to load local database copies.
type Dataset struct {
	Sources  []SourceRecord  `json:"sources" yaml:"sources"`
	RunTypes []RunTypeRecord `json:"run_types" yaml:"run_types"`
	Runs     []RunRecord     `json:"runs" yaml:"runs"`
	Results  []QLARecord     `json:"results" yaml:"results"`
}

// RunInfo is one run of a night as shown in the run timeline.
type RunInfo struct {
	Night   int64     `json:"night"`
	RunID   int64     `json:"run_id"`
	Source  *string   `json:"source"`
	RunType string    `json:"run_type"`
	OnTime  float64   `json:"on_time"`
	Start   time.Time `json:"start"`
	Stop    time.Time `json:"stop"`
}

// SourceName returns the run's source or an empty string.
func (r *RunInfo) SourceName() string {
	if r.Source == nil {
		return ""
	}

	return *r.Source
}

// runInfoRow is the scan target of the run info join.
type runInfoRow struct {
	Night       int64      `gorm:"column:night"`
	RunID       int64      `gorm:"column:run_id"`
	SourceName  *string    `gorm:"column:source_name"`
	RunTypeName *string    `gorm:"column:run_type_name"`
	OnTime      *float64   `gorm:"column:on_time"`
	RunStart    *time.Time `gorm:"column:run_start"`
	RunStop     *time.Time `gorm:"column:run_stop"`
}

// qlaRow is the scan target of the QLA join. Any NULL marks an unfinished
// result.
type qlaRow struct {
	RunID           *int64     `gorm:"column:run_id"`
	Night           *int64     `gorm:"column:night"`
	ExcessEvents    *float64   `gorm:"column:excess_events"`
	SignalEvents    *float64   `gorm:"column:signal_events"`
	BackgroundEvts  *float64   `gorm:"column:background_events"`
	OnTimeAfterCuts *float64   `gorm:"column:on_time_after_cuts"`
	RunStart        *time.Time `gorm:"column:run_start"`
	RunStop         *time.Time `gorm:"column:run_stop"`
	SourceName      *string    `gorm:"column:source_name"`
}
