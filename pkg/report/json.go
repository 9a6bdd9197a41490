package report

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fact-project/nightsummary/pkg/qla"
)

// QLADocument is the machine-readable QLA result of one night.
type QLADocument struct {
	Night  int64      `json:"night"`
	NoData bool       `json:"no_data"`
	Params qla.Params `json:"params"`
	Bins   []qla.Bin  `json:"bins"`
	Alerts []QLAAlert `json:"alerts"`
}

// QLAAlert references a bin at or above the alert threshold.
type QLAAlert struct {
	Index        int     `json:"index"`
	Source       string  `json:"source_name"`
	Significance float64 `json:"significance"`
	PValue       float64 `json:"p_value"`
}

// NewQLADocument builds the document of a night. A nil result is treated
// as a night without data.
func NewQLADocument(night int64, result *qla.Result) *QLADocument {
	doc := &QLADocument{
		Night:  night,
		NoData: true,
		Params: qla.DefaultParams(),
		Bins:   []qla.Bin{},
		Alerts: []QLAAlert{},
	}

	if result == nil {
		return doc
	}

	doc.Params = result.Params
	doc.NoData = result.Empty()

	if len(result.Bins) > 0 {
		doc.Bins = result.Bins
	}

	for _, a := range result.Alerts() {
		doc.Alerts = append(doc.Alerts, QLAAlert{
			Index:        a.Index,
			Source:       a.Bin.Source,
			Significance: a.Bin.Significance,
			PValue:       a.PValue,
		})
	}

	return doc
}

// WriteResultJSON writes the QLA document of a night to path.
func WriteResultJSON(path string, night int64, result *qla.Result) error {
	data, err := json.MarshalIndent(NewQLADocument(night, result), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling qla result: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing qla result: %w", err)
	}

	return nil
}
