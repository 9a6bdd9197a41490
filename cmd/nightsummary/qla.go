package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fact-project/nightsummary/pkg/qla"
	"github.com/fact-project/nightsummary/pkg/report"
	"github.com/spf13/cobra"
)

var (
	qlaNight  string
	qlaFormat string
)

var qlaCmd = &cobra.Command{
	Use:   "qla",
	Short: "Print the quick look analysis of a night",
	Long: `Bin the QLA results of a night into observation-block light curves and
print them with their Li & Ma significances.`,
	RunE: runQLA,
}

func init() {
	rootCmd.AddCommand(qlaCmd)
	qlaCmd.Flags().StringVar(&qlaNight, "night", "",
		"Night as YYYYMMDD")
	qlaCmd.Flags().StringVar(&qlaFormat, "format", "table",
		"Output format (table, json)")

	_ = qlaCmd.MarkFlagRequired("night")
}

func runQLA(cmd *cobra.Command, args []string) error {
	if qlaFormat != "table" && qlaFormat != "json" {
		return fmt.Errorf("unsupported format %q (table or json)", qlaFormat)
	}

	night, err := report.ParseNight(qlaNight)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	analyzer, err := qla.NewAnalyzer(log, cfg.QLAParams())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(st)

	runs, err := st.ListQLARuns(ctx, night)
	if err != nil {
		return err
	}

	result := analyzer.Analyze(runs)

	if qlaFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(report.NewQLADocument(night, result))
	}

	return writeQLATable(os.Stdout, night, result)
}

func writeQLATable(w io.Writer, night int64, result *qla.Result) error {
	if result.Empty() {
		_, err := fmt.Fprintf(w, "No QLA data for night %d\n", night)

		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "SOURCE\tSTART\tSTOP\tRUNS\tON-TIME [s]\tEXCESS\tRATE [1/h]\tSIGNIFICANCE")

	for i := range result.Bins {
		b := &result.Bins[i]

		rate := "-"
		if b.HasFiniteRate() {
			rate = fmt.Sprintf("%.1f ± %.1f", b.Rate, b.RateUncertainty)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.0f\t%g\t%s\t%.2f\n",
			b.Source,
			b.Start.UTC().Format("15:04:05"),
			b.Stop.UTC().Format("15:04:05"),
			b.Runs,
			b.OnTimeAfterCuts,
			b.ExcessEvents,
			rate,
			b.Significance,
		)
	}

	return tw.Flush()
}
