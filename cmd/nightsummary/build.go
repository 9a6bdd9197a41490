package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fact-project/nightsummary/pkg/report"
	"github.com/fact-project/nightsummary/pkg/summary"
	"github.com/fact-project/nightsummary/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	buildNights    []string
	buildOutputDir string
	buildUpload    bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build night summaries",
	Long: `Build the summary of one or more nights: plots, a markdown and HTML
report and the QLA result as JSON. Without --night the night
report.night_offset_days before today is built.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringSliceVar(&buildNights, "night", nil,
		"Night to build as YYYYMMDD (comma-separated or repeated flag)")
	buildCmd.Flags().StringVar(&buildOutputDir, "output-dir", "",
		"Output directory (overrides report.output_dir)")
	buildCmd.Flags().BoolVar(&buildUpload, "upload", false,
		"Upload the built nights to S3")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if buildOutputDir != "" {
		cfg.Report.OutputDir = buildOutputDir
	}

	nights, err := parseNights(buildNights, cfg.Report.NightOffsetDays)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var uploader upload.Uploader

	if buildUpload {
		if !cfg.S3Enabled() {
			return fmt.Errorf("S3 upload is not configured or not enabled in config")
		}

		uploader, err = upload.NewS3Uploader(log, cfg.Upload.S3)
		if err != nil {
			return fmt.Errorf("creating S3 uploader: %w", err)
		}

		if err := uploader.Preflight(ctx); err != nil {
			return fmt.Errorf("s3 preflight: %w", err)
		}
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(st)

	builder, err := summary.NewBuilder(log, st, cfg)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"nights":     len(nights),
		"output_dir": cfg.Report.OutputDir,
	}).Info("Building night summaries")

	outputs, err := builder.BuildNights(ctx, nights)
	if err != nil {
		return fmt.Errorf("building nights: %w", err)
	}

	if uploader == nil {
		return nil
	}

	for _, out := range outputs {
		log.WithField("dir", out.Dir).Info("Uploading night summary")

		if err := uploader.Upload(ctx, out.Dir); err != nil {
			return fmt.Errorf("uploading night %d: %w", out.Night, err)
		}
	}

	return nil
}

// parseNights parses the --night values, defaulting to the night
// offsetDays before today.
func parseNights(values []string, offsetDays int) ([]int64, error) {
	if len(values) == 0 {
		return []int64{report.DefaultNight(time.Now(), offsetDays)}, nil
	}

	nights := make([]int64, 0, len(values))
	seen := make(map[int64]struct{}, len(values))

	for _, v := range values {
		night, err := report.ParseNight(v)
		if err != nil {
			return nil, err
		}

		if _, ok := seen[night]; ok {
			continue
		}

		seen[night] = struct{}{}
		nights = append(nights, night)
	}

	return nights, nil
}
