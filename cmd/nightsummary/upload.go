package main

import (
	"fmt"

	"github.com/fact-project/nightsummary/pkg/upload"
	"github.com/spf13/cobra"
)

var (
	uploadDir  string
	uploadList bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a night summary to remote storage",
	Long: `Upload a built night directory to S3-compatible storage using the config
file settings, or list the nights already uploaded.`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadDir, "dir", "",
		"Path to the night directory to upload")
	uploadCmd.Flags().BoolVar(&uploadList, "list", false,
		"List the uploaded nights instead of uploading")

	uploadCmd.MarkFlagsOneRequired("dir", "list")
	uploadCmd.MarkFlagsMutuallyExclusive("dir", "list")
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if !cfg.S3Enabled() {
		return fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	uploader, err := upload.NewS3Uploader(log, cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx := cmd.Context()

	if uploadList {
		nights, err := uploader.ListNights(ctx)
		if err != nil {
			return err
		}

		for _, night := range nights {
			fmt.Println(night)
		}

		return nil
	}

	log.WithField("dir", uploadDir).Info("Uploading night summary")

	if err := uploader.Upload(ctx, uploadDir); err != nil {
		return fmt.Errorf("uploading night summary: %w", err)
	}

	log.Info("Upload completed successfully")

	return nil
}
