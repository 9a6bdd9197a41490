package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fact-project/nightsummary/pkg/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import runs and QLA results into the database",
	Long: `Load sources, run types, runs and QLA results from a YAML or JSON dataset
and upsert them into the configured database. Used to build local copies of
the observatory database.`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importFile, "file", "",
		"Dataset file (.yaml, .yml or .json)")

	_ = importCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, args []string) error {
	dataset, err := readDataset(importFile)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(st)

	return st.Import(ctx, dataset)
}

func readDataset(path string) (*store.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}

	var d store.Dataset

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &d)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &d)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}

	if err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}

	return &d, nil
}
