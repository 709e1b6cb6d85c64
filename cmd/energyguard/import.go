package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hed1ad/energyguard/pkg/features"
	energycsv "github.com/hed1ad/energyguard/pkg/io/csv"
	"github.com/hed1ad/energyguard/pkg/models"
)

var (
	importName        string
	importDescription string
	importTimezone    string
	importLenient     bool
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import readings from a CSV file",
	Long: `Imports readings into a new dataset. The file needs a header row with
timestamp and energy_consumption columns; temperature, humidity and occupancy
are optional. Timestamps use the format 2006-01-02 15:04:05.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importName, "name", "", "Dataset name (default: file name)")
	importCmd.Flags().StringVar(&importDescription, "description", "", "Dataset description")
	importCmd.Flags().StringVar(&importTimezone, "timezone", "UTC", "IANA time zone of the timestamps")
	importCmd.Flags().BoolVar(&importLenient, "skip-invalid", false, "Skip malformed rows instead of failing")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]

	loc, err := time.LoadLocation(importTimezone)
	if err != nil {
		return fmt.Errorf("loading time zone: %w", err)
	}

	var skipped int
	r, err := energycsv.Open(path,
		energycsv.WithLocation(loc),
		energycsv.WithLenient(importLenient),
		energycsv.OnSkip(func(err error) {
			skipped++
			log.Warn("skipping row", "file", path, "error", err)
		}))
	if err != nil {
		return err
	}
	defer r.Close()

	readings, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if len(readings) == 0 {
		return fmt.Errorf("no readings in %s", path)
	}
	// reject files the detectors would refuse before storing anything
	if _, err := features.Build(readings); err != nil {
		return fmt.Errorf("validating readings: %w", err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	name := importName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	dataset := &models.Dataset{Name: name, Description: importDescription}

	ctx := cmd.Context()
	if err := db.CreateDataset(ctx, dataset); err != nil {
		return fmt.Errorf("creating dataset: %w", err)
	}
	if err := db.InsertReadings(ctx, dataset.ID, readings); err != nil {
		if derr := db.DeleteDataset(ctx, dataset.ID); derr != nil {
			log.Warn("removing partial dataset failed", "dataset_id", dataset.ID, "error", derr)
		}
		return fmt.Errorf("storing readings: %w", err)
	}

	log.Info("imported dataset", "dataset_id", dataset.ID, "file", path, "readings", len(readings), "skipped", skipped, "columns", r.Headers())
	fmt.Printf("Imported %s readings into dataset %d %q\n", humanize.Comma(int64(len(readings))), dataset.ID, dataset.Name)
	if skipped > 0 {
		fmt.Printf("Skipped %s malformed rows\n", humanize.Comma(int64(skipped)))
	}
	return nil
}
