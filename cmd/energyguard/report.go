package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hed1ad/energyguard/internal/store"
	"github.com/hed1ad/energyguard/pkg/models"
)

var (
	reportRun   string
	reportChart bool
	reportJSON  bool
)

var reportCmd = &cobra.Command{
	Use:   "report <dataset-id>",
	Short: "Show the anomalies, evaluation and recommendations of a run",
	Long: `Shows a stored run of a dataset, the latest one unless --run is given.
With --chart the dataset's series are printed as JSON, flagged by the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportRun, "run", "r", "", "Run ID (default: latest run of the dataset)")
	reportCmd.Flags().BoolVar(&reportChart, "chart", false, "Print chart series as JSON")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the report as JSON")
	rootCmd.AddCommand(reportCmd)
}

type reportView struct {
	Dataset         *models.Dataset         `json:"dataset"`
	Run             *store.RunSummary       `json:"run"`
	Anomalies       []store.AnomalyDetail   `json:"anomalies"`
	Evaluation      *models.Evaluation      `json:"evaluation"`
	Recommendations []models.Recommendation `json:"recommendations"`
}

func runReport(cmd *cobra.Command, args []string) error {
	datasetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid dataset id %q: %w", args[0], err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	dataset, err := db.GetDataset(ctx, datasetID)
	if err != nil {
		return err
	}

	run, err := resolveRun(cmd, db, datasetID)
	if err != nil {
		return err
	}

	if reportChart {
		runID := ""
		if run != nil {
			runID = run.ID
		}
		chart, err := db.ChartData(ctx, datasetID, runID)
		if err != nil {
			return err
		}
		return printJSON(chart)
	}

	if run == nil {
		fmt.Printf("Dataset %d %q has no runs. Run 'energyguard detect %d' first.\n", dataset.ID, dataset.Name, dataset.ID)
		return nil
	}

	anomalies, err := db.ListAnomalies(ctx, run.ID)
	if err != nil {
		return err
	}
	eval, err := db.GetEvaluation(ctx, run.ID)
	if err != nil {
		return err
	}
	recs, err := db.ListRecommendations(ctx, run.ID)
	if err != nil {
		return err
	}

	if reportJSON {
		return printJSON(reportView{
			Dataset:         dataset,
			Run:             run,
			Anomalies:       anomalies,
			Evaluation:      eval,
			Recommendations: recs,
		})
	}

	fmt.Printf("Dataset %d %q\n", dataset.ID, dataset.Name)
	fmt.Printf("Run %s: %s, contamination %.2f, %s of %s readings flagged, %s\n",
		run.ID, run.Algorithm, run.Contamination,
		humanize.Comma(int64(run.Anomalies)), humanize.Comma(int64(run.Points)),
		humanize.Time(run.StartedAt))
	if eval.F1 != nil {
		fmt.Printf("Evaluation (approximate): accuracy %s, precision %s, recall %s, F1 %s\n",
			percent(eval.Accuracy), percent(eval.Precision), percent(eval.Recall), percent(eval.F1))
	}

	if len(anomalies) > 0 {
		fmt.Println()
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIMESTAMP\tENERGY\tTEMP\tHUMIDITY\tOCCUPANCY\tSCORE")
		for _, a := range anomalies {
			r := a.Reading
			fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\t%s\t%.3f\n",
				r.Timestamp.Format(time.DateTime), r.EnergyConsumption,
				optional(r.Temperature), optional(r.Humidity), optionalInt(r.Occupancy), a.Score)
		}
		tw.Flush()
	}

	if len(recs) > 0 {
		fmt.Println()
		fmt.Println("Recommendations:")
		for _, r := range recs {
			fmt.Printf("  - [%s] %s%s\n", r.Category, r.Text, savings(r.PotentialSavings))
		}
	}
	return nil
}

// resolveRun returns the requested run, or the latest one. It returns nil
// when the dataset has no runs.
func resolveRun(cmd *cobra.Command, db *store.DB, datasetID int64) (*store.RunSummary, error) {
	ctx := cmd.Context()
	if reportRun != "" {
		run, err := db.GetRun(ctx, reportRun)
		if err != nil {
			return nil, err
		}
		if run.DatasetID != datasetID {
			return nil, fmt.Errorf("run %s belongs to dataset %d", run.ID, run.DatasetID)
		}
		return run, nil
	}

	runs, err := db.ListRuns(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
