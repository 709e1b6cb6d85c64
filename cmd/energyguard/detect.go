package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/energyguard/internal/config"
	"github.com/hed1ad/energyguard/internal/metrics"
	"github.com/hed1ad/energyguard/internal/publisher"
	"github.com/hed1ad/energyguard/pkg/analysis"
	"github.com/hed1ad/energyguard/pkg/detectors"
	energycsv "github.com/hed1ad/energyguard/pkg/io/csv"
	"github.com/hed1ad/energyguard/pkg/models"
)

var (
	detectAlgorithm     string
	detectContamination float64
	detectSeed          int64
	detectOut           string
	detectPublish       bool
	detectTextfile      string
)

var detectCmd = &cobra.Command{
	Use:   "detect <dataset-id>",
	Short: "Run anomaly detection on a dataset",
	Long: `Scores every reading of a dataset, flags the top contamination share as
anomalies, evaluates the run and derives recommendations. Use --algorithm all
to run every available detector concurrently.`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().StringVarP(&detectAlgorithm, "algorithm", "a", "", "density, cluster, reconstruction or all (default: detection.algorithm)")
	detectCmd.Flags().Float64VarP(&detectContamination, "contamination", "c", 0, "Expected anomaly share in (0, 0.5] (default: detection.contamination)")
	detectCmd.Flags().Int64Var(&detectSeed, "seed", 0, "Random seed (default: detection.seed)")
	detectCmd.Flags().StringVarP(&detectOut, "out", "o", "", "Write scored readings to this CSV file")
	detectCmd.Flags().BoolVar(&detectPublish, "publish", false, "Publish run summaries over MQTT even if mqtt.enabled is false")
	detectCmd.Flags().StringVar(&detectTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file (default: metrics.textfile)")
	rootCmd.AddCommand(detectCmd)
}

type detectResult struct {
	run  *models.Run
	eval models.Evaluation
	recs []models.Recommendation
}

func runDetect(cmd *cobra.Command, args []string) error {
	datasetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid dataset id %q: %w", args[0], err)
	}

	det := cfg.Detection
	if cmd.Flags().Changed("algorithm") {
		det.Algorithm = detectAlgorithm
	}
	if cmd.Flags().Changed("contamination") {
		det.Contamination = detectContamination
	}
	if cmd.Flags().Changed("seed") {
		det.Seed = detectSeed
	}
	textfile := cfg.Metrics.Textfile
	if detectTextfile != "" {
		textfile = detectTextfile
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	dataset, err := db.GetDataset(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("loading dataset %d: %w", datasetID, err)
	}

	m, err := metrics.NewDetectionMetrics(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	svc := analysis.NewService(db,
		analysis.WithSeed(det.Seed),
		analysis.WithLogger(log),
		analysis.WithRecorder(m))

	algorithms, err := selectAlgorithms(svc, det.Algorithm)
	if err != nil {
		return err
	}

	results, err := detectAll(ctx, svc, datasetID, algorithms, det.Contamination)
	if err != nil {
		return err
	}

	for _, r := range results {
		if err := db.SaveRun(ctx, r.run, r.eval, r.recs); err != nil {
			return fmt.Errorf("saving %s run: %w", r.run.Algorithm, err)
		}
	}

	if cfg.MQTT.Enabled || detectPublish {
		publishResults(ctx, cfg.MQTT, results)
	}

	if textfile != "" {
		if err := m.WriteTextfile(textfile); err != nil {
			log.Warn("writing metrics textfile failed", "path", textfile, "error", err)
		}
	}

	if detectOut != "" {
		if err := writeScored(detectOut, results); err != nil {
			return err
		}
	}

	fmt.Printf("Dataset %d %q\n", dataset.ID, dataset.Name)
	for _, r := range results {
		printResult(r)
	}
	return nil
}

// selectAlgorithms expands "all" to every available registered algorithm.
func selectAlgorithms(svc *analysis.Service, name string) ([]detectors.Algorithm, error) {
	if !strings.EqualFold(name, config.AllAlgorithms) {
		a, err := detectors.ParseAlgorithm(name)
		if err != nil {
			return nil, err
		}
		return []detectors.Algorithm{a}, nil
	}

	var out []detectors.Algorithm
	for _, a := range svc.Registry().Algorithms() {
		if svc.Registry().Available(a) {
			out = append(out, a)
		} else {
			log.Info("skipping unavailable algorithm", "algorithm", a)
		}
	}
	return out, nil
}

// detectAll runs each algorithm in its own goroutine and keeps the
// requested order in the result.
func detectAll(ctx context.Context, svc *analysis.Service, datasetID int64, algorithms []detectors.Algorithm, contamination float64) ([]detectResult, error) {
	results := make([]detectResult, len(algorithms))

	g, ctx := errgroup.WithContext(ctx)
	for i, a := range algorithms {
		g.Go(func() error {
			run, err := svc.Detect(ctx, datasetID, a, contamination)
			if err != nil {
				return fmt.Errorf("%s: %w", a, err)
			}
			results[i] = detectResult{
				run:  run,
				eval: svc.EvaluateRun(run),
				recs: svc.RecommendRun(run),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func publishResults(ctx context.Context, mc config.MQTTConfig, results []detectResult) {
	pub, err := publisher.New(mc, log)
	if err != nil {
		log.Warn("mqtt unavailable, skipping publish", "broker", mc.Broker, "error", err)
		return
	}
	defer pub.Close()

	for _, r := range results {
		if err := pub.PublishRun(ctx, publisher.NewSummary(r.run, r.eval, r.recs)); err != nil {
			log.Warn("publishing run failed", "run_id", r.run.ID, "error", err)
		}
	}
}

func writeScored(path string, results []detectResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	// the writer owns f from here on
	w := energycsv.NewWriter(f)
	for _, r := range results {
		if err := w.WriteAll(r.run.Points); err != nil {
			w.Close()
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func printResult(r detectResult) {
	run := r.run
	algo := run.Algorithm
	if run.Fallback {
		algo = fmt.Sprintf("%s (fallback from %s)", run.Algorithm, run.Requested)
	}

	fmt.Println()
	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  Algorithm:  %s\n", algo)
	fmt.Printf("  Features:   %s\n", strings.Join(run.Features, ", "))
	fmt.Printf("  Readings:   %s\n", humanize.Comma(int64(len(run.Points))))
	fmt.Printf("  Anomalies:  %s\n", humanize.Comma(int64(len(run.Anomalies))))
	fmt.Printf("  Took:       %s\n", run.Duration.Round(time.Millisecond))
	if r.eval.F1 != nil {
		fmt.Printf("  Accuracy %s  Precision %s  Recall %s  F1 %s (approximate)\n",
			percent(r.eval.Accuracy), percent(r.eval.Precision), percent(r.eval.Recall), percent(r.eval.F1))
	}

	if len(r.recs) > 0 {
		fmt.Println("  Recommendations:")
		for _, rec := range r.recs {
			fmt.Printf("    - [%s] %s%s\n", rec.Category, rec.Text, savings(rec.PotentialSavings))
		}
	}
}

func percent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

func savings(v *float64) string {
	if v == nil || *v == 0 {
		return ""
	}
	return fmt.Sprintf(" (est. savings %s)", percent(v))
}
