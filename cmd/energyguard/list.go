package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listDataset int64

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List datasets, or the runs of one dataset",
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <dataset-id>",
	Short: "Delete a dataset with its readings and runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	listCmd.Flags().Int64VarP(&listDataset, "dataset", "d", 0, "Show the runs of this dataset")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	if listDataset != 0 {
		runs, err := db.ListRuns(ctx, listDataset)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Printf("No runs for dataset %d\n", listDataset)
			return nil
		}
		fmt.Fprintln(tw, "RUN\tALGORITHM\tCONTAMINATION\tREADINGS\tANOMALIES\tSTARTED")
		for _, r := range runs {
			algo := r.Algorithm
			if r.Fallback {
				algo += " (fallback)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%s\n",
				r.ID, algo, r.Contamination,
				humanize.Comma(int64(r.Points)), humanize.Comma(int64(r.Anomalies)),
				humanize.Time(r.StartedAt))
		}
		return nil
	}

	datasets, err := db.ListDatasets(ctx)
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		fmt.Println("No datasets. Create one with 'energyguard generate' or 'energyguard import'.")
		return nil
	}
	fmt.Fprintln(tw, "ID\tNAME\tREADINGS\tRUNS\tSAMPLE\tCREATED")
	for _, d := range datasets {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\t%s\n",
			d.ID, d.Name, humanize.Comma(int64(d.Readings)), d.Runs, d.IsSample, humanize.Time(d.CreatedAt))
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid dataset id %q: %w", args[0], err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.DeleteDataset(cmd.Context(), id); err != nil {
		return err
	}
	log.Info("deleted dataset", "dataset_id", id)
	fmt.Printf("Deleted dataset %d\n", id)
	return nil
}
