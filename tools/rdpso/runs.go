package rdpso

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"rdpso/simulator/internal/store"
)

func newRunsCmd() *cobra.Command {
	var (
		dbPath       string
		limit        int
		improvements string
		jsonOutput   bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs or the improvements of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if dbPath == "" {
				return errors.New("--store is required")
			}
			db, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, db.Close()) }()
			out := cmd.OutOrStdout()

			//1.- A run id switches the listing to that run's improvements.
			if improvements != "" {
				list, err := db.Improvements(cmd.Context(), improvements)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, list)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ITERATION\tSCORE\tPOSITION\tRECORDED")
				for _, imp := range list {
					fmt.Fprintf(tw, "%d\t%.6f\t%s\t%s\n", imp.Iteration, imp.Performance.Score, formatVector(imp.Performance.Position), imp.RecordedAt.UTC().Format(time.RFC3339))
				}
				return tw.Flush()
			}

			//2.- Otherwise summarise the newest runs.
			runs, err := db.ListRuns(cmd.Context(), limit)

			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(out, runs)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSEED\tGOAL\tSWARM\tITERATIONS\tBEST\tSTARTED")
			for _, run := range runs {
				best := "-"
				if run.HasBest {
					best = fmt.Sprintf("%.6f", run.Best.Score)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s %s\t%d\t%d\t%s\t%s\n", run.ID, run.Seed, run.Strategy, run.Goal, run.SwarmSize, run.Iterations, best, run.StartedAt.UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "store", "", "SQLite run history database")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&improvements, "improvements", "", "list the improvements of this run id instead")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit JSON")
	return cmd
}
