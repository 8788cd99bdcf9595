package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/swarm-simulator/internal/results"
)

func newResultsCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "results [sweep-id]",
		Short: "List recorded sweeps, or the runs of one sweep",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Results.Path == "" {
				return errors.New("no results database configured (use --results or SWARMSIM_RESULTS_PATH)")
			}
			store, err := results.Open(cmd.Context(), a.cfg.Results.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				return listSweeps(cmd, store)
			}
			return listRuns(cmd, store, args[0])
		},
	}
	c.Flags().String("results", "", "SQLite database holding run summaries")
	bindFlag(c.Flags(), "results", "results.path")
	return c
}

func listSweeps(cmd *cobra.Command, store *results.Store) error {
	sweeps, err := store.Sweeps(cmd.Context())
	if err != nil {
		return err
	}
	if len(sweeps) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sweeps recorded")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SWEEP\tSCENARIO\tRUNS\tSTARTED")
	for _, sw := range sweeps {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", sw.ID, sw.Scenario, sw.Runs, sw.StartedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, store *results.Store, sweepID string) error {
	runs, err := store.Runs(cmd.Context(), sweepID)
	if err != nil {
		return err
	}
	bad := color.New(color.FgRed).SprintFunc()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMB\tREP\tSTATUS\tSIM TIME\tSTEPS\tSENT\tHEARD\tNEIGHBOURS\tPARAMS")
	for _, r := range runs {
		status := r.Status
		if r.Error != "" {
			status = bad(status)
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%.2f\t%d\t%d\t%d\t%.2f\t%s\n",
			r.Index, r.Repetition, status, r.SimTime, r.Steps,
			r.BeaconsSent, r.BeaconsHeard, r.MeanNeighbours, r.Params)
	}
	return w.Flush()
}
