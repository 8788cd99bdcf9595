package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/swarm-simulator/internal/logging"
	"github.com/signalsfoundry/swarm-simulator/internal/observability"
	"github.com/signalsfoundry/swarm-simulator/internal/results"
	"github.com/signalsfoundry/swarm-simulator/internal/runner"
)

func newRunCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run every variation of a scenario",
		Long: `Run resolves a scenario and executes each variation as an independent
simulation. Runs are reproducible: the same scenario and master seed always
produce the same results, whatever the parallelism.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSweep(cmd, args[0])
		},
	}

	flags := c.Flags()
	flags.Int("parallelism", 1, "number of variations run concurrently")
	flags.Duration("run-timeout", 0, "wall-clock budget per variation (0 disables)")
	flags.String("metrics-addr", "", "HTTP address to serve Prometheus /metrics on while running")
	flags.String("results", "", "SQLite database to record run summaries in")
	bindFlag(flags, "parallelism", "runner.parallelism")
	bindFlag(flags, "run-timeout", "runner.run_timeout")
	bindFlag(flags, "metrics-addr", "metrics.addr")
	bindFlag(flags, "results", "results.path")
	return c
}

func (a *app) runSweep(cmd *cobra.Command, path string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, seq, err := loadSequence(a, path)
	if err != nil {
		return err
	}

	shutdownTracing, err := observability.InitTracing(ctx, a.cfg.Tracing, a.log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, a.log)

	collectors, err := observability.NewCollectors(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	if srv := serveMetrics(a.cfg.Metrics.Addr, collectors, a.log); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var store *results.Store
	if a.cfg.Results.Path != "" {
		store, err = results.Open(ctx, a.cfg.Results.Path)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	r := runner.New(runner.Config{
		Parallelism: a.cfg.Runner.Parallelism,
		RunTimeout:  a.cfg.Runner.RunTimeout,
		Logger:      a.log,
		Metrics:     collectors,
		Results:     store,
	})
	report, runErr := r.Run(ctx, f, seq)
	if report != nil {
		if err := printReport(cmd, report); err != nil {
			return err
		}
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("sweep interrupted: %w", runErr)
		}
		return runErr
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d runs did not complete", n, len(report.Results))
	}
	return nil
}

func printReport(cmd *cobra.Command, report *runner.Report) error {
	out := cmd.OutOrStdout()
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCOMB\tREP\tSTATUS\tSIM TIME\tSTEPS\tSENT\tHEARD\tNEIGHBOURS\tWALL\tPARAMS")
	for i, res := range report.Results {
		var status string
		switch res.Status {
		case observability.RunStatusCompleted:
			status = ok(res.Status)
		case observability.RunStatusCancelled:
			status = warn(res.Status)
		default:
			status = bad(res.Status)
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%.2f\t%d\t%d\t%d\t%.2f\t%s\t%s\n",
			i, res.Variation.Index(), res.Variation.Repetition(), status,
			res.SimTime, res.Stats.Steps, res.Swarm.Sent, res.Swarm.Heard,
			res.Swarm.MeanNeighbours, res.Wall.Round(time.Millisecond), res.Variation.Params())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for i, res := range report.Results {
		if res.Err != nil && res.Status == observability.RunStatusFailed {
			fmt.Fprintf(out, "%s run %d: %v\n", bad("error"), i, res.Err)
		}
	}
	fmt.Fprintf(out, "sweep %s: %d runs, %d failed\n", report.SweepID, len(report.Results), report.Failed())
	return nil
}

func serveMetrics(addr string, collectors *observability.Collectors, log logging.Logger) *http.Server {
	if addr == "" || collectors == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collectors.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
