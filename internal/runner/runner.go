// Package runner executes every Variation of a resolved sequence as an
// independent simulation run: one clock, executive, propagation engine and
// swarm per run, seeded only from the Variation.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/swarm-simulator/core"
	"github.com/signalsfoundry/swarm-simulator/internal/logging"
	"github.com/signalsfoundry/swarm-simulator/internal/observability"
	"github.com/signalsfoundry/swarm-simulator/internal/results"
	"github.com/signalsfoundry/swarm-simulator/internal/swarm"
	"github.com/signalsfoundry/swarm-simulator/rf"
	"github.com/signalsfoundry/swarm-simulator/scenario"
	"github.com/signalsfoundry/swarm-simulator/timectrl"
	"github.com/signalsfoundry/swarm-simulator/variation"
)

// ErrRunTimeout marks a run that exceeded Config.RunTimeout.
var ErrRunTimeout = errors.New("run exceeded its wall-clock budget")

// Config is the explicit configuration record for a Runner. The zero value
// runs sequentially without a time budget, metrics, tracing spans of note or
// persistence.
type Config struct {
	// Parallelism bounds concurrent runs; values below 1 mean 1.
	Parallelism int
	// RunTimeout is the wall-clock budget of one run; 0 disables it.
	RunTimeout time.Duration

	Logger  logging.Logger
	Metrics *observability.Collectors
	Results *results.Store
	// Tracer defaults to observability.Tracer().
	Tracer trace.Tracer
}

// Result is the outcome of one Variation run.
type Result struct {
	RunID     string
	Variation variation.Variation
	Status    string
	Err       error
	SimTime   float64
	Stats     core.Stats
	Swarm     swarm.Summary
	Wall      time.Duration
}

// Report is the outcome of a sweep. Results are in sequence order
// regardless of Parallelism.
type Report struct {
	SweepID  string
	Scenario string
	Results  []Result
}

// Failed counts runs that did not complete.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status != observability.RunStatusCompleted {
			n++
		}
	}
	return n
}

// Runner executes sweeps.
type Runner struct {
	cfg    Config
	log    logging.Logger
	tracer trace.Tracer
}

// New builds a Runner.
func New(cfg Config) *Runner {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.Tracer()
	}
	return &Runner{
		cfg:    cfg,
		log:    logging.OrNoop(cfg.Logger).With(logging.String("component", "runner")),
		tracer: tracer,
	}
}

// Run executes every Variation of seq. A failed run is recorded in the
// report and does not stop the sweep; Run itself fails only when ctx is
// cancelled or the results store rejects a write.
func (r *Runner) Run(ctx context.Context, f *scenario.File, seq *variation.Sequence) (*Report, error) {
	sweepID := logging.NewRunID()
	ctx, span := r.tracer.Start(ctx, "sweep",
		trace.WithAttributes(
			attribute.String("sweep.id", sweepID),
			attribute.String("scenario", f.Name),
			attribute.Int("sweep.runs", seq.Len()),
		))
	defer span.End()

	log := r.log.With(logging.String("sweep_id", sweepID), logging.String("scenario", f.Name))
	report := &Report{SweepID: sweepID, Scenario: f.Name, Results: make([]Result, seq.Len())}

	if r.cfg.Results != nil {
		err := r.cfg.Results.BeginSweep(ctx, results.Sweep{
			ID:        sweepID,
			Scenario:  f.Name,
			Runs:      seq.Len(),
			StartedAt: time.Now(),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	log.Info(ctx, "sweep started",
		logging.Int("runs", seq.Len()),
		logging.Int("parallelism", r.cfg.Parallelism),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)
	var skipped []int
	for i, v := range seq.All() {
		if gctx.Err() != nil {
			report.Results[i] = Result{
				RunID:     logging.NewRunID(),
				Variation: v,
				Status:    observability.RunStatusCancelled,
				Err:       gctx.Err(),
			}
			skipped = append(skipped, i)
			continue
		}
		g.Go(func() error {
			res := r.RunOne(gctx, f, v)
			report.Results[i] = res
			return r.record(ctx, sweepID, res)
		})
	}
	err := g.Wait()
	// Skipped runs are still written so the sweep has a row per run.
	for _, i := range skipped {
		if rerr := r.record(ctx, sweepID, report.Results[i]); rerr != nil && err == nil {
			err = rerr
		}
	}
	if err == nil {
		err = ctx.Err()
	}

	log.Info(ctx, "sweep finished",
		logging.Int("runs", len(report.Results)),
		logging.Int("failed", report.Failed()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	return report, nil
}

// RunOne executes a single Variation. It never returns an error; failures
// are reported through the Result's Status and Err.
func (r *Runner) RunOne(ctx context.Context, f *scenario.File, v variation.Variation) Result {
	res := Result{RunID: logging.NewRunID(), Variation: v}
	ctx = logging.ContextWithRunID(ctx, res.RunID)
	ctx, log := logging.WithRunLogger(ctx, r.log)
	log = log.With(
		logging.Int("variation", v.Index()),
		logging.Int("repetition", v.Repetition()),
	)

	ctx, span := r.tracer.Start(ctx, "variation.run",
		trace.WithAttributes(
			attribute.String("run.id", res.RunID),
			attribute.Int("variation.index", v.Index()),
			attribute.Int("variation.repetition", v.Repetition()),
			attribute.Int64("variation.master_seed", v.MasterSeed()),
			attribute.String("variation.run_seed", fmt.Sprintf("%#x", v.RunSeed())),
			attribute.String("variation.params", v.Params().String()),
		))
	defer span.End()

	runs := r.runCollector()
	runs.RunStarted()
	start := time.Now()

	err := r.execute(ctx, f, v, log, &res)
	res.Wall = time.Since(start)
	res.Err = err
	switch {
	case err == nil:
		res.Status = observability.RunStatusCompleted
	case errors.Is(err, context.Canceled):
		res.Status = observability.RunStatusCancelled
	default:
		res.Status = observability.RunStatusFailed
	}
	runs.RunFinished(res.Status, res.Wall)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn(ctx, "run did not complete", logging.String("status", res.Status), logging.Err(err))
	} else {
		log.Info(ctx, "run completed",
			logging.Float("sim_time", res.SimTime),
			logging.Uint64("steps", res.Stats.Steps),
			logging.Float("mean_neighbours", res.Swarm.MeanNeighbours),
			logging.String("wall", res.Wall.String()),
		)
	}
	span.SetAttributes(
		attribute.String("run.status", res.Status),
		attribute.Float64("run.sim_time", res.SimTime),
	)
	return res
}

func (r *Runner) execute(ctx context.Context, f *scenario.File, v variation.Variation, log logging.Logger, res *Result) error {
	spec, err := f.Bind(v)
	if err != nil {
		return err
	}

	seeds := v.SeedFactory()
	clock := timectrl.NewClock(0, spec.Executive.StepSize)
	var pacer *timectrl.Pacer
	if spec.Executive.Pacing == timectrl.RealTime {
		pacer = timectrl.NewPacer(timectrl.RealTime, spec.Executive.PacingScale)
	}
	exec := core.NewExecutive(clock, core.ExecutiveConfig{
		Pacer:   pacer,
		Seeds:   seeds,
		Logger:  log,
		Metrics: r.executiveMetrics(),
	})
	defer exec.Stop()

	engine := rf.NewEngine(clock, seeds.Stream("rf/noise"), spec.Radio.Engine,
		rf.WithLogger(log),
		rf.WithMetrics(r.propagationMetrics()),
	)
	exec.AddCloser(engine)

	sw, err := swarm.Build(exec, engine, SwarmConfig(spec), spec.Swarm.Count)
	if err != nil {
		return err
	}

	runCtx := ctx
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, r.cfg.RunTimeout, ErrRunTimeout)
		defer cancel()
	}

	if err := exec.Start(runCtx); err != nil {
		return err
	}
	err = exec.Run(runCtx, spec.Executive.Duration)
	exec.Stop()

	res.SimTime = clock.Now()
	res.Stats = exec.Stats()
	res.Swarm = sw.Summary()

	if err != nil && errors.Is(context.Cause(runCtx), ErrRunTimeout) {
		return fmt.Errorf("%w (%s at t=%g)", ErrRunTimeout, r.cfg.RunTimeout, res.SimTime)
	}
	return err
}

// SwarmConfig maps the bound radio and swarm settings of a run onto the
// agent configuration.
func SwarmConfig(spec *scenario.RunSpec) swarm.Config {
	var orbit *swarm.Orbit
	if o := spec.Swarm.Orbit; o != nil {
		orbit = &swarm.Orbit{Line1: o.Line1, Line2: o.Line2, Epoch: o.Epoch, Spacing: o.Spacing}
	}
	return swarm.Config{
		Speed:         spec.Swarm.Speed,
		ArenaRadius:   spec.Swarm.ArenaRadius,
		Altitude:      spec.Swarm.Altitude,
		BeaconPeriod:  spec.Swarm.BeaconPeriod,
		NeighbourTTL:  spec.Swarm.NeighbourTTL,
		TxPower:       spec.Radio.TxPower,
		MinSNRdB:      spec.Radio.MinSNRdB,
		Pattern:       spec.Radio.Pattern,
		PositionNoise: spec.Swarm.PositionNoise,
		Orbit:         orbit,
	}
}

// executiveMetrics returns nil rather than a typed nil so the executive
// skips the calls entirely.
func (r *Runner) executiveMetrics() core.ExecutiveMetrics {
	if r.cfg.Metrics == nil || r.cfg.Metrics.Executive == nil {
		return nil
	}
	return r.cfg.Metrics.Executive
}

func (r *Runner) propagationMetrics() rf.PropagationMetrics {
	if r.cfg.Metrics == nil || r.cfg.Metrics.Propagation == nil {
		return nil
	}
	return r.cfg.Metrics.Propagation
}

func (r *Runner) runCollector() *observability.RunCollector {
	if r.cfg.Metrics == nil {
		return nil
	}
	return r.cfg.Metrics.Runs
}

// record writes res to the results store, if any. Cancelled runs are still
// written, so the write does not inherit ctx's cancellation.
func (r *Runner) record(ctx context.Context, sweepID string, res Result) error {
	if r.cfg.Results == nil {
		return nil
	}
	return r.cfg.Results.RecordRun(context.WithoutCancel(ctx), toRecord(sweepID, res))
}

func toRecord(sweepID string, res Result) results.Run {
	params, _ := json.Marshal(res.Variation.Params())
	rec := results.Run{
		ID:             res.RunID,
		SweepID:        sweepID,
		Index:          res.Variation.Index(),
		Repetition:     res.Variation.Repetition(),
		MasterSeed:     res.Variation.MasterSeed(),
		RunSeed:        res.Variation.RunSeed(),
		Params:         string(params),
		Status:         res.Status,
		SimTime:        res.SimTime,
		Steps:          res.Stats.Steps,
		Delivered:      res.Stats.EventsDelivered,
		Dropped:        res.Stats.EventsDropped,
		Faults:         res.Stats.EventFaults,
		BeaconsSent:    res.Swarm.Sent,
		BeaconsHeard:   res.Swarm.Heard,
		MeanNeighbours: res.Swarm.MeanNeighbours,
		Wall:           res.Wall,
		FinishedAt:     time.Now(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}
