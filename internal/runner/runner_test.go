package runner

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/swarm-simulator/internal/observability"
	"github.com/signalsfoundry/swarm-simulator/internal/results"
	"github.com/signalsfoundry/swarm-simulator/scenario"
	"github.com/signalsfoundry/swarm-simulator/variation"
)

const sweepYAML = `
name: runner-test
repetitions: 2
variables:
  - name: count
    kind: enumerated
    items: [2, 3]
  - name: speed
    kind: random
    distribution: uniform
    lower: 0.5
    upper: 1.5
executive:
  step_size: 0.1
  duration: 3
radio:
  range_threshold: 0
  noise_mean: 1e-9
  noise_stddev: 1e-10
swarm:
  count: "${count}"
  speed: "${speed}"
  arena_radius: 10
  beacon_period: 0.5
  position_noise:
    kind: gaussian
    stddev: 0.2
`

func load(t *testing.T, doc string) (*scenario.File, *variation.Sequence) {
	t.Helper()
	f, err := scenario.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sc, err := f.Scenario()
	if err != nil {
		t.Fatalf("Scenario: %v", err)
	}
	seq, err := variation.Resolve(sc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return f, seq
}

func TestSweepIsDeterministicAcrossParallelism(t *testing.T) {
	f, seq := load(t, sweepYAML)
	ctx := context.Background()

	serial, err := New(Config{Parallelism: 1}).Run(ctx, f, seq)
	if err != nil {
		t.Fatalf("serial Run: %v", err)
	}
	parallel, err := New(Config{Parallelism: 4}).Run(ctx, f, seq)
	if err != nil {
		t.Fatalf("parallel Run: %v", err)
	}

	if len(serial.Results) != seq.Len() || len(parallel.Results) != seq.Len() {
		t.Fatalf("results = %d/%d, want %d", len(serial.Results), len(parallel.Results), seq.Len())
	}
	if serial.SweepID == parallel.SweepID {
		t.Fatalf("sweeps share an ID")
	}
	for i := range serial.Results {
		a, b := serial.Results[i], parallel.Results[i]
		if a.Status != observability.RunStatusCompleted || b.Status != observability.RunStatusCompleted {
			t.Fatalf("run %d status = %s/%s (%v/%v)", i, a.Status, b.Status, a.Err, b.Err)
		}
		if a.Variation.Index() != i%seq.Combinations() {
			t.Fatalf("result %d carries combination %d", i, a.Variation.Index())
		}
		if a.Stats != b.Stats || a.Swarm != b.Swarm || a.SimTime != b.SimTime {
			t.Fatalf("run %d differs:\n serial   %+v %+v\n parallel %+v %+v", i, a.Stats, a.Swarm, b.Stats, b.Swarm)
		}
		if a.Swarm.Sent == 0 {
			t.Fatalf("run %d sent no beacons", i)
		}
	}
	// Repetitions of one combination share parameters but not seeds.
	first, again := serial.Results[0].Variation, serial.Results[seq.Combinations()].Variation
	if first.Index() != again.Index() || first.RunSeed() == again.RunSeed() {
		t.Fatalf("repetition seeds: %#x and %#x", first.RunSeed(), again.RunSeed())
	}
}

func TestRunRecordsResultsAndMetrics(t *testing.T) {
	f, seq := load(t, sweepYAML)
	ctx := context.Background()

	store, err := results.Open(ctx, filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("results.Open: %v", err)
	}
	defer store.Close()
	collectors, err := observability.NewCollectors(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollectors: %v", err)
	}

	report, err := New(Config{Parallelism: 2, Results: store, Metrics: collectors}).Run(ctx, f, seq)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	runs, err := store.Runs(ctx, report.SweepID)
	if err != nil {
		t.Fatalf("store.Runs: %v", err)
	}
	if len(runs) != seq.Len() {
		t.Fatalf("stored runs = %d, want %d", len(runs), seq.Len())
	}
	for i, rec := range runs {
		res := report.Results[i]
		if rec.ID != res.RunID || rec.Index != res.Variation.Index() || rec.RunSeed != res.Variation.RunSeed() {
			t.Fatalf("record %d = %+v, want run %s", i, rec, res.RunID)
		}
		if rec.Steps != res.Stats.Steps || rec.BeaconsSent != res.Swarm.Sent {
			t.Fatalf("record %d counters differ from result", i)
		}
		if !strings.HasPrefix(rec.Params, `{"count":`) || !strings.Contains(rec.Params, `,"speed":`) {
			t.Fatalf("params %q not stored in binding order", rec.Params)
		}
	}

	completed := collectors.Runs.Variations.WithLabelValues(observability.RunStatusCompleted)
	if got := testutil.ToFloat64(completed); got != float64(seq.Len()) {
		t.Fatalf("completed variations = %v, want %d", got, seq.Len())
	}
	if got := testutil.ToFloat64(collectors.Executive.StepsTotal); got != float64(30*seq.Len()) {
		t.Fatalf("steps = %v, want %d", got, 30*seq.Len())
	}
	if testutil.ToFloat64(collectors.Propagation.Transmissions) == 0 {
		t.Fatalf("no transmissions recorded")
	}
}

func TestRunTimeoutFailsOnlyThatRun(t *testing.T) {
	doc := `
name: slow
executive:
  step_size: 0.1
  duration: 100
  pacing: realtime
swarm:
  count: 2
`
	f, seq := load(t, doc)
	report, err := New(Config{RunTimeout: 50 * time.Millisecond}).Run(context.Background(), f, seq)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := report.Results[0]
	if res.Status != observability.RunStatusFailed || !errors.Is(res.Err, ErrRunTimeout) {
		t.Fatalf("result = %s %v, want failed with ErrRunTimeout", res.Status, res.Err)
	}
	if res.SimTime >= 100 {
		t.Fatalf("run reached the horizon despite the timeout")
	}
	if report.Failed() != 1 {
		t.Fatalf("Failed = %d, want 1", report.Failed())
	}
}

func TestBindFailureIsReportedPerRun(t *testing.T) {
	doc := `
name: bad-count
variables:
  - name: count
    kind: enumerated
    items: [2, 2.5]
swarm:
  count: "${count}"
`
	f, seq := load(t, doc)
	report, err := New(Config{}).Run(context.Background(), f, seq)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Results[0].Status != observability.RunStatusCompleted {
		t.Fatalf("run 0 = %s %v", report.Results[0].Status, report.Results[0].Err)
	}
	if !errors.Is(report.Results[1].Err, scenario.ErrInvalidScenario) {
		t.Fatalf("run 1 err = %v, want ErrInvalidScenario", report.Results[1].Err)
	}
}

func TestCancelledSweep(t *testing.T) {
	f, seq := load(t, sweepYAML)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New(Config{}).Run(ctx, f, seq)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	for i, res := range report.Results {
		if res.Status != observability.RunStatusCancelled {
			t.Fatalf("run %d status = %s, want cancelled", i, res.Status)
		}
	}
}

func TestCancelledSweepStillRecordsEveryRun(t *testing.T) {
	doc := `
name: slow-sweep
variables:
  - name: count
    kind: enumerated
    items: [2, 3, 4]
executive:
  step_size: 0.1
  duration: 100
  pacing: realtime
`
	f, seq := load(t, doc)
	store, err := results.Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("results.Open: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(100*time.Millisecond, cancel)
	defer timer.Stop()

	report, err := New(Config{Parallelism: 1, Results: store}).Run(ctx, f, seq)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	runs, err := store.Runs(context.Background(), report.SweepID)
	if err != nil {
		t.Fatalf("store.Runs: %v", err)
	}
	if len(runs) != seq.Len() {
		t.Fatalf("stored runs = %d, want %d", len(runs), seq.Len())
	}
	for i, rec := range runs {
		if rec.Status != observability.RunStatusCancelled {
			t.Fatalf("record %d status = %s, want cancelled", i, rec.Status)
		}
		if rec.ID == "" || rec.ID != report.Results[i].RunID {
			t.Fatalf("record %d id = %q, result id = %q", i, rec.ID, report.Results[i].RunID)
		}
	}
}
