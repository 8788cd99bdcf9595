package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrSweepNotFound is returned when a sweep ID has no rows.
var ErrSweepNotFound = errors.New("sweep not found")

// Sweep is one invocation of the runner over a resolved sequence.
type Sweep struct {
	ID        string
	Scenario  string
	Runs      int
	StartedAt time.Time
}

// Run is the summary of one variation run.
type Run struct {
	ID             string
	SweepID        string
	Index          int
	Repetition     int
	MasterSeed     int64
	RunSeed        uint64
	Params         string
	Status         string
	Error          string
	SimTime        float64
	Steps          uint64
	Delivered      uint64
	Dropped        uint64
	Faults         uint64
	BeaconsSent    uint64
	BeaconsHeard   uint64
	MeanNeighbours float64
	Wall           time.Duration
	FinishedAt     time.Time
}

// Store is a SQLite-backed run summary store. It is safe for concurrent use;
// writes are serialised through a single connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and initialises its schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create results directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginSweep records a sweep header. It must precede RecordRun for the
// sweep's runs.
func (s *Store) BeginSweep(ctx context.Context, sw Sweep) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sweeps (id, scenario, runs, started_at)
		VALUES (?, ?, ?, ?)`,
		sw.ID, sw.Scenario, sw.Runs, sw.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record sweep %s: %w", sw.ID, err)
	}
	return nil
}

// RecordRun inserts or replaces one run summary.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, sweep_id, variation_index, repetition, master_seed, run_seed,
			params, status, error, sim_time, steps, events_delivered,
			events_dropped, event_faults, beacons_sent, beacons_heard,
			mean_neighbours, wall_seconds, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SweepID, r.Index, r.Repetition, r.MasterSeed, int64(r.RunSeed),
		r.Params, r.Status, nullString(r.Error), r.SimTime, int64(r.Steps), int64(r.Delivered),
		int64(r.Dropped), int64(r.Faults), int64(r.BeaconsSent), int64(r.BeaconsHeard),
		r.MeanNeighbours, r.Wall.Seconds(), r.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	return nil
}

// Sweeps lists recorded sweeps, newest first.
func (s *Store) Sweeps(ctx context.Context) ([]Sweep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scenario, runs, started_at FROM sweeps
		ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweeps: %w", err)
	}
	defer rows.Close()

	var out []Sweep
	for rows.Next() {
		var (
			sw      Sweep
			started string
		)
		if err := rows.Scan(&sw.ID, &sw.Scenario, &sw.Runs, &started); err != nil {
			return nil, fmt.Errorf("failed to scan sweep: %w", err)
		}
		sw.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, sw)
	}
	return out, rows.Err()
}

// Runs returns the runs of one sweep in sequence order: every combination
// of the first repetition, then the next repetition.
func (s *Store) Runs(ctx context.Context, sweepID string) ([]Run, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sweeps WHERE id = ?`, sweepID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up sweep: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSweepNotFound, sweepID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sweep_id, variation_index, repetition, master_seed, run_seed,
			params, status, error, sim_time, steps, events_delivered,
			events_dropped, event_faults, beacons_sent, beacons_heard,
			mean_neighbours, wall_seconds, finished_at
		FROM runs WHERE sweep_id = ?
		ORDER BY repetition, variation_index`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                                 Run
			seed                              int64
			steps, delivered, dropped, faults int64
			sent, heard                       int64
			errText                           sql.NullString
			wall                              float64
			finished                          string
		)
		if err := rows.Scan(&r.ID, &r.SweepID, &r.Index, &r.Repetition, &r.MasterSeed, &seed,
			&r.Params, &r.Status, &errText, &r.SimTime, &steps, &delivered,
			&dropped, &faults, &sent, &heard,
			&r.MeanNeighbours, &wall, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.RunSeed = uint64(seed)
		r.Steps, r.Delivered, r.Dropped, r.Faults = uint64(steps), uint64(delivered), uint64(dropped), uint64(faults)
		r.BeaconsSent, r.BeaconsHeard = uint64(sent), uint64(heard)
		r.Error = errText.String
		r.Wall = time.Duration(wall * float64(time.Second))
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
