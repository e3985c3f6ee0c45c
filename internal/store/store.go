// Package store persists run history and historic-best improvements in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"rdpso/simulator/internal/goal"
	"rdpso/simulator/internal/space"
)

// ErrUnknownRun reports an operation against a run that was never started.
var ErrUnknownRun = errors.New("unknown run")

//go:embed schema.sql
var schemaSQL string

// Store wraps the SQLite handle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Run summarises one simulation run.
type Run struct {
	ID         string
	Seed       uint64
	Goal       goal.Goal
	Strategy   goal.Strategy
	SwarmSize  int
	ConfigJSON string
	StartedAt  time.Time
	FinishedAt time.Time
	Iterations uint64
	// Best is only meaningful when HasBest is true.
	Best    goal.Performance
	HasBest bool
}

// Improvement is one historic-best change within a run.
type Improvement struct {
	RunID       string
	Iteration   uint64
	Performance goal.Performance
	RecordedAt  time.Time
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// A single connection keeps in-memory databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun inserts a run record.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	started := run.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, seed, goal, strategy, swarm_size, config_json, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, int64(run.Seed), run.Goal.String(), run.Strategy.String(), run.SwarmSize, run.ConfigJSON, started.UnixNano())
	if err != nil {
		return fmt.Errorf("start run %s: %w", run.ID, err)
	}
	return nil
}

// RecordImprovement appends a historic-best improvement and updates the run summary.
func (s *Store) RecordImprovement(ctx context.Context, runID string, iteration uint64, perf goal.Performance) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record improvement: %w", err)
	}
	defer tx.Rollback()

	//1.- Update the run summary first so an unknown run aborts before inserting.
	result, err := tx.ExecContext(ctx, `
		UPDATE runs SET iterations = MAX(iterations, ?), best_score = ?, best_x = ?, best_y = ?, best_z = ?
		WHERE run_id = ?
	`, int64(iteration), perf.Score, perf.Position.X, perf.Position.Y, perf.Position.Z, runID)
	if err != nil {
		return fmt.Errorf("record improvement: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	//2.- Append the improvement row inside the same transaction.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO improvements (run_id, iteration, score, x, y, z, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, int64(iteration), perf.Score, perf.Position.X, perf.Position.Y, perf.Position.Z, s.now().UnixNano()); err != nil {
		return fmt.Errorf("record improvement: %w", err)
	}
	return tx.Commit()
}

// FinishRun stamps the end time and final iteration count.
func (s *Store) FinishRun(ctx context.Context, runID string, iterations uint64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, iterations = MAX(iterations, ?) WHERE run_id = ?
	`, s.now().UnixNano(), int64(iterations), runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return nil
}

// ListRuns returns the most recent runs first, up to limit (0 means all).
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT run_id, seed, goal, strategy, swarm_size, config_json, started_at, finished_at,
		       iterations, best_score, best_x, best_y, best_z
		FROM runs
		ORDER BY started_at DESC, run_id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run                Run
			seed, started      int64
			finished           sql.NullInt64
			iterations         int64
			goalName, strategy string
			score, bx, by, bz  sql.NullFloat64
		)
		if err := rows.Scan(&run.ID, &seed, &goalName, &strategy, &run.SwarmSize, &run.ConfigJSON,
			&started, &finished, &iterations, &score, &bx, &by, &bz); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		//1.- Decode enum names and nullable summary columns back into the domain types.
		if err := run.Goal.UnmarshalText([]byte(goalName)); err != nil {

			return nil, fmt.Errorf("run %s: %w", run.ID, err)
		}
		if err := run.Strategy.UnmarshalText([]byte(strategy)); err != nil {
			return nil, fmt.Errorf("run %s: %w", run.ID, err)
		}
		run.Seed = uint64(seed)
		run.StartedAt = time.Unix(0, started).UTC()
		if finished.Valid {
			run.FinishedAt = time.Unix(0, finished.Int64).UTC()
		}
		run.Iterations = uint64(iterations)
		if score.Valid {
			run.HasBest = true
			run.Best = goal.NewPerformance(space.NewVector(bx.Float64, by.Float64, bz.Float64), score.Float64)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Improvements returns the improvements of a run in iteration order.
func (s *Store) Improvements(ctx context.Context, runID string) ([]Improvement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT iteration, score, x, y, z, recorded_at
		FROM improvements
		WHERE run_id = ?
		ORDER BY iteration, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list improvements: %w", err)
	}
	defer rows.Close()

	var out []Improvement
	for rows.Next() {
		var (
			iteration, recorded int64
			score, x, y, z      float64
		)
		if err := rows.Scan(&iteration, &score, &x, &y, &z, &recorded); err != nil {
			return nil, fmt.Errorf("scan improvement: %w", err)
		}
		out = append(out, Improvement{
			RunID:       runID,
			Iteration:   uint64(iteration),
			Performance: goal.NewPerformance(space.NewVector(x, y, z), score),
			RecordedAt:  time.Unix(0, recorded).UTC(),
		})
	}
	return out, rows.Err()
}
