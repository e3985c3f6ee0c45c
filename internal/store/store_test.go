package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"rdpso/simulator/internal/goal"
	"rdpso/simulator/internal/space"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	clock := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	//1.- Start a run with a seed above the int64 range.
	run := Run{
		ID:         "run-a",
		Seed:       1<<63 + 5,
		Goal:       goal.Ackley,
		Strategy:   goal.Maximize,
		SwarmSize:  5,
		ConfigJSON: `{"seed":5}`,
	}
	if err := s.StartRun(ctx, run); err != nil {
		t.Fatalf("start run: %v", err)
	}

	//2.- Record two improvements and finish.
	first := goal.NewPerformance(space.NewVector(1, 2, 3), 4.5)
	second := goal.NewPerformance(space.NewVector(0.5, 2, 0.25), 1.25)
	if err := s.RecordImprovement(ctx, "run-a", 3, first); err != nil {
		t.Fatalf("record first: %v", err)
	}
	clock = clock.Add(time.Second)
	if err := s.RecordImprovement(ctx, "run-a", 9, second); err != nil {
		t.Fatalf("record second: %v", err)
	}
	if err := s.FinishRun(ctx, "run-a", 20); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	want := []Run{{
		ID:         "run-a",
		Seed:       1<<63 + 5,
		Goal:       goal.Ackley,
		Strategy:   goal.Maximize,
		SwarmSize:  5,
		ConfigJSON: `{"seed":5}`,
		StartedAt:  time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt: clock,
		Iterations: 20,
		Best:       second,
		HasBest:    true,
	}}
	if diff := cmp.Diff(want, runs); diff != "" {
		t.Fatalf("runs mismatch (-want +got):\n%s", diff)
	}

	improvements, err := s.Improvements(ctx, "run-a")
	if err != nil {
		t.Fatalf("improvements: %v", err)
	}
	if len(improvements) != 2 || improvements[0].Iteration != 3 || improvements[1].Performance != second {
		t.Fatalf("unexpected improvements %+v", improvements)
	}
}

func TestListRunsNewestFirstWithLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		run := Run{ID: id, Goal: goal.Griewank, Strategy: goal.Minimize, SwarmSize: 1, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.StartRun(ctx, run); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}
	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Fatalf("unexpected order %+v", runs)
	}
	if runs[0].HasBest || !runs[0].FinishedAt.IsZero() {
		t.Fatalf("unfinished run should have no best or finish time: %+v", runs[0])
	}
}

func TestUnknownRunErrors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	perf := goal.NewPerformance(space.NewVector(0, 0, 0), 1)
	if err := s.RecordImprovement(ctx, "ghost", 1, perf); !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("expected ErrUnknownRun, got %v", err)
	}
	if err := s.FinishRun(ctx, "ghost", 1); !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("expected ErrUnknownRun, got %v", err)
	}
	if err := s.StartRun(ctx, Run{}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestDuplicateRunRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := Run{ID: "dup", Goal: goal.Ackley, Strategy: goal.Minimize, SwarmSize: 2}
	if err := s.StartRun(ctx, run); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := s.StartRun(ctx, run); err == nil {
		t.Fatal("expected duplicate run id to fail")
	}
}
