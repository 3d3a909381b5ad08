package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestIntervalSchedulerRunsImmediatelyAndOnTicks(t *testing.T) {
	t.Parallel()

	var runs atomic.Int64
	sched := NewIntervalScheduler(20 * time.Millisecond)

	if err := sched.Start(context.Background(), func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop(context.Background())

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 runs, got %d", runs.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestIntervalSchedulerStop(t *testing.T) {
	t.Parallel()

	var runs atomic.Int64
	sched := NewIntervalScheduler(10 * time.Millisecond)

	if err := sched.Start(context.Background(), func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	settled := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if after := runs.Load(); after > settled+1 {
		t.Errorf("expected no further runs after stop, went from %d to %d", settled, after)
	}

	if err := sched.Stop(context.Background()); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
}

func TestIntervalSchedulerDoubleStart(t *testing.T) {
	t.Parallel()

	var runs atomic.Int64
	sched := NewIntervalScheduler(time.Hour)

	if err := sched.Start(context.Background(), func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sched.Start(context.Background(), func(time.Time) { runs.Add(100) }); err != nil {
		t.Fatalf("second start: %v", err)
	}
	defer sched.Stop(context.Background())

	deadline := time.After(time.Second)
	for runs.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("expected the first job to run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := runs.Load(); got != 1 {
		t.Errorf("expected only the first job to run once, got %d", got)
	}
}

func TestIntervalSchedulerNilJob(t *testing.T) {
	t.Parallel()

	sched := NewIntervalScheduler(time.Hour)
	if err := sched.Start(context.Background(), nil); err != nil {
		t.Fatalf("nil job should be a no-op, got %v", err)
	}
	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("stop after nil job: %v", err)
	}
}
