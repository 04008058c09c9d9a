package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"harvest/internal/services"
)

// backlog fakes a queue that hands out at most count items per call.
type backlog struct {
	remaining int
	calls     int
	failOn    map[int]error
}

func (b *backlog) process(ctx context.Context, count int) (int, int, error) {
	b.calls++
	if err := b.failOn[b.calls]; err != nil {
		return 0, b.remaining, err
	}
	processed := count
	if processed > b.remaining {
		processed = b.remaining
	}
	b.remaining -= processed
	return processed, b.remaining, nil
}

func TestDrainStopsWhenBacklogEmpty(t *testing.T) {
	b := &backlog{remaining: 237}
	d := &Drainer{Process: b.process, BatchSize: 50, RetryBudget: 3}

	result, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if result.Batches != 5 {
		t.Fatalf("batches = %d, want 5", result.Batches)
	}
	if result.Processed != 237 {
		t.Fatalf("processed = %d, want 237", result.Processed)
	}
	if b.remaining != 0 {
		t.Fatalf("remaining = %d", b.remaining)
	}
}

func TestDrainRetriesTransientErrors(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "indexer", "embed", "backend unavailable", errors.New("connection refused"))
	b := &backlog{
		remaining: 100,
		failOn:    map[int]error{2: transient, 3: transient},
	}
	d := &Drainer{Process: b.process, BatchSize: 50, RetryBudget: 3}

	result, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if result.Processed != 100 {
		t.Fatalf("processed = %d", result.Processed)
	}
	// One clean batch, two transient failures, two more clean batches.
	if b.calls != 5 {
		t.Fatalf("calls = %d, want 5", b.calls)
	}
}

func TestDrainExhaustsRetryBudget(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "indexer", "embed", "backend unavailable", nil)
	b := &backlog{
		remaining: 100,
		failOn:    map[int]error{1: transient, 2: transient, 3: transient},
	}
	d := &Drainer{Process: b.process, BatchSize: 50, RetryBudget: 2}

	_, err := d.Drain(context.Background())
	if err == nil {
		t.Fatal("expected budget exhaustion error")
	}
	if !strings.Contains(err.Error(), "retry budget exhausted") {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("err should wrap the transient cause: %v", err)
	}
}

func TestDrainAbortsOnNonTransientError(t *testing.T) {
	fatal := errors.New("disk corrupt")
	b := &backlog{remaining: 100, failOn: map[int]error{1: fatal}}
	d := &Drainer{Process: b.process, BatchSize: 50, RetryBudget: 5}

	_, err := d.Drain(context.Background())
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want %v", err, fatal)
	}
	if b.calls != 1 {
		t.Fatalf("calls = %d, want 1", b.calls)
	}
}

func TestDrainProgressResetsBudget(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "indexer", "embed", "backend unavailable", nil)
	// Budget 1: each failure must be followed by progress or the drain dies.
	b := &backlog{
		remaining: 150,
		failOn:    map[int]error{2: transient, 4: transient},
	}
	d := &Drainer{Process: b.process, BatchSize: 50, RetryBudget: 1}

	result, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if result.Processed != 150 {
		t.Fatalf("processed = %d", result.Processed)
	}
}
