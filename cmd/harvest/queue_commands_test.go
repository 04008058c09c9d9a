package main

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"harvest/internal/queue"
)

func TestCLIQueueCommandsRoundTrip(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "queue", "add", "doc-001")
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	requireContains(t, out, "Queued job")

	out, _, err = runCLI(t, env, "queue", "add", "doc-001")
	if err != nil {
		t.Fatalf("queue add duplicate: %v", err)
	}
	requireContains(t, out, "Already queued")

	out, _, err = runCLI(t, env, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "doc-001")
	requireContains(t, out, "pending")

	out, _, err = runCLI(t, env, "queue", "list", "--status", "completed")
	if err != nil {
		t.Fatalf("queue list filtered: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestCLIQueueRetryAndRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	job, err := env.store.Enqueue(ctx, queue.NewJob{Kind: queue.KindIndex, TargetRef: "doc-retry"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := env.store.ClaimNext(ctx, queue.KindIndex, "testhost")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := env.store.Fail(ctx, claimed.ID, "extract failed"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	out, _, err := runCLI(t, env, "queue", "retry", fmt.Sprint(job.ID))
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "queued for retry")

	refreshed, err := env.store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if refreshed.Status != queue.StatusPending {
		t.Fatalf("expected pending after retry, got %s", refreshed.Status)
	}

	out, _, err = runCLI(t, env, "queue", "remove", fmt.Sprint(job.ID))
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "Removed job")

	if _, err := env.store.GetByID(ctx, job.ID); err == nil {
		t.Fatal("expected job gone after remove")
	}
}

func TestCLIQueueRetryRejectsPendingJob(t *testing.T) {
	env := setupCLITestEnv(t)

	job, err := env.store.Enqueue(context.Background(), queue.NewJob{Kind: queue.KindIndex, TargetRef: "doc-pending"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	_, _, err = runCLI(t, env, "queue", "retry", fmt.Sprint(job.ID))
	if err == nil {
		t.Fatal("expected retry of a pending job to fail")
	}
	if !strings.Contains(err.Error(), "failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}
