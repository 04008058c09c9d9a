package api_test

import (
	"context"
	"testing"

	"harvest/internal/api"
	"harvest/internal/queue"
	"harvest/internal/testsupport"
)

func TestEnqueueReportsDuplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	svc := api.NewQueueService(store)
	ctx := context.Background()

	first, err := svc.Enqueue(ctx, api.EnqueueRequest{TargetRef: "42", Kind: "index"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if first.Status != "queued" || first.JobID == 0 {
		t.Fatalf("first enqueue = %+v", first)
	}

	second, err := svc.Enqueue(ctx, api.EnqueueRequest{TargetRef: "42", Kind: "index"})
	if err != nil {
		t.Fatalf("duplicate enqueue: %v", err)
	}
	if second.Status != "duplicate" || second.JobID != first.JobID {
		t.Fatalf("second enqueue = %+v, want duplicate of %d", second, first.JobID)
	}
}

func TestEnqueueValidatesInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	svc := api.NewQueueService(store)
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, api.EnqueueRequest{TargetRef: "  "}); err == nil {
		t.Fatal("expected error for empty target")
	}
	if _, err := svc.Enqueue(ctx, api.EnqueueRequest{TargetRef: "x", Kind: "rip"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestListFiltersByKindAndStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	svc := api.NewQueueService(store)
	ctx := context.Background()

	testsupport.Enqueue(t, store, queue.KindTranscribe, "raw/sermonaudio/a.json")
	testsupport.Enqueue(t, store, queue.KindIndex, "7")
	testsupport.Enqueue(t, store, queue.KindIndex, "8")

	all, err := svc.List(ctx, "", nil)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all.Jobs) != 3 {
		t.Fatalf("all jobs = %d", len(all.Jobs))
	}
	if all.Stats["index"].Pending != 2 || all.Stats["transcribe"].Pending != 1 {
		t.Fatalf("stats = %+v", all.Stats)
	}

	indexOnly, err := svc.List(ctx, "index", []string{"pending"})
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(indexOnly.Jobs) != 2 {
		t.Fatalf("index jobs = %d", len(indexOnly.Jobs))
	}

	if _, err := svc.List(ctx, "", []string{"bogus"}); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestRetryRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	svc := api.NewQueueService(store)
	ctx := context.Background()

	job := testsupport.Enqueue(t, store, queue.KindIndex, "9")
	claimed, err := store.ClaimNext(ctx, queue.KindIndex, "testhost")
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Fail(ctx, claimed.ID, "extract failed"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	retried, err := svc.Retry(ctx, job.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != string(queue.StatusPending) {
		t.Fatalf("retried status = %s", retried.Status)
	}
	if retried.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want preserved 1", retried.AttemptCount)
	}
}
