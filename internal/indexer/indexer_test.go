package indexer_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"harvest/internal/config"
	"harvest/internal/indexer"
	"harvest/internal/library"
	"harvest/internal/queue"
	"harvest/internal/services"
	"harvest/internal/testsupport"
)

type stubEmbedder struct {
	dimension int
	err       error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, s.dimension)
	}
	return vectors, nil
}

func (s *stubEmbedder) Model() string  { return "stub-model" }
func (s *stubEmbedder) Dimension() int { return s.dimension }

type fixture struct {
	indexer *indexer.Indexer
	queue   *queue.Store
	catalog *library.Store
	cfg     *config.Config
	baseDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	catalog, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })

	return &fixture{
		indexer: indexer.New(q, catalog, &stubEmbedder{dimension: 3}, cfg, nil),
		queue:   q,
		catalog: catalog,
		cfg:     cfg,
		baseDir: t.TempDir(),
	}
}

func (f *fixture) catalogTextFile(t *testing.T, name, content string) *library.File {
	t.Helper()
	path := filepath.Join(f.baseDir, name)
	testsupport.WriteFile(t, path, []byte(content))
	file, err := f.catalog.CreateFile(context.Background(), &library.File{
		Filename:    name,
		FilePath:    path,
		MimeType:    "text/plain",
		Fingerprint: "fp-" + name,
	})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	return file
}

func (f *fixture) enqueueIndex(t *testing.T, file *library.File) *queue.Job {
	t.Helper()
	return testsupport.Enqueue(t, f.queue, queue.KindIndex, strconv.FormatInt(file.ID, 10))
}

func TestProcessBatchIndexesFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file := f.catalogTextFile(t, "study.txt", "A reading on the psalms and their music.")
	f.enqueueIndex(t, file)

	result, err := f.indexer.ProcessBatch(ctx, 10)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if result.Processed != 1 || result.Succeeded != 1 || result.Remaining != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	updated, err := f.catalog.GetByID(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !updated.Indexed {
		t.Fatal("file not marked indexed")
	}
	chunks, err := f.catalog.Chunks(ctx, file.ID)
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	if len(chunks) == 0 || chunks[0].Model != "stub-model" || chunks[0].EmbeddingJSON == "" {
		t.Fatalf("unexpected chunks: %#v", chunks)
	}
}

func TestProcessBatchReportsRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const total = 7
	for i := 0; i < total; i++ {
		file := f.catalogTextFile(t, fmt.Sprintf("doc-%d.txt", i), fmt.Sprintf("Document number %d has text.", i))
		f.enqueueIndex(t, file)
	}

	// Poll-until-drained: batches of 3 over 7 jobs take 3 rounds.
	rounds := 0
	for {
		result, err := f.indexer.ProcessBatch(ctx, 3)
		if err != nil {
			t.Fatalf("ProcessBatch failed: %v", err)
		}
		rounds++
		if result.Remaining == 0 {
			break
		}
		if rounds > total {
			t.Fatal("drain loop did not terminate")
		}
	}
	if rounds != 3 {
		t.Fatalf("expected 3 rounds, got %d", rounds)
	}

	stats, err := f.queue.Stats(ctx, queue.KindIndex)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Completed != total {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestProcessBatchFailsBadJobAndContinues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Job pointing at a file with no content on disk.
	missing, err := f.catalog.CreateFile(ctx, &library.File{
		Filename:    "ghost.txt",
		FilePath:    filepath.Join(f.baseDir, "ghost.txt"),
		MimeType:    "text/plain",
		Fingerprint: "fp-ghost",
	})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	bad := f.enqueueIndex(t, missing)

	good := f.catalogTextFile(t, "real.txt", "Actual content to index.")
	f.enqueueIndex(t, good)

	result, err := f.indexer.ProcessBatch(ctx, 10)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if result.Processed != 2 || result.Succeeded != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	badJob, err := f.queue.GetByID(ctx, bad.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if badJob.Status != queue.StatusFailed || badJob.ErrorMessage == "" {
		t.Fatalf("bad job not failed: %#v", badJob)
	}
}

func TestProcessBatchReleasesJobOnTransientOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stub := &stubEmbedder{
		dimension: 3,
		err:       services.Wrap(services.ErrTransient, "indexer", "embed", "connection refused", nil),
	}
	ix := indexer.New(f.queue, f.catalog, stub, f.cfg, nil)

	file := f.catalogTextFile(t, "outage.txt", "Text waiting on the embedding backend.")
	job := f.enqueueIndex(t, file)

	result, err := ix.ProcessBatch(ctx, 10)
	if err == nil || !services.IsTransient(err) {
		t.Fatalf("expected transient batch error, got %v", err)
	}
	if result.Processed != 0 || result.Succeeded != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	released, err := f.queue.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if released.Status != queue.StatusPending {
		t.Fatalf("expected job back to pending after outage, got %s", released.Status)
	}
	if released.AttemptCount != 0 {
		t.Fatalf("outage must not burn attempts, got %d", released.AttemptCount)
	}

	// Backend recovers; the same job indexes on the next batch.
	stub.err = nil
	result, err = ix.ProcessBatch(ctx, 10)
	if err != nil {
		t.Fatalf("ProcessBatch after recovery: %v", err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("unexpected result after recovery: %+v", result)
	}
	done, err := f.queue.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if done.Status != queue.StatusCompleted {
		t.Fatalf("expected completed after recovery, got %s", done.Status)
	}
}

type gatedEmbedder struct {
	stubEmbedder
	gate chan struct{}
}

func (g *gatedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	<-g.gate
	return g.stubEmbedder.EmbedBatch(ctx, texts)
}

func TestProcessBatchHeartbeatsThroughReclaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cfg.Workflow.HeartbeatInterval = 1
	gated := &gatedEmbedder{stubEmbedder: stubEmbedder{dimension: 3}, gate: make(chan struct{})}
	ix := indexer.New(f.queue, f.catalog, gated, f.cfg, nil)

	file := f.catalogTextFile(t, "slow.txt", "A document whose embedding outlives the claim stamp.")
	job := f.enqueueIndex(t, file)

	type outcome struct {
		result indexer.BatchResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := ix.ProcessBatch(ctx, 1)
		done <- outcome{result, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		stats, err := f.queue.Stats(ctx, queue.KindIndex)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Processing == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never entered processing")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Outlive the claim stamp by well over the reclaim cutoff; only the
	// heartbeat keeps the lease fresh.
	time.Sleep(2500 * time.Millisecond)
	reclaimed, err := f.queue.ReclaimStale(ctx, time.Now().Add(-2*time.Second))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("heartbeating job was reclaimed (%d)", reclaimed)
	}

	close(gated.gate)
	out := <-done
	if out.err != nil {
		t.Fatalf("ProcessBatch failed: %v", out.err)
	}
	if out.result.Succeeded != 1 {
		t.Fatalf("unexpected result: %+v", out.result)
	}
	finished, err := f.queue.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if finished.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", finished.Status)
	}
}

func TestCandidatesExcludesQueuedFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	queued := f.catalogTextFile(t, "queued.txt", "text")
	f.enqueueIndex(t, queued)
	f.catalogTextFile(t, "waiting.txt", "text")

	candidates, err := f.indexer.Candidates(ctx)
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Filename != "waiting.txt" {
		t.Fatalf("unexpected candidates: %#v", candidates)
	}

	added, err := f.indexer.EnqueueAll(ctx, "custom-model")
	if err != nil {
		t.Fatalf("EnqueueAll failed: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 added, got %d", added)
	}

	// Everything queued now.
	candidates, err = f.indexer.Candidates(ctx)
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %#v", candidates)
	}
}
