package transcription_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"harvest/internal/config"
	"harvest/internal/queue"
	"harvest/internal/stagestore"
	"harvest/internal/testsupport"
	"harvest/internal/transcription"
)

func newWorkerFixture(t *testing.T) (*transcription.Worker, *queue.Store, *stagestore.Store, *config.Config, *transcription.Service) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	store := stagestore.New(cfg)

	service := transcription.NewService(cfg.Transcription)
	worker := transcription.NewWorker(q, store, service, cfg, nil)
	return worker, q, store, cfg, service
}

func TestProcessNextTranscribesAndCompletes(t *testing.T) {
	worker, q, store, _, service := newWorkerFixture(t)
	ctx := context.Background()

	audioRel := filepath.Join("raw", "sermonaudio", "sermon-123.mp3")
	testsupport.WriteFile(t, filepath.Join(store.Root(), audioRel), []byte("fake-audio"))

	recordRel := "raw/sermonaudio/sermon-123.json"
	record := &stagestore.RawRecord{
		Filename:    "sermon-123.json",
		SourceName:  "sermonaudio",
		ContentType: "audio",
		Metadata:    map[string]string{transcription.MediaPathKey: "raw/sermonaudio/sermon-123.mp3"},
	}
	if err := store.WriteJSON(filepath.Join(store.Root(), filepath.FromSlash(recordRel)), record); err != nil {
		t.Fatalf("write record: %v", err)
	}

	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		outputDir := ""
		for i, arg := range args {
			if arg == "--output_dir" && i+1 < len(args) {
				outputDir = args[i+1]
			}
		}
		return os.WriteFile(filepath.Join(outputDir, "sermon-123.txt"), []byte("He opened the scriptures to us."), 0o644)
	})

	job := testsupport.Enqueue(t, q, queue.KindTranscribe, recordRel)

	worked, err := worker.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("ProcessNext failed: %v", err)
	}
	if !worked {
		t.Fatal("expected a job to be processed")
	}

	updated, err := q.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", updated.Status, updated.ErrorMessage)
	}

	reloaded, err := store.ReadRawRecord(filepath.Join(store.Root(), filepath.FromSlash(recordRel)))
	if err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if reloaded.Transcript != "He opened the scriptures to us." {
		t.Fatalf("transcript not written: %#v", reloaded)
	}

	// Queue is drained.
	worked, err = worker.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("second ProcessNext failed: %v", err)
	}
	if worked {
		t.Fatal("expected empty queue")
	}
}

func TestProcessNextFailsJobOnMissingMedia(t *testing.T) {
	worker, q, store, _, _ := newWorkerFixture(t)
	ctx := context.Background()

	recordRel := "raw/sermonaudio/sermon-9.json"
	record := &stagestore.RawRecord{
		Filename:    "sermon-9.json",
		SourceName:  "sermonaudio",
		ContentType: "audio",
	}
	if err := store.WriteJSON(filepath.Join(store.Root(), filepath.FromSlash(recordRel)), record); err != nil {
		t.Fatalf("write record: %v", err)
	}

	job := testsupport.Enqueue(t, q, queue.KindTranscribe, recordRel)

	worked, err := worker.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("ProcessNext failed: %v", err)
	}
	if !worked {
		t.Fatal("expected a job to be claimed")
	}

	updated, err := q.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", updated.Status)
	}
	if updated.ErrorMessage == "" || updated.AttemptCount != 1 {
		t.Fatalf("failure not recorded: %#v", updated)
	}
}
