package processor_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"harvest/internal/config"
	"harvest/internal/processor"
	"harvest/internal/services"
	"harvest/internal/stagestore"
	"harvest/internal/testsupport"
)

type stubEmbedder struct {
	dimension int
	calls     int
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
	s.calls++
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

func writeRaw(t *testing.T, store *stagestore.Store, source string, record *stagestore.RawRecord) string {
	t.Helper()
	path := filepath.Join(store.RawDir(source), record.Filename)
	if err := store.WriteJSON(path, record); err != nil {
		t.Fatalf("write raw record: %v", err)
	}
	return path
}

func newProcessor(t *testing.T, embedder *stubEmbedder) (*processor.Processor, *stagestore.Store) {
	t.Helper()
	store := stagestore.NewAt(t.TempDir())
	proc := processor.New(store, embedder, config.Processing{}, nil)
	return proc, store
}

func TestSweepProducesReadyPackage(t *testing.T) {
	embedder := &stubEmbedder{dimension: 4}
	proc, store := newProcessor(t, embedder)

	writeRaw(t, store, "gracebooks", &stagestore.RawRecord{
		Text:        "Faith   comes by  hearing.",
		Filename:    "romans-10.json",
		SourceName:  "gracebooks",
		ContentType: "text",
		Collection:  "romans",
	})

	result, err := proc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Processed != 1 || result.Errors != 0 || result.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	ready, err := store.ListNew(store.ReadyDir())
	if err != nil {
		t.Fatalf("list ready: %v", err)
	}
	if len(ready) != 1 {
		t.Fatalf("expected one package, got %d", len(ready))
	}

	pkg, err := store.ReadReadyPackage(ready[0].Path)
	if err != nil {
		t.Fatalf("read package: %v", err)
	}
	if pkg.PackageID == "" || pkg.Fingerprint == "" {
		t.Fatalf("package missing identity: %#v", pkg)
	}
	if pkg.EmbeddingModel != "stub-model" {
		t.Fatalf("unexpected embedding model %q", pkg.EmbeddingModel)
	}
	if len(pkg.Chunks) != 1 || pkg.Chunks[0].Content != "Faith comes by hearing." {
		t.Fatalf("unexpected chunks: %#v", pkg.Chunks)
	}
	if len(pkg.Chunks[0].Embedding) != 4 {
		t.Fatalf("unexpected embedding length %d", len(pkg.Chunks[0].Embedding))
	}

	// Consumed record retires to processed/.
	processed, err := store.ListNew(store.ProcessedDir())
	if err != nil {
		t.Fatalf("list processed: %v", err)
	}
	if len(processed) != 1 || processed[0].Name != "romans-10.json" {
		t.Fatalf("raw record not retired: %#v", processed)
	}
	raw, err := store.ListNew(store.RawDir("gracebooks"))
	if err != nil {
		t.Fatalf("list raw: %v", err)
	}
	if len(raw) != 0 {
		t.Fatalf("raw record still present: %#v", raw)
	}
}

func TestSweepIsolatesMalformedRecordAndContinues(t *testing.T) {
	embedder := &stubEmbedder{dimension: 4}
	proc, store := newProcessor(t, embedder)

	testsupport.WriteFile(t, filepath.Join(store.RawDir("gracebooks"), "broken.json"), []byte("{not json"))
	writeRaw(t, store, "gracebooks", &stagestore.RawRecord{
		Text:        "",
		Filename:    "empty.json",
		SourceName:  "gracebooks",
		ContentType: "text",
	})
	writeRaw(t, store, "gracebooks", &stagestore.RawRecord{
		Text:        "Good content survives its bad neighbors.",
		Filename:    "good.json",
		SourceName:  "gracebooks",
		ContentType: "text",
	})

	result, err := proc.SweepSource(context.Background(), "gracebooks")
	if err != nil {
		t.Fatalf("SweepSource failed: %v", err)
	}
	if result.Processed != 1 || result.Errors != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	isolated, err := store.ListNew(store.ErrorDir("gracebooks"))
	if err != nil {
		t.Fatalf("list errors: %v", err)
	}
	if len(isolated) != 2 {
		t.Fatalf("expected 2 isolated records, got %#v", isolated)
	}
}

func TestSweepSkipsAudioAwaitingTranscript(t *testing.T) {
	embedder := &stubEmbedder{dimension: 4}
	proc, store := newProcessor(t, embedder)

	path := writeRaw(t, store, "sermonaudio", &stagestore.RawRecord{
		Filename:    "sermon-123.json",
		SourceName:  "sermonaudio",
		ContentType: "audio",
	})
	writeRaw(t, store, "sermonaudio", &stagestore.RawRecord{
		Transcript:  "Now the transcribed words are ready for processing.",
		Filename:    "sermon-124.json",
		SourceName:  "sermonaudio",
		ContentType: "audio",
	})

	result, err := proc.SweepSource(context.Background(), "sermonaudio")
	if err != nil {
		t.Fatalf("SweepSource failed: %v", err)
	}
	if result.Skipped != 1 || result.Processed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// The untranscribed record stays in raw/ untouched.
	raw, err := store.ListNew(store.RawDir("sermonaudio"))
	if err != nil {
		t.Fatalf("list raw: %v", err)
	}
	if len(raw) != 1 || raw[0].Path != path {
		t.Fatalf("unexpected raw contents: %#v", raw)
	}
}

func TestSweepAbortsOnTransientEmbedderFailure(t *testing.T) {
	embedder := &stubEmbedder{dimension: 4, err: services.Wrap(services.ErrTransient, "embedding", "embed", "backend down", nil)}
	proc, store := newProcessor(t, embedder)

	writeRaw(t, store, "gracebooks", &stagestore.RawRecord{
		Text:        "Some text.",
		Filename:    "a.json",
		SourceName:  "gracebooks",
		ContentType: "text",
	})

	_, err := proc.SweepSource(context.Background(), "gracebooks")
	if err == nil || !services.IsTransient(err) {
		t.Fatalf("expected transient abort, got %v", err)
	}

	// The record stays in raw/ for the next sweep.
	raw, listErr := store.ListNew(store.RawDir("gracebooks"))
	if listErr != nil {
		t.Fatalf("list raw: %v", listErr)
	}
	if len(raw) != 1 {
		t.Fatalf("record not preserved: %#v", raw)
	}
}

func TestSweepIsolatesOnContentEmbedderFailure(t *testing.T) {
	embedder := &stubEmbedder{dimension: 4, err: errors.New("input too long")}
	proc, store := newProcessor(t, embedder)

	writeRaw(t, store, "gracebooks", &stagestore.RawRecord{
		Text:        strings.Repeat("word ", 10),
		Filename:    "a.json",
		SourceName:  "gracebooks",
		ContentType: "text",
	})

	result, err := proc.SweepSource(context.Background(), "gracebooks")
	if err != nil {
		t.Fatalf("SweepSource failed: %v", err)
	}
	if result.Errors != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}
