package library_test

import (
	"context"
	"errors"
	"testing"

	"harvest/internal/library"
	"harvest/internal/testsupport"
)

func openStore(t *testing.T) *library.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateFileRejectsDuplicateFingerprint(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	created, err := store.CreateFile(ctx, &library.File{
		Filename:    "sermon.txt",
		Fingerprint: "fp-1",
		SourceType:  library.SourceHarvest,
	})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected file ID to be assigned")
	}

	if _, err := store.CreateFile(ctx, &library.File{
		Filename:    "sermon-copy.txt",
		Fingerprint: "fp-1",
	}); !errors.Is(err, library.ErrDuplicateFingerprint) {
		t.Fatalf("expected ErrDuplicateFingerprint, got %v", err)
	}

	found, err := store.FindByFingerprint(ctx, "fp-1")
	if err != nil {
		t.Fatalf("FindByFingerprint failed: %v", err)
	}
	if found == nil || found.ID != created.ID {
		t.Fatalf("expected to find created file, got %#v", found)
	}
}

func TestReplaceChunksIsAtomicSwap(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	file, err := store.CreateFile(ctx, &library.File{Filename: "notes.md", Fingerprint: "fp-2"})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}

	first := []library.Chunk{
		{Content: "alpha", EmbeddingJSON: "[0.1]", Model: "test-model"},
		{Content: "beta", EmbeddingJSON: "[0.2]", Model: "test-model"},
	}
	if err := store.ReplaceChunks(ctx, file.ID, first); err != nil {
		t.Fatalf("ReplaceChunks failed: %v", err)
	}

	second := []library.Chunk{{Content: "gamma", Model: "test-model"}}
	if err := store.ReplaceChunks(ctx, file.ID, second); err != nil {
		t.Fatalf("second ReplaceChunks failed: %v", err)
	}

	chunks, err := store.Chunks(ctx, file.ID)
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "gamma" || chunks[0].ChunkIndex != 0 {
		t.Fatalf("unexpected chunks after swap: %#v", chunks)
	}
}

func TestMarkIndexedAndCandidates(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	a, err := store.CreateFile(ctx, &library.File{Filename: "a.txt", Fingerprint: "fp-a"})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if _, err := store.CreateFile(ctx, &library.File{Filename: "b.txt", Fingerprint: "fp-b"}); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}

	if err := store.MarkIndexed(ctx, a.ID); err != nil {
		t.Fatalf("MarkIndexed failed: %v", err)
	}
	if err := store.MarkIndexed(ctx, a.ID+100); !errors.Is(err, library.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}

	unindexed, err := store.ListUnindexed(ctx)
	if err != nil {
		t.Fatalf("ListUnindexed failed: %v", err)
	}
	if len(unindexed) != 1 || unindexed[0].Filename != "b.txt" {
		t.Fatalf("unexpected unindexed set: %#v", unindexed)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts.Files != 2 || counts.Indexed != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}
