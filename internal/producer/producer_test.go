package producer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"harvest/internal/config"
	"harvest/internal/stagestore"
)

type fakeSource struct {
	name       string
	entries    []stagestore.ManifestEntry
	failIDs    map[string]bool
	fetchTimes []time.Time
	fetched    []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Discover(ctx context.Context) ([]stagestore.ManifestEntry, error) {
	return f.entries, nil
}

func (f *fakeSource) Fetch(ctx context.Context, entry stagestore.ManifestEntry) (*stagestore.RawRecord, error) {
	f.fetchTimes = append(f.fetchTimes, time.Now())
	f.fetched = append(f.fetched, entry.ID)
	if f.failIDs[entry.ID] {
		return nil, errors.New("http 404")
	}
	return &stagestore.RawRecord{
		Text:       "content for " + entry.ID,
		Filename:   entry.ID + ".json",
		SourceName: f.name,
		URL:        entry.URL,
	}, nil
}

func entriesFor(n int) []stagestore.ManifestEntry {
	out := make([]stagestore.ManifestEntry, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("item-%03d", i)
		out = append(out, stagestore.ManifestEntry{ID: id, URL: "https://example.test/" + id})
	}
	return out
}

func TestRunDownloadsDiscoveredEntries(t *testing.T) {
	store := stagestore.NewAt(t.TempDir())
	src := &fakeSource{name: "sermonaudio", entries: entriesFor(3)}
	runner := NewRunner(store, nil)

	result, err := runner.Run(context.Background(), src, config.Source{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Discovered != 3 || result.Downloaded != 3 || result.Skipped != 0 {
		t.Fatalf("result = %+v", result)
	}

	for _, entry := range src.entries {
		path := filepath.Join(store.RawDir("sermonaudio"), entry.ID+".json")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("raw record %s missing: %v", entry.ID, err)
		}
	}

	manifest, err := store.ReadManifest("sermonaudio")
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	for _, entry := range manifest.Entries {
		if entry.Status != stagestore.ManifestDownloaded {
			t.Fatalf("entry %s status = %s", entry.ID, entry.Status)
		}
		if entry.DownloadedAt == nil {
			t.Fatalf("entry %s missing downloaded_at", entry.ID)
		}
	}
}

func TestRunSkipsFailedFetchAndContinues(t *testing.T) {
	store := stagestore.NewAt(t.TempDir())
	src := &fakeSource{
		name:    "openlibrary",
		entries: entriesFor(3),
		failIDs: map[string]bool{"item-001": true},
	}
	runner := NewRunner(store, nil)

	result, err := runner.Run(context.Background(), src, config.Source{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Downloaded != 2 || result.Skipped != 1 {
		t.Fatalf("result = %+v", result)
	}

	manifest, err := store.ReadManifest("openlibrary")
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	for _, entry := range manifest.Entries {
		switch entry.ID {
		case "item-001":
			if entry.Status != stagestore.ManifestSkipped {
				t.Fatalf("failed entry status = %s", entry.Status)
			}
			if entry.Detail == "" {
				t.Fatal("skipped entry has no detail")
			}
		default:
			if entry.Status != stagestore.ManifestDownloaded {
				t.Fatalf("entry %s status = %s", entry.ID, entry.Status)
			}
		}
	}

	log, err := store.ReadDownloadLog("openlibrary")
	if err != nil {
		t.Fatalf("read download log: %v", err)
	}
	if len(log) != 3 {
		t.Fatalf("download log entries = %d, want 3", len(log))
	}
}

func TestRunNeverRefetchesDownloadedEntries(t *testing.T) {
	store := stagestore.NewAt(t.TempDir())
	src := &fakeSource{name: "sermonaudio", entries: entriesFor(2)}
	runner := NewRunner(store, nil)

	if _, err := runner.Run(context.Background(), src, config.Source{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstFetches := len(src.fetched)

	// Second run rediscovers the same items plus one new one.
	src.entries = entriesFor(3)
	result, err := runner.Run(context.Background(), src, config.Source{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Discovered != 1 {
		t.Fatalf("second run discovered = %d, want 1", result.Discovered)
	}
	if got := len(src.fetched) - firstFetches; got != 1 {
		t.Fatalf("second run fetched %d entries, want 1", got)
	}
	if src.fetched[len(src.fetched)-1] != "item-002" {
		t.Fatalf("second run fetched %s", src.fetched[len(src.fetched)-1])
	}
}

func TestRunHonorsMinRequestInterval(t *testing.T) {
	store := stagestore.NewAt(t.TempDir())
	src := &fakeSource{name: "sermonaudio", entries: entriesFor(3)}
	runner := NewRunner(store, nil)

	const intervalMS = 20
	if _, err := runner.Run(context.Background(), src, config.Source{MinRequestIntervalMS: intervalMS}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(src.fetchTimes) != 3 {
		t.Fatalf("fetches = %d", len(src.fetchTimes))
	}
	for i := 1; i < len(src.fetchTimes); i++ {
		gap := src.fetchTimes[i].Sub(src.fetchTimes[i-1])
		if gap < intervalMS*time.Millisecond {
			t.Fatalf("gap %d = %v, want >= %dms", i, gap, intervalMS)
		}
	}
}

func TestRunCancellationStopsDownloads(t *testing.T) {
	store := stagestore.NewAt(t.TempDir())
	src := &fakeSource{name: "sermonaudio", entries: entriesFor(50)}
	runner := NewRunner(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := runner.Run(ctx, src, config.Source{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
