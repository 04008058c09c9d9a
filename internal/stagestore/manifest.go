package stagestore

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// ManifestStatus tracks one discoverable item's progress through the
// producer.
type ManifestStatus string

const (
	ManifestDiscovered ManifestStatus = "discovered"
	ManifestDownloaded ManifestStatus = "downloaded"
	ManifestSkipped    ManifestStatus = "skipped"
)

// ManifestEntry is one discoverable item. The manifest is append-only:
// existing entries only ever change status.
type ManifestEntry struct {
	ID           string         `json:"id"`
	URL          string         `json:"url"`
	Title        string         `json:"title,omitempty"`
	Status       ManifestStatus `json:"status"`
	Detail       string         `json:"detail,omitempty"`
	DiscoveredAt time.Time      `json:"discovered_at"`
	DownloadedAt *time.Time     `json:"downloaded_at,omitempty"`
}

// Manifest is the per-source record of discovered items, persisted under
// config/ so discovery and download can run in separate invocations.
type Manifest struct {
	Source  string          `json:"source"`
	Entries []ManifestEntry `json:"entries"`
}

// Merge appends entries whose IDs are not yet present and returns how many
// were added. Existing entries are never replaced.
func (m *Manifest) Merge(discovered []ManifestEntry) int {
	known := make(map[string]struct{}, len(m.Entries))
	for _, entry := range m.Entries {
		known[entry.ID] = struct{}{}
	}
	added := 0
	for _, entry := range discovered {
		if entry.ID == "" {
			continue
		}
		if _, ok := known[entry.ID]; ok {
			continue
		}
		if entry.Status == "" {
			entry.Status = ManifestDiscovered
		}
		if entry.DiscoveredAt.IsZero() {
			entry.DiscoveredAt = time.Now().UTC()
		}
		m.Entries = append(m.Entries, entry)
		known[entry.ID] = struct{}{}
		added++
	}
	return added
}

// Pending returns entries still awaiting download.
func (m *Manifest) Pending() []ManifestEntry {
	var pending []ManifestEntry
	for _, entry := range m.Entries {
		if entry.Status == ManifestDiscovered {
			pending = append(pending, entry)
		}
	}
	return pending
}

// MarkDownloaded transitions an entry to downloaded.
func (m *Manifest) MarkDownloaded(id string) bool {
	for i := range m.Entries {
		if m.Entries[i].ID == id {
			now := time.Now().UTC()
			m.Entries[i].Status = ManifestDownloaded
			m.Entries[i].DownloadedAt = &now
			m.Entries[i].Detail = ""
			return true
		}
	}
	return false
}

// MarkSkipped transitions an entry to skipped with a reason.
func (m *Manifest) MarkSkipped(id, detail string) bool {
	for i := range m.Entries {
		if m.Entries[i].ID == id {
			m.Entries[i].Status = ManifestSkipped
			m.Entries[i].Detail = detail
			return true
		}
	}
	return false
}

// ReadManifest loads a source's manifest without locking. A missing file
// yields an empty manifest.
func (s *Store) ReadManifest(source string) (*Manifest, error) {
	manifest := &Manifest{Source: source}
	err := readJSON(s.ManifestPath(source), manifest)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	manifest.Source = source
	return manifest, nil
}

// UpdateManifest applies fn to a source's manifest under an exclusive file
// lock and persists the result. Concurrent producer invocations on different
// machines serialize on the lock file next to the manifest.
func (s *Store) UpdateManifest(source string, fn func(*Manifest) error) (*Manifest, error) {
	if err := os.MkdirAll(s.ConfigDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	lock := flock.New(s.ManifestPath(source) + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock manifest for %s: %w", source, err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	manifest, err := s.ReadManifest(source)
	if err != nil {
		return nil, err
	}
	if err := fn(manifest); err != nil {
		return nil, err
	}
	if err := s.WriteJSON(s.ManifestPath(source), manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// DownloadLogEntry records one fetch outcome in the per-source download log.
type DownloadLogEntry struct {
	ID     string    `json:"id"`
	URL    string    `json:"url,omitempty"`
	Status string    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// AppendDownloadLog appends an outcome to the source's download log under the
// same lock discipline as the manifest.
func (s *Store) AppendDownloadLog(source string, entry DownloadLogEntry) error {
	if err := os.MkdirAll(s.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	path := s.DownloadLogPath(source)
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock download log for %s: %w", source, err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	var entries []DownloadLogEntry
	if err := readJSON(path, &entries); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	entries = append(entries, entry)
	return s.WriteJSON(path, entries)
}

// ReadDownloadLog loads a source's download log. A missing file yields nil.
func (s *Store) ReadDownloadLog(source string) ([]DownloadLogEntry, error) {
	var entries []DownloadLogEntry
	if err := readJSON(s.DownloadLogPath(source), &entries); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return entries, nil
}
