package stagestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"harvest/internal/config"
)

// Store exposes the fixed stage layout rooted at the shared durable store.
// Directories are the coordination medium between machines: each stage
// directory has exactly one writing component and file presence is the
// handoff signal.
type Store struct {
	root string
}

// New returns a Store rooted at the configured shared store directory.
func New(cfg *config.Config) *Store {
	return &Store{root: cfg.Paths.StoreDir}
}

// NewAt returns a Store rooted at an explicit path.
func NewAt(root string) *Store {
	return &Store{root: root}
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// RawDir returns raw/{source}, the producer's output directory.
func (s *Store) RawDir(source string) string {
	return filepath.Join(s.root, "raw", source)
}

// ProcessedDir returns processed/, where consumed raw records rest.
func (s *Store) ProcessedDir() string {
	return filepath.Join(s.root, "processed")
}

// ReadyDir returns ready/, the processor's output directory.
func (s *Store) ReadyDir() string {
	return filepath.Join(s.root, "ready")
}

// ImportedDir returns ready/imported, where packages move after import.
func (s *Store) ImportedDir() string {
	return filepath.Join(s.root, "ready", "imported")
}

// ErrorDir returns errors/{source}, where malformed records are isolated.
func (s *Store) ErrorDir(source string) string {
	return filepath.Join(s.root, "errors", source)
}

// ConfigDir returns config/, holding per-source manifests and download logs.
func (s *Store) ConfigDir() string {
	return filepath.Join(s.root, "config")
}

// LogDir returns logs/{host}, each machine's log directory.
func (s *Store) LogDir(host string) string {
	return filepath.Join(s.root, "logs", host)
}

// ManifestPath returns config/{source}-manifest.json.
func (s *Store) ManifestPath(source string) string {
	return filepath.Join(s.ConfigDir(), source+"-manifest.json")
}

// DownloadLogPath returns config/{source}-download-log.json.
func (s *Store) DownloadLogPath(source string) string {
	return filepath.Join(s.ConfigDir(), source+"-download-log.json")
}

// EnsureLayout creates the source-independent stage directories.
func (s *Store) EnsureLayout() error {
	dirs := []string{
		filepath.Join(s.root, "raw"),
		s.ProcessedDir(),
		s.ReadyDir(),
		s.ImportedDir(),
		filepath.Join(s.root, "errors"),
		s.ConfigDir(),
		filepath.Join(s.root, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create stage dir %s: %w", dir, err)
		}
	}
	return nil
}

// Sources lists the source directories present under raw/.
func (s *Store) Sources() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "raw"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read raw dir: %w", err)
	}
	var sources []string
	for _, de := range entries {
		if de.IsDir() {
			sources = append(sources, de.Name())
		}
	}
	sort.Strings(sources)
	return sources, nil
}

// Entry describes one JSON file awaiting the next stage.
type Entry struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// ListNew returns the JSON files directly inside dir, sorted by name.
// Subdirectories and in-flight temp files are skipped; a missing directory
// lists as empty since another machine may not have produced into it yet.
func (s *Store) ListNew(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stage dir %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    name,
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// ReadRawRecord loads and decodes a raw record file.
func (s *Store) ReadRawRecord(path string) (*RawRecord, error) {
	var record RawRecord
	if err := readJSON(path, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ReadReadyPackage loads and decodes a ready package file.
func (s *Store) ReadReadyPackage(path string) (*ReadyPackage, error) {
	var pkg ReadyPackage
	if err := readJSON(path, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// WriteJSON writes value as indented JSON at path via a temp file and rename,
// so a reader on another machine never observes a partial record.
func (s *Store) WriteJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Move relocates a file into destDir, preserving its name, and returns the
// new path. The rename is the stage-transition commit.
func (s *Store) Move(path, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create dir %s: %w", destDir, err)
	}
	dest := filepath.Join(destDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("move %s: %w", filepath.Base(path), err)
	}
	return dest, nil
}

// Depths is a per-stage count of files awaiting the next stage.
type Depths struct {
	Raw       map[string]int `json:"raw"`
	Processed int            `json:"processed"`
	Ready     int            `json:"ready"`
	Imported  int            `json:"imported"`
	Errors    map[string]int `json:"errors"`
}

// Depths counts files at every stage, including per-source raw and error
// breakdowns. Used by the status API and the cluster monitor.
func (s *Store) Depths() (Depths, error) {
	depths := Depths{
		Raw:    make(map[string]int),
		Errors: make(map[string]int),
	}

	if err := s.countPerSource(filepath.Join(s.root, "raw"), depths.Raw); err != nil {
		return depths, err
	}
	if err := s.countPerSource(filepath.Join(s.root, "errors"), depths.Errors); err != nil {
		return depths, err
	}

	var err error
	if depths.Processed, err = s.countDir(s.ProcessedDir()); err != nil {
		return depths, err
	}
	if depths.Ready, err = s.countDir(s.ReadyDir()); err != nil {
		return depths, err
	}
	if depths.Imported, err = s.countDir(s.ImportedDir()); err != nil {
		return depths, err
	}
	return depths, nil
}

func (s *Store) countDir(dir string) (int, error) {
	entries, err := s.ListNew(dir)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *Store) countPerSource(parent string, out map[string]int) error {
	sources, err := os.ReadDir(parent)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read stage dir %s: %w", parent, err)
	}
	for _, de := range sources {
		if !de.IsDir() {
			continue
		}
		count, err := s.countDir(filepath.Join(parent, de.Name()))
		if err != nil {
			return err
		}
		out[de.Name()] = count
	}
	return nil
}

func readJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
