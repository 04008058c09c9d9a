package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to the target path, creating parent directories.
func WriteFile(t testing.TB, path string, content []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteJSON marshals value and writes it to the target path.
func WriteJSON(t testing.TB, path string, value any) {
	t.Helper()

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	WriteFile(t, path, data)
}
