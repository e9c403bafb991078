package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes data to path, creating parent directories. Empty data
// writes a single byte so the file is never zero length.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if len(data) == 0 {
		data = []byte{0x42}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteUpload stores data as an upload named name and returns its locator.
func WriteUpload(t testing.TB, uploadsDir, name string, data []byte) string {
	t.Helper()

	WriteFile(t, filepath.Join(uploadsDir, name), data)
	return name
}
