package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	digest, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if digest.SHA256 != want {
		t.Fatalf("hash mismatch: got %s, want %s", digest.SHA256, want)
	}
	if digest.Size != 11 {
		t.Fatalf("size mismatch: got %d", digest.Size)
	}
}

func TestHashFileMissing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "missing.mp4"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestResolveWithin(t *testing.T) {
	root := t.TempDir()

	got, err := ResolveWithin(root, "channel/clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "channel", "clip.mp4") {
		t.Fatalf("unexpected path %s", got)
	}

	abs := filepath.Join(root, "a.mp4")
	if got, err := ResolveWithin(root, abs); err != nil || got != abs {
		t.Fatalf("absolute path inside root: got %s err=%v", got, err)
	}

	for _, locator := range []string{"../secret", "/etc/passwd", "a/../../b"} {
		if _, err := ResolveWithin(root, locator); !errors.Is(err, ErrOutsideRoot) {
			t.Fatalf("expected %q to be rejected, got %v", locator, err)
		}
	}
	if _, err := ResolveWithin(root, " "); err == nil {
		t.Fatal("expected empty locator to fail")
	}
}
