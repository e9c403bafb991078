package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a locator escapes its storage root.
var ErrOutsideRoot = errors.New("path escapes storage root")

// Digest is the content hash and byte size of a file.
type Digest struct {
	SHA256 string
	Size   int64
}

// HashFile streams path through SHA-256.
func HashFile(path string) (Digest, error) {
	in, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer in.Close()

	digest, err := HashReader(in)
	if err != nil {
		return Digest{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return digest, nil
}

// HashReader streams r through SHA-256 until EOF.
func HashReader(r io.Reader) (Digest, error) {
	hasher := sha256.New()
	size, err := io.Copy(hasher, r)
	if err != nil {
		return Digest{}, err
	}
	return Digest{SHA256: hex.EncodeToString(hasher.Sum(nil)), Size: size}, nil
}

// ResolveWithin joins a relative locator onto root and rejects results that
// leave root. Absolute locators are accepted only when they already lie
// inside root.
func ResolveWithin(root, locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", errors.New("empty locator")
	}
	root = filepath.Clean(root)
	candidate := locator
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", locator, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("resolve %q: %w", locator, ErrOutsideRoot)
	}
	return candidate, nil
}
