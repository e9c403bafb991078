package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"memalerts/internal/config"
	"memalerts/internal/pipeline"
	"memalerts/internal/queue"
	"memalerts/internal/testsupport"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckPipeline_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" || r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := pipeline.NewHTTPClient(config.Pipeline{BaseURL: srv.URL, APIKey: "key", TimeoutSeconds: 5})
	result := CheckPipeline(context.Background(), client)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckPipeline_Failures(t *testing.T) {
	if result := CheckPipeline(context.Background(), nil); result.Passed {
		t.Fatal("expected failure without pinger")
	}
	timeout := pingFunc(func(context.Context) error { return context.DeadlineExceeded })
	result := CheckPipeline(context.Background(), timeout)
	if result.Passed || !strings.Contains(result.Detail, "timed out") {
		t.Fatalf("unexpected result: %#v", result)
	}
	refused := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	if result := CheckPipeline(context.Background(), refused); result.Passed || result.Detail != "connection refused" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestCheckVocabulary(t *testing.T) {
	dir := t.TempDir()
	if result := CheckVocabulary(filepath.Join(dir, "missing.yaml")); !result.Passed {
		t.Fatalf("missing vocabulary should pass: %s", result.Detail)
	}

	good := filepath.Join(dir, "tags.yaml")
	testsupport.WriteFile(t, good, []byte("tags:\n  cats: [cat, kitty]\n"))
	result := CheckVocabulary(good)
	if !result.Passed || !strings.Contains(result.Detail, "aliases") {
		t.Fatalf("unexpected result: %#v", result)
	}

	bad := filepath.Join(dir, "bad.yaml")
	testsupport.WriteFile(t, bad, []byte("tags: [unclosed\n"))
	if result := CheckVocabulary(bad); result.Passed {
		t.Fatal("expected failure for malformed vocabulary")
	}
}

func TestCheckDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewSubmission(t, store, "sub-1", "a.mp4")

	result := CheckDatabase(context.Background(), store)
	if !result.Passed || !strings.Contains(result.Detail, "1 submissions") {
		t.Fatalf("unexpected result: %#v", result)
	}
	if result := CheckDatabase(context.Background(), nil); result.Passed {
		t.Fatal("expected failure without store")
	}
}

type brokenHealth struct{}

func (brokenHealth) CheckHealth(context.Context) (queue.DatabaseHealth, error) {
	return queue.DatabaseHealth{DatabaseExists: true, DatabaseReadable: true, MissingTables: []string{"channel_memes"}}, nil
}

func TestCheckDatabase_MissingTables(t *testing.T) {
	result := CheckDatabase(context.Background(), brokenHealth{})
	if result.Passed || !strings.Contains(result.Detail, "channel_memes") {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReportsEveryCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	ok := pingFunc(func(context.Context) error { return nil })

	results := RunAll(context.Background(), cfg, ok)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d: %#v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %#v", failed)
	}

	cfg.Paths.UploadsDir = filepath.Join(t.TempDir(), "gone")
	failed := Failed(RunAll(context.Background(), cfg, ok))
	if len(failed) != 1 || failed[0].Name != "Uploads directory" {
		t.Fatalf("expected uploads failure, got %#v", failed)
	}
}
