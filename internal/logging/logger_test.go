package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"memalerts/internal/config"
	"memalerts/internal/logging"
	"memalerts/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	var console bytes.Buffer
	logger, err := logging.NewFromConfig(&cfg, &console)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon ready", logging.EventType("daemon_ready"))

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "memalerts-cli.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("log file line is not JSON: %v (%q)", err, data)
	}
	if record["msg"] != "daemon ready" || record["event_type"] != "daemon_ready" {
		t.Fatalf("unexpected record: %#v", record)
	}
	if record["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", record["level"])
	}
	if !strings.Contains(console.String(), "daemon ready") {
		t.Fatalf("expected console output, got %q", console.String())
	}
}

func TestConsoleLoggerFormatsComponentAndSubmission(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Stdout: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "workflow")
	logger.Info("submission claimed", logging.SubmissionID("sub-1"), logging.String("note", "has space"))

	line := buf.String()
	if !strings.Contains(line, "INFO workflow [sub-1]: submission claimed") {
		t.Fatalf("unexpected console line %q", line)
	}
	if !strings.Contains(line, `note="has space"`) {
		t.Fatalf("expected quoted value, got %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestConsoleLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "warn", Stdout: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", Stdout: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithSubmissionID(context.Background(), "sub-9")
	ctx = services.WithWorkerID(ctx, "worker-1")
	ctx = services.WithRequestID(ctx, "req-1")
	logging.WithContext(ctx, logger).Debug("context fields")

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	for key, want := range map[string]string{
		logging.FieldSubmissionID:  "sub-9",
		logging.FieldWorkerID:      "worker-1",
		logging.FieldCorrelationID: "req-1",
	} {
		if record[key] != want {
			t.Fatalf("expected %s=%s, got %v", key, want, record[key])
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Stdout: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "persist asset failed", "asset_persist_failed")

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record[logging.FieldEventType] != "asset_persist_failed" {
		t.Fatalf("unexpected event type: %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] == nil || record[logging.FieldImpact] == nil {
		t.Fatalf("expected hint and impact defaults, got %#v", record)
	}
}

func TestTeeLoggerDuplicatesRecords(t *testing.T) {
	var primary, secondary bytes.Buffer
	base, err := logging.New(logging.Options{Format: "console", Stdout: &primary})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	extra, err := logging.New(logging.Options{Format: "json", Stdout: &secondary})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logging.TeeLogger(base, extra.Handler()).Info("fanout")
	if !strings.Contains(primary.String(), "fanout") || !strings.Contains(secondary.String(), "fanout") {
		t.Fatalf("expected both outputs, got %q / %q", primary.String(), secondary.String())
	}
}

func TestCleanupOldLogsRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "memalerts-old.log")
	freshPath := filepath.Join(dir, "memalerts-new.log")
	for _, p := range []string{oldPath, freshPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 5, logging.RetentionTarget{Dir: dir, Pattern: "memalerts-*.log"})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Fatalf("expected fresh log retained: %v", err)
	}
}

func TestCleanupOldLogsKeepsExcludedAndPointer(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "memalerts-current.log")
	if err := os.WriteFile(current, []byte("x"), 0o644); err != nil {
		t.Fatalf("write current: %v", err)
	}
	pointer := filepath.Join(dir, "memalerts-link.log")
	if err := os.Symlink(current, pointer); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	past := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(current, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed := logging.CleanupOldLogs(nil, 5, logging.RetentionTarget{Dir: dir, Pattern: "memalerts-*.log", Exclude: []string{current}})
	if removed != 0 {
		t.Fatalf("expected nothing removed, got %d", removed)
	}
	for _, p := range []string{current, pointer} {
		if _, err := os.Lstat(p); err != nil {
			t.Fatalf("expected %s retained: %v", p, err)
		}
	}
}

func TestJSONLoggerRendersDurationsAsMilliseconds(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Stdout: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("analysis completed", logging.Duration("duration", 1500*time.Millisecond))

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["duration_ms"] != 1500.0 || record["duration"] != nil {
		t.Fatalf("expected duration_ms=1500, got %#v", record)
	}
	if record["app"] != "memalerts" || record["ts"] == nil {
		t.Fatalf("expected app and ts keys, got %#v", record)
	}
}
