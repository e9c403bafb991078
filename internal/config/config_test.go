package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"memalerts/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("MEMALERTS_PIPELINE_API_KEY", "env-key")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "memalerts")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "memalerts.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Pipeline.APIKey != "env-key" {
		t.Fatalf("expected pipeline key from env, got %q", cfg.Pipeline.APIKey)
	}
	if cfg.Moderation.MaxAttempts != config.Default().Moderation.MaxAttempts {
		t.Fatalf("unexpected max attempts: %d", cfg.Moderation.MaxAttempts)
	}
	if cfg.PipelineTimeout() >= cfg.LeaseDuration() {
		t.Fatalf("expected pipeline timeout below lease, got %s >= %s", cfg.PipelineTimeout(), cfg.LeaseDuration())
	}
	if err := cfg.RequirePipeline(); err == nil {
		t.Fatal("expected RequirePipeline to fail without base url")
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
data_dir = "~/memes"
api_token = "  secret  "

[moderation]
max_attempts = 3
lease_seconds = 120
stale_seconds = 0

[pipeline]
base_url = "http://pipeline.local:9000/"
timeout_seconds = 60
fetch_timeout_seconds = 20
max_fetch_mb = 64

[approval]
enabled = false
max_risk_score = 0.5

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected resolved %q to exist", resolved)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "memes") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("expected trimmed api token, got %q", cfg.Paths.APIToken)
	}
	if cfg.Pipeline.BaseURL != "http://pipeline.local:9000" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Pipeline.BaseURL)
	}
	if cfg.Moderation.MaxAttempts != 3 {
		t.Fatalf("expected max attempts 3, got %d", cfg.Moderation.MaxAttempts)
	}
	if cfg.Approval.Enabled {
		t.Fatal("expected approval disabled")
	}
	if cfg.FetchTimeout() != 20*time.Second || cfg.MaxFetchBytes() != 64<<20 {
		t.Fatalf("unexpected fetch bounds %s / %d", cfg.FetchTimeout(), cfg.MaxFetchBytes())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %q/%q", cfg.Logging.Format, cfg.Logging.Level)
	}
	if err := cfg.RequirePipeline(); err != nil {
		t.Fatalf("RequirePipeline: %v", err)
	}
}

func TestValidateRejectsPipelineTimeoutAboveLease(t *testing.T) {
	cfg := config.Default()
	cfg.Moderation.LeaseSeconds = 60
	cfg.Moderation.StaleSeconds = 0
	cfg.Pipeline.TimeoutSeconds = 60
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "pipeline.timeout_seconds") {
		t.Fatalf("expected pipeline timeout error, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero attempts", func(c *config.Config) { c.Moderation.MaxAttempts = 0 }, "moderation.max_attempts"},
		{"backoff inverted", func(c *config.Config) { c.Moderation.BackoffMaxSeconds = 10 }, "backoff_max_seconds"},
		{"risk above one", func(c *config.Config) { c.Approval.MaxRiskScore = 1.5 }, "approval.max_risk_score"},
		{"no workers", func(c *config.Config) { c.Workflow.Workers = 0 }, "workflow.workers"},
		{"bad scheme", func(c *config.Config) { c.Pipeline.BaseURL = "ftp://x" }, "pipeline.base_url"},
		{"stale below lease", func(c *config.Config) { c.Moderation.StaleSeconds = 10 }, "stale_seconds"},
		{"no fetch cap", func(c *config.Config) { c.Pipeline.MaxFetchMB = 0 }, "pipeline.max_fetch_mb"},
		{"fetch outlives lease", func(c *config.Config) { c.Pipeline.FetchTimeoutSeconds = 300 }, "fetch_timeout_seconds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if decoded.Moderation.LeaseSeconds != config.Default().Moderation.LeaseSeconds {
		t.Fatalf("sample lease_seconds drifted from defaults: %d", decoded.Moderation.LeaseSeconds)
	}
}
