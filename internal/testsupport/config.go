package testsupport

import (
	"path/filepath"
	"testing"

	"memalerts/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.UploadsDir = filepath.Join(base, "uploads")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Tags.VocabularyPath = filepath.Join(base, "tags.yaml")
	cfgVal.Tags.Watch = false
	cfgVal.Pipeline.BaseURL = "http://127.0.0.1:1"
	cfgVal.Pipeline.TimeoutSeconds = 5
	cfgVal.Pipeline.FetchTimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPipelineURL points the analysis client at a test server.
func WithPipelineURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.BaseURL = url
	}
}

// WithMaxAttempts overrides the retry budget.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Moderation.MaxAttempts = n
	}
}

// WithApproval toggles auto-approval and sets its score ceiling.
func WithApproval(enabled bool, maxRisk float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Approval.Enabled = enabled
		b.cfg.Approval.MaxRiskScore = maxRisk
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
