package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	UploadsDir string `toml:"uploads_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Moderation contains lease, retry, and watchdog settings for the backlog.
type Moderation struct {
	MaxAttempts             int `toml:"max_attempts"`
	LeaseSeconds            int `toml:"lease_seconds"`
	BackoffBaseSeconds      int `toml:"backoff_base_seconds"`
	BackoffMaxSeconds       int `toml:"backoff_max_seconds"`
	WatchdogIntervalSeconds int `toml:"watchdog_interval_seconds"`
	WatchdogBatch           int `toml:"watchdog_batch"`
	StaleSeconds            int `toml:"stale_seconds"`
	QuarantineDays          int `toml:"quarantine_days"`
}

// Pipeline contains connection settings for the external analysis service.
type Pipeline struct {
	BaseURL             string `toml:"base_url"`
	APIKey              string `toml:"api_key"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	MaxFetchMB          int    `toml:"max_fetch_mb"`
}

// Approval contains the auto-approval policy thresholds.
type Approval struct {
	Enabled           bool    `toml:"enabled"`
	MaxRiskScore      float64 `toml:"max_risk_score"`
	DefaultPriceCoins int     `toml:"default_price_coins"`
}

// Tags contains tag vocabulary settings.
type Tags struct {
	VocabularyPath string `toml:"vocabulary_path"`
	Watch          bool   `toml:"watch"`
	MaxTags        int    `toml:"max_tags"`
}

// Spam contains submitter spam-pattern thresholds.
type Spam struct {
	Enabled       bool `toml:"enabled"`
	WindowHours   int  `toml:"window_hours"`
	FlagThreshold int  `toml:"flag_threshold"`
}

// Workflow contains configuration for worker concurrency and polling.
type Workflow struct {
	Workers            int `toml:"workers"`
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic        string `toml:"ntfy_topic"`
	RequestTimeout   int    `toml:"request_timeout"`
	Quarantine       bool   `toml:"quarantine"`
	RetriesExhausted bool   `toml:"retries_exhausted"`
	Spam             bool   `toml:"spam"`
	Watchdog         bool   `toml:"watchdog"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for memalerts.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and upload directories plus the API bind address
//   - Moderation: lease duration, retry budget, backoff, watchdog cadence
//   - Pipeline: external analysis service endpoint and timeout
//   - Approval: auto-approval thresholds
//   - Tags: canonical tag vocabulary
//   - Spam: submitter spam-pattern detection
//   - Workflow: worker count and polling intervals
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Moderation    Moderation    `toml:"moderation"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Approval      Approval      `toml:"approval"`
	Tags          Tags          `toml:"tags"`
	Spam          Spam          `toml:"spam"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("memalerts.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The uploads directory is created on a best-effort basis since it is usually
// owned by the upload service.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.UploadsDir) != "" {
		_ = os.MkdirAll(c.Paths.UploadsDir, 0o755)
	}
	return nil
}

// DatabasePath returns the location of the SQLite backlog database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "memalerts.db")
}

// LeaseDuration returns how long a claimed submission stays locked.
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.Moderation.LeaseSeconds) * time.Second
}

// PipelineTimeout bounds a single external analysis call.
func (c *Config) PipelineTimeout() time.Duration {
	return time.Duration(c.Pipeline.TimeoutSeconds) * time.Second
}

// FetchTimeout bounds downloading remote media for fingerprinting.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Pipeline.FetchTimeoutSeconds) * time.Second
}

// MaxFetchBytes caps the size of remote media read for fingerprinting.
func (c *Config) MaxFetchBytes() int64 {
	return int64(c.Pipeline.MaxFetchMB) << 20
}

// StaleThreshold returns the age after which a processing row is considered abandoned
// even if its lease has not yet expired.
func (c *Config) StaleThreshold() time.Duration {
	return time.Duration(c.Moderation.StaleSeconds) * time.Second
}

// WatchdogInterval returns the sweep cadence.
func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Moderation.WatchdogIntervalSeconds) * time.Second
}

// QuarantineTTL returns how long a quarantine entry stays active.
func (c *Config) QuarantineTTL() time.Duration {
	return time.Duration(c.Moderation.QuarantineDays) * 24 * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
