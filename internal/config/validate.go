package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateModeration(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateApproval(); err != nil {
		return err
	}
	if err := c.validateSpam(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

// RequirePipeline reports whether the external analysis service is configured.
// Only the processing paths need it; read-only commands run without.
func (c *Config) RequirePipeline() error {
	if strings.TrimSpace(c.Pipeline.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("pipeline.base_url is required. Set MEMALERTS_PIPELINE_URL or edit %s (create with 'memalerts config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateModeration() error {
	if err := ensurePositiveMap(map[string]int{
		"moderation.max_attempts":              c.Moderation.MaxAttempts,
		"moderation.lease_seconds":             c.Moderation.LeaseSeconds,
		"moderation.backoff_base_seconds":      c.Moderation.BackoffBaseSeconds,
		"moderation.backoff_max_seconds":       c.Moderation.BackoffMaxSeconds,
		"moderation.watchdog_interval_seconds": c.Moderation.WatchdogIntervalSeconds,
		"moderation.watchdog_batch":            c.Moderation.WatchdogBatch,
		"moderation.quarantine_days":           c.Moderation.QuarantineDays,
	}); err != nil {
		return err
	}
	if c.Moderation.BackoffMaxSeconds < c.Moderation.BackoffBaseSeconds {
		return errors.New("moderation.backoff_max_seconds must be >= moderation.backoff_base_seconds")
	}
	if c.Moderation.StaleSeconds < 0 {
		return errors.New("moderation.stale_seconds must be >= 0")
	}
	if c.Moderation.StaleSeconds > 0 && c.Moderation.StaleSeconds < c.Moderation.LeaseSeconds {
		return errors.New("moderation.stale_seconds must be 0 or at least moderation.lease_seconds")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.TimeoutSeconds <= 0 {
		return errors.New("pipeline.timeout_seconds must be positive")
	}
	if c.Pipeline.FetchTimeoutSeconds <= 0 {
		return errors.New("pipeline.fetch_timeout_seconds must be positive")
	}
	if c.Pipeline.MaxFetchMB <= 0 {
		return errors.New("pipeline.max_fetch_mb must be positive")
	}
	if c.Pipeline.TimeoutSeconds+c.Pipeline.FetchTimeoutSeconds >= c.Moderation.LeaseSeconds {
		return errors.New("pipeline.timeout_seconds plus pipeline.fetch_timeout_seconds must be less than moderation.lease_seconds")
	}
	if c.Pipeline.BaseURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Pipeline.BaseURL)
	if err != nil {
		return fmt.Errorf("pipeline.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("pipeline.base_url must use http or https, got %q", parsed.Scheme)
	}
	return nil
}

func (c *Config) validateApproval() error {
	score := c.Approval.MaxRiskScore
	if math.IsNaN(score) || score < 0 || score > 1 {
		return errors.New("approval.max_risk_score must be between 0 and 1")
	}
	if c.Approval.DefaultPriceCoins < 0 {
		return errors.New("approval.default_price_coins must be >= 0")
	}
	return nil
}

func (c *Config) validateSpam() error {
	if !c.Spam.Enabled {
		return nil
	}
	return ensurePositiveMap(map[string]int{
		"spam.window_hours":   c.Spam.WindowHours,
		"spam.flag_threshold": c.Spam.FlagThreshold,
	})
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
