package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	if err := c.normalizeTags(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.UploadsDir, err = expandPath(strings.TrimSpace(c.Paths.UploadsDir)); err != nil {
		return fmt.Errorf("paths.uploads_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("MEMALERTS_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.BaseURL = strings.TrimRight(strings.TrimSpace(c.Pipeline.BaseURL), "/")
	if c.Pipeline.BaseURL == "" {
		if value, ok := os.LookupEnv("MEMALERTS_PIPELINE_URL"); ok {
			c.Pipeline.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Pipeline.APIKey = strings.TrimSpace(c.Pipeline.APIKey)
	if c.Pipeline.APIKey == "" {
		if value, ok := os.LookupEnv("MEMALERTS_PIPELINE_API_KEY"); ok {
			c.Pipeline.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeTags() error {
	var err error
	if c.Tags.VocabularyPath, err = expandPath(strings.TrimSpace(c.Tags.VocabularyPath)); err != nil {
		return fmt.Errorf("tags.vocabulary_path: %w", err)
	}
	if c.Tags.MaxTags <= 0 {
		c.Tags.MaxTags = defaultMaxTags
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
