package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"memalerts/internal/config"
	"memalerts/internal/lease"
	"memalerts/internal/logging"
	"memalerts/internal/moderation"
	"memalerts/internal/notifications"
	"memalerts/internal/pipeline"
	"memalerts/internal/queue"
	"memalerts/internal/tags"
	"memalerts/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// localRuntime wires the moderation services against the backlog database
// for one-off commands.
type localRuntime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	leases   *lease.Manager
	notifier notifications.Service
	workflow *workflow.Manager
}

func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open backlog database: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

func (c *commandContext) withRuntime(console io.Writer, fn func(*localRuntime) error) error {
	return c.withStore(func(cfg *config.Config, store *queue.Store) error {
		logger, err := logging.NewFromConfig(cfg, console)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		canonicalizer, err := tags.NewCanonicalizer(cfg.Tags.VocabularyPath, cfg.Tags.MaxTags, logger)
		if err != nil {
			return fmt.Errorf("load tag vocabulary: %w", err)
		}
		notifier := notifications.NewService(cfg)
		leases := lease.NewManager(store, lease.PolicyFromConfig(cfg), logger)
		processor := moderation.NewProcessor(cfg, moderation.Deps{
			Store:    store,
			Analyzer: pipeline.NewHTTPClient(cfg.Pipeline),
			Tags:     canonicalizer,
			Notifier: notifier,
		}, logger)
		return fn(&localRuntime{
			cfg:      cfg,
			logger:   logger,
			store:    store,
			leases:   leases,
			notifier: notifier,
			workflow: workflow.NewManager(cfg, leases, processor, notifier, logger),
		})
	})
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
