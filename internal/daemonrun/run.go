package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"memalerts/internal/config"
	"memalerts/internal/daemon"
	"memalerts/internal/lease"
	"memalerts/internal/logging"
	"memalerts/internal/moderation"
	"memalerts/internal/notifications"
	"memalerts/internal/pipeline"
	"memalerts/internal/queue"
	"memalerts/internal/tags"
	"memalerts/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the memalerts daemon runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("memalerts-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		FilePaths:   []string{logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logConfigSnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update memalerts.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "memalerts-*.log", Exclude: []string{logPath}},
	)
	pidPath := filepath.Join(cfg.Paths.DataDir, "memalerts.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open backlog store", logging.Error(err))
		return err
	}

	canonicalizer, err := tags.NewCanonicalizer(cfg.Tags.VocabularyPath, cfg.Tags.MaxTags, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("load tag vocabulary: %w", err)
	}
	if cfg.Tags.Watch {
		go watchVocabulary(signalCtx, canonicalizer, logger)
	}

	notifier := notifications.NewService(cfg)
	leases := lease.NewManager(store, lease.PolicyFromConfig(cfg), logger)
	analyzer := pipeline.NewHTTPClient(cfg.Pipeline)
	processor := moderation.NewProcessor(cfg, moderation.Deps{
		Store:    store,
		Analyzer: analyzer,
		Tags:     canonicalizer,
		Notifier: notifier,
	}, logger)
	workflowManager := workflow.NewManager(cfg, leases, processor, notifier, logger)

	d, err := daemon.New(cfg, store, leases, workflowManager, logger,
		daemon.WithNotifier(notifier),
		daemon.WithPinger(analyzer),
	)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file, API bind address and database access"),
			logging.String(logging.FieldImpact, "backlog is not being processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("memalerts daemon shutting down", logging.EventType("daemon_shutdown"))
	return nil
}

func watchVocabulary(ctx context.Context, c *tags.Canonicalizer, logger *slog.Logger) {
	if err := c.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(logger, "vocabulary watcher stopped", "vocabulary_watch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "vocabulary edits require a daemon restart"),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "memalerts.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPIDFile returns the pid recorded by a running daemon, or 0 when none is
// recorded.
func ReadPIDFile(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.DataDir, "memalerts.pid"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.EventType("config_snapshot"),
		logging.String("database", cfg.DatabasePath()),
		logging.String("uploads_dir", cfg.Paths.UploadsDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_present", strings.TrimSpace(cfg.Paths.APIToken) != ""),
		logging.String("pipeline_url", cfg.Pipeline.BaseURL),
		logging.Bool("pipeline_key_present", strings.TrimSpace(cfg.Pipeline.APIKey) != ""),
		logging.Int("workers", cfg.Workflow.Workers),
		logging.Int("max_attempts", cfg.Moderation.MaxAttempts),
		logging.Bool("auto_approval", cfg.Approval.Enabled),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}
