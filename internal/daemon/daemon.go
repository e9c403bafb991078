package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"memalerts/internal/api"
	"memalerts/internal/config"
	"memalerts/internal/lease"
	"memalerts/internal/logging"
	"memalerts/internal/notifications"
	"memalerts/internal/preflight"
	"memalerts/internal/queue"
	"memalerts/internal/workflow"
)

// Daemon coordinates the background moderation services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	leases   *lease.Manager
	workflow *workflow.Manager
	status   *api.StatusService
	notifier notifications.Service
	pinger   preflight.Pinger
	apiSrv   *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	startedAt time.Time
	checks    []preflight.Result
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithNotifier overrides the notification service built from config.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithPinger overrides the pipeline health probe used by startup checks.
func WithPinger(p preflight.Pinger) Option {
	return func(d *Daemon) {
		d.pinger = p
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, leases *lease.Manager, wf *workflow.Manager, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || leases == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, lease manager, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "memalerts.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		leases:   leases,
		workflow: wf,
		status:   api.NewStatusService(store, leases.Policy().StaleAfter, api.WithClock(leases.Now)),
		notifier: notifications.NewService(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.apiSrv = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, and launches the
// workflow manager and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another memalerts daemon instance is already running")
	}

	d.runPreflight(ctx)

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.apiSrv.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	d.mu.Lock()
	d.startedAt = d.leases.Now()
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("memalerts daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
		logging.EventType("daemon_started"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

func (d *Daemon) runPreflight(ctx context.Context) {
	results := preflight.RunAll(ctx, d.cfg, d.pinger)
	results = append(results, preflight.CheckDatabase(ctx, d.store))
	d.mu.Lock()
	d.checks = results
	d.mu.Unlock()
	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported path or service; the daemon keeps running"),
		)
	}
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.apiSrv.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("memalerts daemon stopped", logging.EventType("daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Enqueue adds a submission to the backlog. It is idempotent.
func (d *Daemon) Enqueue(ctx context.Context, id, reason string) (bool, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "api"
	}
	return d.leases.Enqueue(ctx, id, reason)
}

// RetryFailed resets terminal failures for the given ids.
func (d *Daemon) RetryFailed(ctx context.Context, ids []string) (api.RetryResult, error) {
	return api.RetryFailedByID(ctx, d.status, ids)
}

// Backlog returns backlog counts and bounded samples.
func (d *Daemon) Backlog(ctx context.Context, sampleLimit int) (api.Backlog, error) {
	return d.status.Backlog(ctx, sampleLimit)
}

// Describe returns a single submission, or nil when unknown.
func (d *Daemon) Describe(ctx context.Context, id string) (*api.Submission, error) {
	return d.status.Describe(ctx, id)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// APIAddress returns the address the status API is bound to, or "" when the
// API is disabled or not started.
func (d *Daemon) APIAddress() string {
	return d.apiSrv.addr()
}

// LockPath returns the path of the single-instance lock file.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	d.mu.RLock()
	startedAt := d.startedAt
	checks := make([]api.CheckResult, 0, len(d.checks))
	for _, c := range d.checks {
		checks = append(checks, api.CheckResult{Name: c.Name, Passed: c.Passed, Detail: c.Detail})
	}
	d.mu.RUnlock()

	running := d.running.Load()
	status := api.DaemonStatus{
		Running:      running,
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Workflow:     api.FromStatusSummary(d.workflow.Status(ctx)),
		Checks:       checks,
	}
	if running && !startedAt.IsZero() {
		status.StartedAt = startedAt.UTC().Format(time.RFC3339)
	}
	return status
}
