package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"memalerts/internal/config"
	"memalerts/internal/lease"
	"memalerts/internal/logging"
	"memalerts/internal/moderation"
	"memalerts/internal/notifications"
)

// Processor runs one moderation attempt for a leased submission.
type Processor interface {
	ProcessOne(ctx context.Context, id, workerID string) (moderation.Outcome, error)
}

// Manager coordinates backlog workers and the watchdog.
type Manager struct {
	cfg       *config.Config
	leases    *lease.Manager
	processor Processor
	notifier  notifications.Service
	logger    *slog.Logger

	workers            int
	pollInterval       time.Duration
	errorRetryInterval time.Duration
	watchdogInterval   time.Duration
	watchdogBatch      int
	instanceID         string

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastErr    error
	lastResult *ItemResult
	watchdog   lease.WatchdogState
	counters   Counters
}

// NewManager constructs a workflow manager. A nil notifier disables notifications.
func NewManager(cfg *config.Config, leases *lease.Manager, processor Processor, notifier notifications.Service, logger *slog.Logger) *Manager {
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		cfg:                cfg,
		leases:             leases,
		processor:          processor,
		notifier:           notifier,
		logger:             logging.NewComponentLogger(logger, "workflow"),
		workers:            workers,
		pollInterval:       time.Duration(cfg.Workflow.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		watchdogInterval:   cfg.WatchdogInterval(),
		watchdogBatch:      cfg.Moderation.WatchdogBatch,
		instanceID:         newInstanceID(),
	}
}

// WorkerID returns the lease holder identity used by worker n.
func (m *Manager) WorkerID(n int) string {
	return fmt.Sprintf("%s/w%d", m.instanceID, n)
}

func newInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "memalerts"
	}
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString()[:8])
}
