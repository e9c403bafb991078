package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"memalerts/internal/lease"
	"memalerts/internal/logging"
)

// Start launches the worker pool and the watchdog loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.processor == nil || m.leases == nil {
		m.mu.Unlock()
		return errors.New("workflow processor not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers + 1)
	m.mu.Unlock()

	for i := 1; i <= m.workers; i++ {
		go m.runWorker(runCtx, m.WorkerID(i))
	}
	go m.runWatchdog(runCtx)

	m.logger.Info("workflow started",
		logging.Int("workers", m.workers),
		logging.Duration("poll_interval", m.pollInterval),
		logging.Duration("watchdog_interval", m.watchdogInterval),
		logging.EventType("workflow_started"),
	)
	return nil
}

// Stop terminates background processing and waits for in-flight attempts.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.EventType("workflow_stopped"))
}

func (m *Manager) runWorker(ctx context.Context, workerID string) {
	defer m.wg.Done()
	logger := m.logger.With(logging.WorkerID(workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		handled, err := m.ProcessNext(ctx, workerID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.handleNextItemError(ctx, logger, err)
			continue
		}
		if !handled {
			m.waitOrShutdown(ctx, m.pollInterval)
		}
	}
}

// ProcessNext claims the next ready submission for workerID and runs one
// attempt. It reports false when the backlog had nothing ready.
func (m *Manager) ProcessNext(ctx context.Context, workerID string) (bool, error) {
	sub, err := m.leases.ClaimNext(ctx, workerID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}
	m.handle(ctx, workerID, sub.ID)
	return true, nil
}

// ProcessSubmission claims one specific submission and runs an attempt. It
// reports false when the submission was not claimable.
func (m *Manager) ProcessSubmission(ctx context.Context, id, workerID string) (bool, error) {
	claim, err := m.leases.Claim(ctx, id, workerID, 0)
	if err != nil {
		return false, err
	}
	if !claim.Claimed {
		return false, nil
	}
	m.handle(ctx, workerID, id)
	return true, nil
}

// Drain processes ready submissions with a single worker until none remain
// or limit attempts have run. A non-positive limit means no limit.
func (m *Manager) Drain(ctx context.Context, limit int) (int, error) {
	workerID := m.WorkerID(0)
	processed := 0
	for limit <= 0 || processed < limit {
		handled, err := m.ProcessNext(ctx, workerID)
		if err != nil {
			return processed, err
		}
		if !handled {
			break
		}
		processed++
	}
	return processed, nil
}

func (m *Manager) handle(ctx context.Context, workerID, id string) {
	started := time.Now()
	outcome, err := m.processor.ProcessOne(ctx, id, workerID)
	if err != nil {
		m.handleAttemptFailure(ctx, workerID, id, err)
		return
	}

	if _, err := m.leases.Release(ctx, id, workerID); err != nil {
		m.setLastError(err)
		logging.WarnWithContext(m.logger, "lease release failed", "lease_release_failed",
			logging.SubmissionID(id),
			logging.WorkerID(workerID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "watchdog will reclaim the lease"),
		)
		return
	}
	m.recordResult(ItemResult{
		SubmissionID: id,
		WorkerID:     workerID,
		Outcome:      outcome.Kind,
		Decision:     outcome.Decision,
		Approved:     outcome.Approved,
		ReusedFrom:   outcome.ReusedFrom,
		FinishedAt:   time.Now(),
	})
	m.logger.Info("moderation attempt finished",
		logging.SubmissionID(id),
		logging.WorkerID(workerID),
		logging.String("outcome", string(outcome.Kind)),
		logging.String("decision", string(outcome.Decision)),
		logging.Bool("approved", outcome.Approved),
		logging.Duration("attempt_duration", time.Since(started)),
		logging.EventType("attempt_finished"),
	)
}

func (m *Manager) runWatchdog(ctx context.Context) {
	defer m.wg.Done()
	interval := m.watchdogInterval
	if interval <= 0 {
		interval = time.Minute
	}

	m.sweep(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// SweepOnce runs one watchdog pass and returns the updated state.
func (m *Manager) SweepOnce(ctx context.Context) (lease.WatchdogState, error) {
	return m.sweep(ctx)
}

func (m *Manager) sweep(ctx context.Context) (lease.WatchdogState, error) {
	m.mu.RLock()
	prev := m.watchdog
	m.mu.RUnlock()

	next, err := m.leases.Sweep(ctx, prev, m.watchdogBatch)
	m.mu.Lock()
	m.watchdog = next
	m.mu.Unlock()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.setLastError(err)
			logging.WarnWithContext(m.logger, "watchdog sweep failed", "watchdog_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check backlog database access"),
				logging.String(logging.FieldImpact, "stuck leases wait for the next sweep"),
			)
		}
		return next, err
	}
	if next.Recovered > 0 {
		m.notifyWatchdog(ctx, next)
	}
	return next, nil
}

func (m *Manager) handleNextItemError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(logger, "failed to claim next submission", "backlog_claim_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check backlog database access"),
	)
	m.waitOrShutdown(ctx, m.errorRetryInterval)
}

func (m *Manager) waitOrShutdown(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
