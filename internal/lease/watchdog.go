package lease

import (
	"context"
	"time"

	"memalerts/internal/logging"
	"memalerts/internal/queue"
	"memalerts/internal/services"
)

// WatchdogState carries sweep history between runs. Callers own it and pass
// the previous value into each Sweep.
type WatchdogState struct {
	Runs           int
	LastRunAt      time.Time
	StuckFound     int
	Recovered      int
	Exhausted      []string
	TotalRecovered int
	LastError      string
}

// Sweep reclaims processing rows whose lease expired or is missing, or that
// were last tried before the staleness threshold. Each row goes through the
// same failure transition as FailAndSchedule with ai_error set to
// stuck_recovered. Rows are updated only if they still match what the sweep
// observed, so a claim that lands mid-sweep is left alone.
func (m *Manager) Sweep(ctx context.Context, prev WatchdogState, limit int) (WatchdogState, error) {
	now := m.now()
	next := WatchdogState{
		Runs:           prev.Runs + 1,
		LastRunAt:      now,
		TotalRecovered: prev.TotalRecovered,
	}

	rows, err := m.store.ListExpiredLeases(ctx, now, m.StaleCutoff(now), limit)
	if err != nil {
		next.LastError = err.Error()
		return next, services.Wrap(services.ErrTransient, "watchdog", "list expired leases", "", err)
	}
	next.StuckFound = len(rows)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			next.LastError = err.Error()
			return next, err
		}
		update := ComputeFailureUpdate(row.RetryCount, m.policy.MaxAttempts, m.policy.Backoff, StuckRecoveredError, now)
		applied, err := m.store.ApplyFailure(ctx, row.ID, row.Lease(), update)
		if err != nil {
			next.LastError = err.Error()
			logging.WarnWithContext(m.logger, "watchdog recovery failed", "watchdog_recover_failed",
				logging.SubmissionID(row.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "lease stays stuck until the next sweep"),
			)
			continue
		}
		if !applied {
			m.logger.Debug("watchdog skipped row changed since scan", logging.SubmissionID(row.ID))
			continue
		}
		next.Recovered++
		if update.Terminal() {
			next.Exhausted = append(next.Exhausted, row.ID)
		}
		m.logger.Info("watchdog recovered stuck lease",
			logging.SubmissionID(row.ID),
			logging.String("previous_holder", row.LockedBy),
			logging.Int("retry_count", update.RetryCount),
			logging.String("ai_status", string(update.AIStatus)),
			logging.EventType("stuck_recovered"),
		)
	}
	next.TotalRecovered += next.Recovered
	return next, nil
}

// StaleCutoff returns the staleness cutoff used by Sweep at now, or nil when
// staleness detection is disabled.
func (m *Manager) StaleCutoff(now time.Time) *time.Time {
	if m.policy.StaleAfter <= 0 {
		return nil
	}
	cutoff := now.Add(-m.policy.StaleAfter)
	return &cutoff
}

// Snapshot is a convenience for status surfaces that want counts computed with
// the watchdog's own view of "stuck".
func (m *Manager) Snapshot(ctx context.Context) (queue.BacklogCounts, error) {
	now := m.now()
	return m.store.BacklogCounts(ctx, now, m.StaleCutoff(now))
}
