package workflow

import (
	"context"
	"errors"
	"time"

	"memalerts/internal/lease"
	"memalerts/internal/logging"
	"memalerts/internal/services"
)

const failureWriteTimeout = 10 * time.Second

func (m *Manager) handleAttemptFailure(ctx context.Context, workerID, id string, cause error) {
	m.setLastError(cause)
	if errors.Is(cause, lease.ErrLeaseLost) {
		logging.WarnWithContext(m.logger, "lease lost during attempt", "lease_lost",
			logging.SubmissionID(id),
			logging.WorkerID(workerID),
			logging.Error(cause),
			logging.String(logging.FieldImpact, "another worker or the watchdog owns the submission"),
		)
		return
	}

	// Shutdown must still record the attempt so the row does not wait for the watchdog.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	update, err := m.leases.FailAndSchedule(writeCtx, id, workerID, cause, 0)
	if err != nil {
		logging.WarnWithContext(m.logger, "failed to record attempt failure", "attempt_failure_not_recorded",
			logging.SubmissionID(id),
			logging.WorkerID(workerID),
			logging.Error(err),
			logging.String("attempt_error", cause.Error()),
			logging.String(logging.FieldImpact, "watchdog will reclaim the lease"),
		)
		return
	}

	m.recordFailure(update.Terminal())
	logging.ErrorWithContext(m.logger, "moderation attempt failed", "attempt_failed",
		logging.SubmissionID(id),
		logging.WorkerID(workerID),
		logging.String(logging.FieldErrorKind, services.ErrorKind(cause)),
		logging.Int("retry_count", update.RetryCount),
		logging.Bool("terminal", update.Terminal()),
		logging.Error(cause),
	)
	if update.Terminal() {
		m.notifyExhausted(writeCtx, id, update.Error)
	}
}
