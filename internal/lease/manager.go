package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"memalerts/internal/logging"
	"memalerts/internal/queue"
	"memalerts/internal/services"
)

// ErrLeaseLost is returned when the caller no longer holds the lease.
var ErrLeaseLost = queue.ErrLeaseLost

const claimScanLimit = 16

// Manager coordinates backlog leases on top of the queue store.
type Manager struct {
	store  *queue.Store
	policy Policy
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a lease manager.
func NewManager(store *queue.Store, policy Policy, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		policy: policy,
		now:    time.Now,
		logger: logging.NewComponentLogger(logger, "lease"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the configured lease policy.
func (m *Manager) Policy() Policy {
	return m.policy
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Claim reports the outcome of a claim attempt.
type Claim struct {
	Claimed   bool
	ExpiresAt time.Time
}

// Enqueue adds a submission to the backlog. Re-enqueueing a submission that is
// already pending, processing, done, or failed changes nothing and is not an
// error. The returned bool reports whether the row was newly enqueued.
func (m *Manager) Enqueue(ctx context.Context, id, reason string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, services.Wrap(services.ErrValidation, "lease", "enqueue", "submission id is required", nil)
	}
	added, err := m.store.MarkPending(ctx, id, reason, m.now())
	if err != nil {
		if errors.Is(err, queue.ErrSubmissionNotFound) {
			return false, services.Wrap(services.ErrNotFound, "lease", "enqueue", id, err)
		}
		return false, services.Wrap(services.ErrTransient, "lease", "enqueue", id, err)
	}
	if added {
		m.logger.Info("submission enqueued",
			logging.SubmissionID(id),
			logging.String("reason", reason),
			logging.EventType("submission_enqueued"),
		)
	} else {
		m.logger.Debug("enqueue ignored; already in backlog", logging.SubmissionID(id))
	}
	return added, nil
}

// Claim attempts to lease one submission to workerID. A zero duration uses the
// policy's lease duration. Durations beyond StaleAfter are clamped to it so the
// watchdog's staleness check never fires before the lease expires. Exactly one
// of several concurrent callers succeeds.
func (m *Manager) Claim(ctx context.Context, id, workerID string, duration time.Duration) (Claim, error) {
	if duration <= 0 {
		duration = m.policy.LeaseDuration
	}
	if stale := m.policy.StaleAfter; stale > 0 && duration > stale {
		m.logger.Debug("lease duration clamped to stale threshold",
			logging.SubmissionID(id),
			logging.Duration("requested", duration),
			logging.Duration("stale_after", stale),
		)
		duration = stale
	}
	now := m.now()
	expires := now.Add(duration)
	ok, err := m.store.ClaimLease(ctx, id, workerID, expires, now)
	if err != nil {
		return Claim{}, services.Wrap(services.ErrTransient, "lease", "claim", id, err)
	}
	if !ok {
		return Claim{}, nil
	}
	return Claim{Claimed: true, ExpiresAt: expires}, nil
}

// ClaimNext leases the oldest claimable submission. It returns nil when the
// backlog has nothing ready.
func (m *Manager) ClaimNext(ctx context.Context, workerID string) (*queue.Submission, error) {
	candidates, err := m.store.ListClaimable(ctx, m.now(), claimScanLimit)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "lease", "list claimable", "", err)
	}
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		claim, err := m.Claim(ctx, candidate.ID, workerID, 0)
		if err != nil {
			return nil, err
		}
		if !claim.Claimed {
			continue
		}
		sub, err := m.store.GetSubmission(ctx, candidate.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "lease", "load claimed", candidate.ID, err)
		}
		if sub == nil {
			continue
		}
		return sub, nil
	}
	return nil, nil
}

// Release marks the submission done and clears its lease.
func (m *Manager) Release(ctx context.Context, id, workerID string) (bool, error) {
	ok, err := m.store.ReleaseLease(ctx, id, workerID, m.now())
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "lease", "release", id, err)
	}
	if !ok {
		return false, fmt.Errorf("release %s: %w", id, ErrLeaseLost)
	}
	return true, nil
}

// FailAndSchedule records a failed attempt by workerID and schedules the next
// one. A non-positive maxAttempts uses the policy value. If the lease was
// already reclaimed, nothing is written and ErrLeaseLost is returned.
func (m *Manager) FailAndSchedule(ctx context.Context, id, workerID string, cause error, maxAttempts int) (queue.FailureTransition, error) {
	if maxAttempts <= 0 {
		maxAttempts = m.policy.MaxAttempts
	}
	sub, err := m.store.GetSubmission(ctx, id)
	if err != nil {
		return queue.FailureTransition{}, services.Wrap(services.ErrTransient, "lease", "load for failure", id, err)
	}
	if sub == nil {
		return queue.FailureTransition{}, services.Wrap(services.ErrNotFound, "lease", "fail", id, queue.ErrSubmissionNotFound)
	}
	if sub.AIStatus != queue.AIStatusProcessing || sub.LockedBy != workerID {
		return queue.FailureTransition{}, fmt.Errorf("fail %s: %w", id, ErrLeaseLost)
	}

	update := ComputeFailureUpdate(sub.RetryCount, maxAttempts, m.policy.Backoff, errorText(cause), m.now())
	applied, err := m.store.ApplyFailure(ctx, id, sub.Lease(), update)
	if err != nil {
		return queue.FailureTransition{}, services.Wrap(services.ErrTransient, "lease", "apply failure", id, err)
	}
	if !applied {
		return queue.FailureTransition{}, fmt.Errorf("fail %s: %w", id, ErrLeaseLost)
	}
	m.logFailure(id, update, "attempt_failed")
	return update, nil
}

func (m *Manager) logFailure(id string, update queue.FailureTransition, event string) {
	attrs := []logging.Attr{
		logging.SubmissionID(id),
		logging.Int("retry_count", update.RetryCount),
		logging.String("ai_status", string(update.AIStatus)),
		logging.String("error_message", update.Error),
	}
	if update.Terminal() {
		logging.WarnWithContext(m.logger, "moderation retries exhausted", event+"_terminal",
			append(attrs,
				logging.Alert("retries_exhausted"),
				logging.String(logging.FieldErrorHint, "inspect the error and run memalerts retry"),
				logging.String(logging.FieldImpact, "submission needs manual moderation"),
			)...,
		)
		return
	}
	attrs = append(attrs,
		logging.Time("next_retry_at", *update.NextRetryAt),
		logging.EventType(event),
	)
	m.logger.Info("moderation attempt rescheduled", logging.Args(attrs...)...)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	kind := services.ErrorKind(err)
	if kind == "" {
		return err.Error()
	}
	return kind + ": " + err.Error()
}
