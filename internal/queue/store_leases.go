package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// claimablePredicate matches rows a worker may lease at the bound instant.
// It expects the same timestamp bound twice.
const claimablePredicate = `((ai_status = 'pending' AND (ai_next_retry_at IS NULL OR ai_next_retry_at <= ?))
	OR (ai_status = 'failed' AND ai_next_retry_at IS NOT NULL AND ai_next_retry_at <= ?))`

// MarkPending moves a never-enqueued submission into the backlog. Rows that
// already carry a backlog status are left untouched and false is returned.
func (s *Store) MarkPending(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE submissions
		 SET ai_status = 'pending', enqueue_reason = ?, updated_at = ?
		 WHERE id = ? AND ai_status IS NULL`,
		nullableString(strings.TrimSpace(reason)), formatTime(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark pending: %w", err)
	}
	changed, err := rowsChanged(res)
	if err != nil || changed {
		return changed, err
	}
	exists, err := s.submissionExists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
	}
	return false, nil
}

// ClaimLease atomically leases a claimable submission to workerID until expiresAt.
// Exactly one of several concurrent callers for the same row observes true.
func (s *Store) ClaimLease(ctx context.Context, id, workerID string, expiresAt, at time.Time) (bool, error) {
	if strings.TrimSpace(workerID) == "" {
		return false, errors.New("worker id is required")
	}
	if !expiresAt.After(at) {
		return false, errors.New("lease expiry must be in the future")
	}
	now := formatTime(at)
	res, err := s.execWithRetry(ctx,
		`UPDATE submissions
		 SET ai_status = 'processing', ai_locked_by = ?, ai_lock_expires_at = ?,
		     ai_last_tried_at = ?, updated_at = ?
		 WHERE id = ? AND `+claimablePredicate,
		workerID, formatTime(expiresAt), now, now, id, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("claim lease: %w", err)
	}
	return rowsChanged(res)
}

// ReleaseLease marks the submission done and clears its lock. It succeeds while
// workerID still holds the processing lease, and is a no-op success when the
// row was already completed and unlocked by CompleteSubmission.
func (s *Store) ReleaseLease(ctx context.Context, id, workerID string, at time.Time) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE submissions
		 SET ai_status = 'done', ai_locked_by = NULL, ai_lock_expires_at = NULL,
		     ai_completed_at = COALESCE(ai_completed_at, ?), updated_at = ?
		 WHERE id = ? AND ((ai_status = 'processing' AND ai_locked_by = ?)
		     OR (ai_status = 'done' AND ai_locked_by IS NULL))`,
		formatTime(at), formatTime(at), id, workerID,
	)
	if err != nil {
		return false, fmt.Errorf("release lease: %w", err)
	}
	return rowsChanged(res)
}

// ApplyFailure writes a failure transition only if the row still matches the
// observed lease state. The lock fields are always cleared.
func (s *Store) ApplyFailure(ctx context.Context, id string, observed LeaseObservation, next FailureTransition) (bool, error) {
	if next.AIStatus != AIStatusPending && next.AIStatus != AIStatusFailed {
		return false, fmt.Errorf("invalid failure status %q", next.AIStatus)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE submissions
		 SET ai_status = ?, ai_retry_count = ?, ai_next_retry_at = ?, ai_error = ?,
		     ai_locked_by = NULL, ai_lock_expires_at = NULL, updated_at = ?
		 WHERE id = ? AND ai_status = ? AND ai_retry_count = ?
		   AND ai_locked_by IS ? AND ai_lock_expires_at IS ?`,
		string(next.AIStatus),
		next.RetryCount,
		nullableTime(next.NextRetryAt),
		nullableString(next.Error),
		formatTime(next.At),
		id,
		string(observed.AIStatus),
		observed.RetryCount,
		nullableString(observed.LockedBy),
		nullableTime(observed.LockExpiresAt),
	)
	if err != nil {
		return false, fmt.Errorf("apply failure: %w", err)
	}
	return rowsChanged(res)
}

// ListClaimable returns submissions a worker could lease at now, oldest due first.
func (s *Store) ListClaimable(ctx context.Context, now time.Time, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 1
	}
	stamp := formatTime(now)
	return s.querySubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE `+claimablePredicate+`
		 ORDER BY COALESCE(ai_next_retry_at, created_at), created_at, id
		 LIMIT ?`,
		stamp, stamp, limit,
	)
}

// ListExpiredLeases returns processing rows whose lease is missing or expired
// at now. When staleBefore is set, rows last tried before it are included even
// if their lease is still running.
func (s *Store) ListExpiredLeases(ctx context.Context, now time.Time, staleBefore *time.Time, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	predicate, args := stuckPredicate(now, staleBefore)
	args = append(args, limit)
	return s.querySubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE `+predicate+`
		 ORDER BY COALESCE(ai_lock_expires_at, ai_last_tried_at, updated_at), id
		 LIMIT ?`,
		args...,
	)
}

// RetryFailed resets terminal failures back to pending with a fresh retry
// budget. With no ids every terminal failure is reset.
func (s *Store) RetryFailed(ctx context.Context, at time.Time, ids ...string) (int64, error) {
	query := `UPDATE submissions
		SET ai_status = 'pending', ai_retry_count = 0, ai_next_retry_at = NULL,
		    ai_error = NULL, ai_locked_by = NULL, ai_lock_expires_at = NULL,
		    enqueue_reason = 'manual_retry', updated_at = ?
		WHERE ai_status = 'failed' AND ai_next_retry_at IS NULL`
	args := []any{formatTime(at)}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed submissions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

func stuckPredicate(now time.Time, staleBefore *time.Time) (string, []any) {
	predicate := `(ai_status = 'processing' AND (ai_locked_by IS NULL OR ai_lock_expires_at IS NULL OR ai_lock_expires_at <= ?`
	args := []any{formatTime(now)}
	if staleBefore != nil {
		predicate += ` OR (ai_last_tried_at IS NOT NULL AND ai_last_tried_at < ?)`
		args = append(args, formatTime(*staleBefore))
	}
	predicate += `))`
	return predicate, args
}
