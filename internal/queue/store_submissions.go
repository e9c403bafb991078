package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateSubmission registers a new submission in the pending top-level status.
// The moderation backlog fields stay empty until the submission is enqueued.
func (s *Store) CreateSubmission(ctx context.Context, in NewSubmission, at time.Time) (*Submission, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if strings.TrimSpace(in.ChannelID) == "" {
		return nil, errors.New("channel id is required")
	}
	if strings.TrimSpace(in.FileLocator) == "" {
		return nil, errors.New("file locator is required")
	}
	if in.SourceKind == "" {
		in.SourceKind = SourceUpload
	}

	stamp := formatTime(at)
	_, err := s.execWithRetry(ctx,
		`INSERT INTO submissions (id, channel_id, submitter_id, status, source_kind, file_locator, fingerprint, duration_ms, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID,
		in.ChannelID,
		in.SubmitterID,
		string(StatusPending),
		string(in.SourceKind),
		in.FileLocator,
		nullableString(in.Fingerprint),
		in.DurationMS,
		in.Title,
		stamp,
		stamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSubmission, in.ID)
		}
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	return s.GetSubmission(ctx, in.ID)
}

// GetSubmission fetches a submission by id. It returns nil when the id is unknown.
func (s *Store) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// ListSubmissions returns submissions ordered by creation time, optionally
// filtered by backlog status.
func (s *Store) ListSubmissions(ctx context.Context, limit int, statuses ...AIStatus) ([]*Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE ai_status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.querySubmissions(ctx, query, args...)
}

// SetFingerprint records the content fingerprint and duration computed for a
// submission. An existing fingerprint is never replaced.
func (s *Store) SetFingerprint(ctx context.Context, id, fingerprint string, durationMS int64, at time.Time) error {
	if strings.TrimSpace(fingerprint) == "" {
		return errors.New("fingerprint is required")
	}
	_, err := s.execWithRetry(ctx,
		`UPDATE submissions
		 SET fingerprint = COALESCE(NULLIF(fingerprint, ''), ?),
		     duration_ms = CASE WHEN ? > 0 THEN ? ELSE duration_ms END,
		     updated_at = ?
		 WHERE id = ?`,
		fingerprint, durationMS, durationMS, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("set fingerprint: %w", err)
	}
	return nil
}

// CompleteSubmission writes analysis outputs and marks the backlog row done.
// The update only applies while lockedBy still holds the processing lease, so a
// worker whose lease was reclaimed cannot overwrite a newer attempt.
func (s *Store) CompleteSubmission(ctx context.Context, id, lockedBy string, analysis *Analysis, reusedFrom string, at time.Time) (bool, error) {
	if analysis == nil {
		return false, errors.New("analysis is required")
	}
	stamp := formatTime(at)
	args := []any{}
	args = append(args, analysisArgs(analysis)...)
	args = append(args, stamp, nullableString(reusedFrom), stamp, id, nullableString(lockedBy))
	res, err := s.execWithRetry(ctx,
		`UPDATE submissions
		 SET ai_decision = ?, ai_risk_score = ?, ai_labels_json = ?, ai_transcript = ?,
		     ai_auto_tags_json = ?, ai_raw_tags_json = ?, ai_title = ?, ai_description = ?,
		     ai_model_versions_json = ?,
		     ai_status = 'done', ai_completed_at = ?, ai_reused_from = ?,
		     ai_locked_by = NULL, ai_lock_expires_at = NULL, ai_next_retry_at = NULL, ai_error = NULL,
		     updated_at = ?
		 WHERE id = ? AND ai_status = 'processing' AND ai_locked_by IS ?`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("complete submission: %w", err)
	}
	return rowsChanged(res)
}

// FindDoneSubmissionByFingerprint returns the earliest completed submission for
// the fingerprint other than excludeID, or nil when none exists.
func (s *Store) FindDoneSubmissionByFingerprint(ctx context.Context, fingerprint, excludeID string) (*Submission, error) {
	if strings.TrimSpace(fingerprint) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE fingerprint = ? AND id <> ? AND ai_status = 'done' AND ai_decision IS NOT NULL
		 ORDER BY ai_completed_at, id LIMIT 1`,
		fingerprint, excludeID,
	)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find submission by fingerprint: %w", err)
	}
	return sub, nil
}

// ApproveSubmission flips a pending submission to approved.
func (s *Store) ApproveSubmission(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE submissions SET status = 'approved', updated_at = ? WHERE id = ? AND status = 'pending'`,
		formatTime(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("approve submission: %w", err)
	}
	return rowsChanged(res)
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...any) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) submissionExists(ctx context.Context, id string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM submissions WHERE id = ?`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("check submission: %w", err)
	}
	return count > 0, nil
}

func rowsChanged(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
