package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Stats returns a count of submissions grouped by backlog status. Submissions
// that were never enqueued are counted under AIStatusNone.
func (s *Store) Stats(ctx context.Context) (map[AIStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT COALESCE(ai_status, ''), COUNT(1) FROM submissions GROUP BY ai_status`)
	if err != nil {
		return nil, fmt.Errorf("backlog stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[AIStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[AIStatus(status)] += count
	}
	return stats, rows.Err()
}

// BacklogCounts summarizes the backlog at now. staleBefore mirrors the
// watchdog's staleness cutoff so the stuck count matches what a sweep would
// recover.
func (s *Store) BacklogCounts(ctx context.Context, now time.Time, staleBefore *time.Time) (BacklogCounts, error) {
	stamp := formatTime(now)
	stuck, stuckArgs := stuckPredicate(now, staleBefore)
	args := []any{stamp, stamp, stamp}
	args = append(args, stuckArgs...)

	var counts BacklogCounts
	var (
		neverEnqueued, pending, retryReady, scheduled, processing sql.NullInt64
		stuckCount, done, failedRetrying, failedTerminal          sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT
		     SUM(CASE WHEN ai_status IS NULL THEN 1 ELSE 0 END),
		     SUM(CASE WHEN ai_status = 'pending' THEN 1 ELSE 0 END),
		     SUM(CASE WHEN ai_retry_count > 0 AND `+claimablePredicate+` THEN 1 ELSE 0 END),
		     SUM(CASE WHEN ai_status = 'pending' AND ai_next_retry_at > ? THEN 1 ELSE 0 END),
		     SUM(CASE WHEN ai_status = 'processing' THEN 1 ELSE 0 END),
		     SUM(CASE WHEN `+stuck+` THEN 1 ELSE 0 END),
		     SUM(CASE WHEN ai_status = 'done' THEN 1 ELSE 0 END),
		     SUM(CASE WHEN ai_status = 'failed' AND ai_next_retry_at IS NOT NULL THEN 1 ELSE 0 END),
		     SUM(CASE WHEN ai_status = 'failed' AND ai_next_retry_at IS NULL THEN 1 ELSE 0 END)
		 FROM submissions`,
		args...,
	).Scan(&neverEnqueued, &pending, &retryReady, &scheduled, &processing, &stuckCount, &done, &failedRetrying, &failedTerminal)
	if err != nil {
		return counts, fmt.Errorf("backlog counts: %w", err)
	}
	counts.NeverEnqueued = int(neverEnqueued.Int64)
	counts.Pending = int(pending.Int64)
	counts.RetryReady = int(retryReady.Int64)
	counts.Scheduled = int(scheduled.Int64)
	counts.Processing = int(processing.Int64)
	counts.Stuck = int(stuckCount.Int64)
	counts.Done = int(done.Int64)
	counts.FailedRetrying = int(failedRetrying.Int64)
	counts.FailedTerminal = int(failedTerminal.Int64)
	return counts, nil
}

// SampleSubmissions returns up to limit submissions in a backlog category.
func (s *Store) SampleSubmissions(ctx context.Context, category BacklogCategory, now time.Time, staleBefore *time.Time, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 10
	}
	stamp := formatTime(now)
	var (
		where string
		args  []any
	)
	order := "created_at, id"
	switch category {
	case CategoryPending:
		where = `ai_status = 'pending' AND (ai_next_retry_at IS NULL OR ai_next_retry_at <= ?)`
		args = []any{stamp}
	case CategoryScheduled:
		where = `ai_status = 'pending' AND ai_next_retry_at > ?`
		args = []any{stamp}
		order = "ai_next_retry_at, id"
	case CategoryProcessing:
		where = `ai_status = 'processing'`
		order = "ai_last_tried_at, id"
	case CategoryStuck:
		where, args = stuckPredicate(now, staleBefore)
		order = "ai_last_tried_at, id"
	case CategoryFailedTerminal:
		where = `ai_status = 'failed' AND ai_next_retry_at IS NULL`
		order = "updated_at DESC, id"
	default:
		return nil, fmt.Errorf("unknown backlog category %q", category)
	}
	args = append(args, limit)
	return s.querySubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE `+where+` ORDER BY `+order+` LIMIT ?`,
		args...,
	)
}

// CountFlaggedSince counts a submitter's analyses above the lowest risk tier
// completed at or after since.
func (s *Store) CountFlaggedSince(ctx context.Context, submitterID string, since time.Time) (int, error) {
	if strings.TrimSpace(submitterID) == "" {
		return 0, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM submissions
		 WHERE submitter_id = ? AND ai_status = 'done'
		   AND ai_decision IN ('medium', 'high') AND ai_completed_at >= ?`,
		submitterID, formatTime(since),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count flagged submissions: %w", err)
	}
	return count, nil
}

var expectedColumns = map[string][]string{
	"submissions": {
		"id", "channel_id", "submitter_id", "status", "source_kind", "file_locator",
		"fingerprint", "duration_ms", "title", "ai_status", "ai_retry_count",
		"ai_last_tried_at", "ai_next_retry_at", "ai_locked_by", "ai_lock_expires_at",
		"ai_decision", "ai_risk_score", "ai_labels_json", "ai_transcript",
		"ai_auto_tags_json", "ai_raw_tags_json", "ai_title", "ai_description",
		"ai_model_versions_json", "ai_error", "ai_completed_at", "ai_reused_from",
		"enqueue_reason", "created_at", "updated_at",
	},
	"content_assets":     {"fingerprint", "ai_status", "ai_decision", "purged_at"},
	"quarantine_entries": {"fingerprint", "decision", "expires_at"},
	"channel_memes":      {"id", "channel_id", "fingerprint", "search_text", "ai_tags_json"},
	"unmapped_tags":      {"tag", "occurrences"},
}

// CheckHealth returns diagnostic information about the backlog database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("backlog database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat backlog database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("backlog database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("backlog database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping backlog database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil && !errors.Is(err, sql.ErrNoRows) {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	tables := make([]string, 0, len(expectedColumns))
	for table := range expectedColumns {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		columns, err := s.tableColumns(connCtx, table)
		if err != nil {
			health.Error = err.Error()
			return health, err
		}
		if len(columns) == 0 {
			health.MissingTables = append(health.MissingTables, table)
			continue
		}
		health.TablesPresent = append(health.TablesPresent, table)
		for _, col := range expectedColumns[table] {
			if _, ok := columns[col]; !ok {
				health.MissingColumns = append(health.MissingColumns, table+"."+col)
			}
		}
	}

	if len(health.MissingTables) == 0 {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM submissions").Scan(&health.TotalSubmissions); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count submissions: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]struct{})
	for rows.Next() {
		var (
			cid     int
			name    string
			typeStr string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info %s: %w", table, err)
	}
	return columns, nil
}
