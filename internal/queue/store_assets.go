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

// GetAsset returns the content asset for a fingerprint, or nil when none exists.
func (s *Store) GetAsset(ctx context.Context, fingerprint string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM content_assets WHERE fingerprint = ?`, fingerprint)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// UpsertAssetIfNotDone stores completed analysis on the asset for a fingerprint.
// The asset is created when absent; an asset already marked done keeps its
// original analysis and false is returned.
func (s *Store) UpsertAssetIfNotDone(ctx context.Context, fingerprint, fileLocator string, durationMS int64, analysis *Analysis, at time.Time) (bool, error) {
	if strings.TrimSpace(fingerprint) == "" {
		return false, errors.New("fingerprint is required")
	}
	if analysis == nil {
		return false, errors.New("analysis is required")
	}
	stamp := formatTime(at)
	args := []any{fingerprint, fileLocator, durationMS}
	args = append(args, analysisArgs(analysis)...)
	args = append(args, stamp, stamp, stamp)
	res, err := s.execWithRetry(ctx,
		`INSERT INTO content_assets (fingerprint, file_locator, duration_ms, ai_status,
		     ai_decision, ai_risk_score, ai_labels_json, ai_transcript, ai_auto_tags_json,
		     ai_raw_tags_json, ai_title, ai_description, ai_model_versions_json,
		     ai_completed_at, created_at, updated_at)
		 VALUES (?, ?, ?, 'done', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		     file_locator = excluded.file_locator,
		     duration_ms = excluded.duration_ms,
		     ai_status = 'done',
		     ai_decision = excluded.ai_decision,
		     ai_risk_score = excluded.ai_risk_score,
		     ai_labels_json = excluded.ai_labels_json,
		     ai_transcript = excluded.ai_transcript,
		     ai_auto_tags_json = excluded.ai_auto_tags_json,
		     ai_raw_tags_json = excluded.ai_raw_tags_json,
		     ai_title = excluded.ai_title,
		     ai_description = excluded.ai_description,
		     ai_model_versions_json = excluded.ai_model_versions_json,
		     ai_completed_at = excluded.ai_completed_at,
		     updated_at = excluded.updated_at
		 WHERE content_assets.ai_status <> 'done'`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("upsert asset: %w", err)
	}
	return rowsChanged(res)
}

// MarkAssetPurged records that the asset's media was removed. Purged assets are
// never used as a reuse source.
func (s *Store) MarkAssetPurged(ctx context.Context, fingerprint string, at time.Time) (bool, error) {
	stamp := formatTime(at)
	res, err := s.execWithRetry(ctx,
		`UPDATE content_assets SET purged_at = ?, updated_at = ? WHERE fingerprint = ? AND purged_at IS NULL`,
		stamp, stamp, fingerprint,
	)
	if err != nil {
		return false, fmt.Errorf("mark asset purged: %w", err)
	}
	return rowsChanged(res)
}

// UpsertQuarantine creates or refreshes the quarantine entry for a fingerprint.
func (s *Store) UpsertQuarantine(ctx context.Context, entry QuarantineEntry) error {
	if strings.TrimSpace(entry.Fingerprint) == "" {
		return errors.New("fingerprint is required")
	}
	if !entry.ExpiresAt.After(entry.CreatedAt) {
		return errors.New("quarantine expiry must follow creation")
	}
	return s.execWithoutResultRetry(ctx,
		`INSERT INTO quarantine_entries (fingerprint, file_locator, decision, reason, submission_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		     file_locator = excluded.file_locator,
		     decision = excluded.decision,
		     reason = excluded.reason,
		     submission_id = excluded.submission_id,
		     expires_at = MAX(quarantine_entries.expires_at, excluded.expires_at)`,
		entry.Fingerprint,
		entry.FileLocator,
		string(entry.Decision),
		entry.Reason,
		entry.SubmissionID,
		formatTime(entry.CreatedAt),
		formatTime(entry.ExpiresAt),
	)
}

// ActiveQuarantine returns the quarantine entry for a fingerprint if it has not
// expired at now.
func (s *Store) ActiveQuarantine(ctx context.Context, fingerprint string, now time.Time) (*QuarantineEntry, error) {
	if strings.TrimSpace(fingerprint) == "" {
		return nil, nil
	}
	var (
		entry      QuarantineEntry
		decision   string
		createdRaw string
		expiresRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, file_locator, decision, reason, submission_id, created_at, expires_at
		 FROM quarantine_entries WHERE fingerprint = ? AND expires_at > ?`,
		fingerprint, formatTime(now),
	).Scan(&entry.Fingerprint, &entry.FileLocator, &decision, &entry.Reason, &entry.SubmissionID, &createdRaw, &expiresRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quarantine entry: %w", err)
	}
	entry.Decision = Decision(decision)
	entry.CreatedAt, _ = parseTimeString(createdRaw)
	entry.ExpiresAt, _ = parseTimeString(expiresRaw)
	return &entry, nil
}

// EnsureChannelMeme publishes an approved submission on its channel. An existing
// projection for the same channel and fingerprint is kept as is.
func (s *Store) EnsureChannelMeme(ctx context.Context, meme ChannelMeme) (bool, error) {
	if strings.TrimSpace(meme.ChannelID) == "" || strings.TrimSpace(meme.Fingerprint) == "" {
		return false, errors.New("channel id and fingerprint are required")
	}
	if meme.ID == "" {
		meme.ID = uuid.NewString()
	}
	at := meme.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	stamp := formatTime(at)
	res, err := s.execWithRetry(ctx,
		`INSERT INTO channel_memes (id, channel_id, fingerprint, submission_id, title, price_coins,
		     search_text, ai_description, ai_tags_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(channel_id, fingerprint) DO NOTHING`,
		meme.ID,
		meme.ChannelID,
		meme.Fingerprint,
		meme.SubmissionID,
		meme.Title,
		meme.PriceCoins,
		meme.SearchText,
		meme.AIDescription,
		encodeStrings(meme.AITags),
		stamp,
		stamp,
	)
	if err != nil {
		return false, fmt.Errorf("ensure channel meme: %w", err)
	}
	return rowsChanged(res)
}

// UpdateChannelMemeText refreshes derived text on every published projection of
// a fingerprint. Titles set by the channel owner are preserved.
func (s *Store) UpdateChannelMemeText(ctx context.Context, text ChannelMemeText) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE channel_memes
		 SET search_text = ?, ai_description = ?, ai_tags_json = ?,
		     title = CASE WHEN title = '' THEN ? ELSE title END,
		     updated_at = ?
		 WHERE fingerprint = ?`,
		text.SearchText,
		text.AIDescription,
		encodeStrings(text.AITags),
		text.Title,
		formatTime(text.At),
		text.Fingerprint,
	)
	if err != nil {
		return 0, fmt.Errorf("update channel meme text: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// ListChannelMemes returns the published projections for a channel.
func (s *Store) ListChannelMemes(ctx context.Context, channelID string) ([]ChannelMeme, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel_id, fingerprint, submission_id, title, price_coins, search_text,
		     ai_description, ai_tags_json, created_at, updated_at
		 FROM channel_memes WHERE channel_id = ? ORDER BY created_at, id`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("list channel memes: %w", err)
	}
	defer rows.Close()

	var out []ChannelMeme
	for rows.Next() {
		var (
			meme       ChannelMeme
			tags       sql.NullString
			createdRaw string
			updatedRaw string
		)
		if err := rows.Scan(&meme.ID, &meme.ChannelID, &meme.Fingerprint, &meme.SubmissionID, &meme.Title,
			&meme.PriceCoins, &meme.SearchText, &meme.AIDescription, &tags, &createdRaw, &updatedRaw); err != nil {
			return nil, fmt.Errorf("scan channel meme: %w", err)
		}
		meme.AITags = decodeStrings(tags)
		meme.CreatedAt, _ = parseTimeString(createdRaw)
		meme.UpdatedAt, _ = parseTimeString(updatedRaw)
		out = append(out, meme)
	}
	return out, rows.Err()
}

// RecordUnmappedTags bumps the occurrence counters for tags that did not match
// the vocabulary.
func (s *Store) RecordUnmappedTags(ctx context.Context, submissionID string, tags []string, at time.Time) error {
	if len(tags) == 0 {
		return nil
	}
	return retryOnBusy(ensureContext(ctx), func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin unmapped tags tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stamp := formatTime(at)
		for _, tag := range tags {
			if strings.TrimSpace(tag) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO unmapped_tags (tag, occurrences, first_seen_at, last_seen_at, last_submission_id)
				 VALUES (?, 1, ?, ?, ?)
				 ON CONFLICT(tag) DO UPDATE SET
				     occurrences = unmapped_tags.occurrences + 1,
				     last_seen_at = excluded.last_seen_at,
				     last_submission_id = excluded.last_submission_id`,
				tag, stamp, stamp, submissionID,
			); err != nil {
				return fmt.Errorf("record unmapped tag %q: %w", tag, err)
			}
		}
		return tx.Commit()
	})
}

// ListUnmappedTags returns the most frequent unmapped tags.
func (s *Store) ListUnmappedTags(ctx context.Context, limit int) ([]UnmappedTag, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, occurrences, first_seen_at, last_seen_at, last_submission_id
		 FROM unmapped_tags ORDER BY occurrences DESC, tag LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unmapped tags: %w", err)
	}
	defer rows.Close()

	var out []UnmappedTag
	for rows.Next() {
		var (
			tag      UnmappedTag
			firstRaw string
			lastRaw  string
		)
		if err := rows.Scan(&tag.Tag, &tag.Occurrences, &firstRaw, &lastRaw, &tag.LastSubmissionID); err != nil {
			return nil, fmt.Errorf("scan unmapped tag: %w", err)
		}
		tag.FirstSeenAt, _ = parseTimeString(firstRaw)
		tag.LastSeenAt, _ = parseTimeString(lastRaw)
		out = append(out, tag)
	}
	return out, rows.Err()
}
