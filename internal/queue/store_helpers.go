package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// timeLayout is fixed width so lexical order in SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const submissionColumns = "id, channel_id, submitter_id, status, source_kind, file_locator, fingerprint, duration_ms, title, ai_status, ai_retry_count, ai_last_tried_at, ai_next_retry_at, ai_locked_by, ai_lock_expires_at, ai_decision, ai_risk_score, ai_labels_json, ai_transcript, ai_auto_tags_json, ai_raw_tags_json, ai_title, ai_description, ai_model_versions_json, ai_error, ai_completed_at, ai_reused_from, enqueue_reason, created_at, updated_at"

const assetColumns = "fingerprint, file_locator, duration_ms, ai_status, ai_decision, ai_risk_score, ai_labels_json, ai_transcript, ai_auto_tags_json, ai_raw_tags_json, ai_title, ai_description, ai_model_versions_json, ai_completed_at, purged_at, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

// analysisColumns holds the nullable output columns shared by submissions and assets.
type analysisColumns struct {
	decision      sql.NullString
	riskScore     sql.NullFloat64
	labels        sql.NullString
	transcript    sql.NullString
	autoTags      sql.NullString
	rawTags       sql.NullString
	title         sql.NullString
	description   sql.NullString
	modelVersions sql.NullString
}

func (c *analysisColumns) analysis() *Analysis {
	if !c.decision.Valid || c.decision.String == "" {
		return nil
	}
	return &Analysis{
		Decision:      Decision(c.decision.String),
		RiskScore:     c.riskScore.Float64,
		Labels:        decodeStrings(c.labels),
		AutoTags:      decodeStrings(c.autoTags),
		RawTags:       decodeStrings(c.rawTags),
		Transcript:    c.transcript.String,
		Title:         c.title.String,
		Description:   c.description.String,
		ModelVersions: decodeStringMap(c.modelVersions),
	}
}

// analysisArgs returns bind values in analysis column order:
// decision, risk_score, labels, transcript, auto_tags, raw_tags, title, description, model_versions.
func analysisArgs(a *Analysis) []any {
	if a == nil {
		return []any{nil, nil, nil, nil, nil, nil, nil, nil, nil}
	}
	return []any{
		string(a.Decision),
		a.RiskScore,
		encodeStrings(a.Labels),
		nullableString(a.Transcript),
		encodeStrings(a.AutoTags),
		encodeStrings(a.RawTags),
		nullableString(a.Title),
		nullableString(a.Description),
		encodeStringMap(a.ModelVersions),
	}
}

func scanSubmission(scanner rowScanner) (*Submission, error) {
	var (
		sub           Submission
		fingerprint   sql.NullString
		aiStatus      sql.NullString
		lastTriedRaw  sql.NullString
		nextRetryRaw  sql.NullString
		lockedBy      sql.NullString
		lockExpiryRaw sql.NullString
		out           analysisColumns
		aiError       sql.NullString
		completedRaw  sql.NullString
		reusedFrom    sql.NullString
		enqueueReason sql.NullString
		createdRaw    string
		updatedRaw    string
		status        string
		sourceKind    string
	)

	if err := scanner.Scan(
		&sub.ID,
		&sub.ChannelID,
		&sub.SubmitterID,
		&status,
		&sourceKind,
		&sub.FileLocator,
		&fingerprint,
		&sub.DurationMS,
		&sub.Title,
		&aiStatus,
		&sub.RetryCount,
		&lastTriedRaw,
		&nextRetryRaw,
		&lockedBy,
		&lockExpiryRaw,
		&out.decision,
		&out.riskScore,
		&out.labels,
		&out.transcript,
		&out.autoTags,
		&out.rawTags,
		&out.title,
		&out.description,
		&out.modelVersions,
		&aiError,
		&completedRaw,
		&reusedFrom,
		&enqueueReason,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	sub.Status = Status(status)
	sub.SourceKind = SourceKind(sourceKind)
	sub.Fingerprint = fingerprint.String
	sub.AIStatus = AIStatus(aiStatus.String)
	sub.LastTriedAt = parseNullTime(lastTriedRaw)
	sub.NextRetryAt = parseNullTime(nextRetryRaw)
	sub.LockedBy = lockedBy.String
	sub.LockExpiresAt = parseNullTime(lockExpiryRaw)
	sub.Analysis = out.analysis()
	sub.AIError = aiError.String
	sub.CompletedAt = parseNullTime(completedRaw)
	sub.ReusedFrom = reusedFrom.String
	sub.EnqueueReason = enqueueReason.String
	if created, err := parseTimeString(createdRaw); err == nil {
		sub.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		sub.UpdatedAt = updated
	}
	return &sub, nil
}

func scanAsset(scanner rowScanner) (*Asset, error) {
	var (
		asset        Asset
		fileLocator  sql.NullString
		aiStatus     string
		out          analysisColumns
		completedRaw sql.NullString
		purgedRaw    sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&asset.Fingerprint,
		&fileLocator,
		&asset.DurationMS,
		&aiStatus,
		&out.decision,
		&out.riskScore,
		&out.labels,
		&out.transcript,
		&out.autoTags,
		&out.rawTags,
		&out.title,
		&out.description,
		&out.modelVersions,
		&completedRaw,
		&purgedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	asset.FileLocator = fileLocator.String
	asset.AIStatus = AIStatus(aiStatus)
	asset.Analysis = out.analysis()
	asset.CompletedAt = parseNullTime(completedRaw)
	asset.PurgedAt = parseNullTime(purgedRaw)
	if created, err := parseTimeString(createdRaw); err == nil {
		asset.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		asset.UpdatedAt = updated
	}
	return &asset, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func encodeStrings(values []string) any {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStrings(value sql.NullString) []string {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(value.String), &out); err != nil {
		return nil
	}
	return out
}

func encodeStringMap(values map[string]string) any {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(data)
}

func decodeStringMap(value sql.NullString) map[string]string {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(value.String), &out); err != nil {
		return nil
	}
	return out
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
