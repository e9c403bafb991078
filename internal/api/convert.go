package api

import (
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"memalerts/internal/lease"
	"memalerts/internal/queue"
	"memalerts/internal/workflow"
)

// FromSubmission converts a stored submission to its API representation.
func FromSubmission(sub *queue.Submission) Submission {
	if sub == nil {
		return Submission{}
	}
	dto := Submission{
		ID:            sub.ID,
		ChannelID:     sub.ChannelID,
		SubmitterID:   sub.SubmitterID,
		Status:        string(sub.Status),
		SourceKind:    string(sub.SourceKind),
		File:          RedactLocator(sub.FileLocator),
		Fingerprint:   sub.Fingerprint,
		Title:         sub.Title,
		AIStatus:      aiStatusLabel(sub.AIStatus),
		RetryCount:    sub.RetryCount,
		LastTriedAt:   formatOptional(sub.LastTriedAt),
		NextRetryAt:   formatOptional(sub.NextRetryAt),
		LockedBy:      sub.LockedBy,
		LockExpiresAt: formatOptional(sub.LockExpiresAt),
		Terminal:      sub.TerminalFailure(),
		Error:         sub.AIError,
		ReusedFrom:    sub.ReusedFrom,
		EnqueueReason: sub.EnqueueReason,
		CompletedAt:   formatOptional(sub.CompletedAt),
		CreatedAt:     formatTime(sub.CreatedAt),
		UpdatedAt:     formatTime(sub.UpdatedAt),
	}
	if a := sub.Analysis; a != nil {
		dto.Analysis = &Analysis{
			Decision:      string(a.Decision),
			RiskScore:     a.RiskScore,
			Labels:        slices.Clone(a.Labels),
			Tags:          slices.Clone(a.AutoTags),
			RawTags:       slices.Clone(a.RawTags),
			Title:         a.Title,
			Description:   a.Description,
			HasTranscript: strings.TrimSpace(a.Transcript) != "",
			ModelVersions: a.ModelVersions,
		}
	}
	return dto
}

// FromSubmissions converts a slice of submissions into API DTOs.
func FromSubmissions(subs []*queue.Submission) []Submission {
	out := make([]Submission, 0, len(subs))
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		out = append(out, FromSubmission(sub))
	}
	return out
}

// FromBacklogCounts converts backlog counts into their API form.
func FromBacklogCounts(c queue.BacklogCounts) BacklogCounts {
	return BacklogCounts{
		NeverEnqueued:  c.NeverEnqueued,
		Pending:        c.Pending,
		RetryReady:     c.RetryReady,
		Scheduled:      c.Scheduled,
		Processing:     c.Processing,
		Stuck:          c.Stuck,
		Done:           c.Done,
		FailedRetrying: c.FailedRetrying,
		FailedTerminal: c.FailedTerminal,
	}
}

// FromWatchdogState converts sweep history into its API form.
func FromWatchdogState(s lease.WatchdogState) WatchdogStatus {
	return WatchdogStatus{
		Runs:           s.Runs,
		LastRunAt:      formatTime(s.LastRunAt),
		StuckFound:     s.StuckFound,
		Recovered:      s.Recovered,
		Exhausted:      slices.Clone(s.Exhausted),
		TotalRecovered: s.TotalRecovered,
		LastError:      s.LastError,
	}
}

// FromStatusSummary converts workflow status into its API form.
func FromStatusSummary(s workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:    s.Running,
		Workers:    s.Workers,
		InstanceID: s.InstanceID,
		LastError:  s.LastError,
		Counters: Counters{
			Analyzed:  s.Counters.Analyzed,
			Reused:    s.Counters.Reused,
			Skipped:   s.Counters.Skipped,
			Approved:  s.Counters.Approved,
			Failed:    s.Counters.Failed,
			Exhausted: s.Counters.Exhausted,
		},
		Backlog:  FromBacklogCounts(s.Backlog),
		Watchdog: FromWatchdogState(s.Watchdog),
	}
	if r := s.LastResult; r != nil {
		status.LastResult = &ItemResult{
			SubmissionID: r.SubmissionID,
			WorkerID:     r.WorkerID,
			Outcome:      string(r.Outcome),
			Decision:     string(r.Decision),
			Approved:     r.Approved,
			ReusedFrom:   r.ReusedFrom,
			FinishedAt:   formatTime(r.FinishedAt),
		}
	}
	return status
}

// FromDatabaseHealth converts database diagnostics into their API form.
func FromDatabaseHealth(h queue.DatabaseHealth) DatabaseHealth {
	return DatabaseHealth{
		Path:             h.DBPath,
		Exists:           h.DatabaseExists,
		Readable:         h.DatabaseReadable,
		SchemaVersion:    h.SchemaVersion,
		MissingTables:    slices.Clone(h.MissingTables),
		MissingColumns:   slices.Clone(h.MissingColumns),
		IntegrityCheck:   h.IntegrityCheck,
		TotalSubmissions: h.TotalSubmissions,
		Error:            h.Error,
		Healthy: h.DatabaseExists && h.DatabaseReadable && h.IntegrityCheck &&
			len(h.MissingTables) == 0 && len(h.MissingColumns) == 0 && h.Error == "",
	}
}

// RedactLocator reduces a file locator to its base name. URLs lose their
// scheme, host and query string.
func RedactLocator(locator string) string {
	trimmed := strings.TrimSpace(locator)
	if trimmed == "" {
		return ""
	}
	if strings.Contains(trimmed, "://") {
		if u, err := url.Parse(trimmed); err == nil {
			name := path.Base(u.Path)
			if name == "/" || name == "." {
				return ""
			}
			return name
		}
		return ""
	}
	name := filepath.Base(filepath.FromSlash(trimmed))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

func aiStatusLabel(status queue.AIStatus) string {
	if status == queue.AIStatusNone {
		return "none"
	}
	return string(status)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
