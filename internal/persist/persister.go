package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"memalerts/internal/logging"
	"memalerts/internal/queue"
	"memalerts/internal/services"
	"memalerts/internal/tags"
)

const maxSearchTextLength = 2000

// TagCanonicalizer maps free-form tags onto the controlled vocabulary.
type TagCanonicalizer interface {
	Canonicalize(raw []string) tags.Result
}

// Report describes what a Persist call wrote beyond the submission row.
type Report struct {
	AssetWritten        bool
	ProjectionsUpdated  int64
	Quarantined         bool
	QuarantineExpiresAt time.Time
	UnmappedTags        []string
	Warnings            []string
}

// Degraded reports whether any secondary write failed.
func (r Report) Degraded() bool {
	return len(r.Warnings) > 0
}

// Persister writes analysis results.
type Persister struct {
	store         *queue.Store
	tags          TagCanonicalizer
	quarantineTTL time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// Option customizes a Persister.
type Option func(*Persister)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Persister) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPersister constructs a Persister. A nil canonicalizer keeps tags as the
// pipeline returned them.
func NewPersister(store *queue.Store, canon TagCanonicalizer, quarantineTTL time.Duration, logger *slog.Logger, opts ...Option) *Persister {
	p := &Persister{
		store:         store,
		tags:          canon,
		quarantineTTL: quarantineTTL,
		now:           time.Now,
		logger:        logging.NewComponentLogger(logger, "persist"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Persist stores analysis for sub, which workerID must hold leased. The
// analysis tags are canonicalized in place.
func (p *Persister) Persist(ctx context.Context, sub *queue.Submission, workerID string, analysis *queue.Analysis) (Report, error) {
	var report Report
	if sub == nil || analysis == nil {
		return report, services.Wrap(services.ErrValidation, "persist", "persist", "submission and analysis are required", nil)
	}
	now := p.now()

	report.UnmappedTags = p.canonicalize(analysis)

	ok, err := p.store.CompleteSubmission(ctx, sub.ID, workerID, analysis, "", now)
	if err != nil {
		return report, services.Wrap(services.ErrTransient, "persist", "complete submission", sub.ID, err)
	}
	if !ok {
		return report, fmt.Errorf("persist %s: %w", sub.ID, queue.ErrLeaseLost)
	}

	fingerprint := strings.TrimSpace(sub.Fingerprint)
	if fingerprint == "" {
		p.warn(&report, sub.ID, "secondary writes skipped", "persist_no_fingerprint",
			errors.New("submission has no fingerprint"))
	} else {
		written, err := p.store.UpsertAssetIfNotDone(ctx, fingerprint, sub.FileLocator, sub.DurationMS, analysis, now)
		if err != nil {
			p.warn(&report, sub.ID, "content asset write failed", "asset_persist_failed", err)
		}
		report.AssetWritten = written

		updated, err := p.store.UpdateChannelMemeText(ctx, queue.ChannelMemeText{
			Fingerprint:   fingerprint,
			Title:         analysis.Title,
			SearchText:    SearchText(analysis.Title, analysis.Description, analysis.AutoTags),
			AIDescription: analysis.Description,
			AITags:        analysis.AutoTags,
			At:            now,
		})
		if err != nil {
			p.warn(&report, sub.ID, "channel projection refresh failed", "projection_persist_failed", err)
		}
		report.ProjectionsUpdated = updated

		if analysis.Decision.AboveLowest() {
			expires := now.Add(p.quarantineTTL)
			err := p.store.UpsertQuarantine(ctx, queue.QuarantineEntry{
				Fingerprint:  fingerprint,
				FileLocator:  sub.FileLocator,
				Decision:     analysis.Decision,
				Reason:       strings.Join(analysis.Labels, ","),
				SubmissionID: sub.ID,
				CreatedAt:    now,
				ExpiresAt:    expires,
			})
			if err != nil {
				p.warn(&report, sub.ID, "quarantine write failed", "quarantine_persist_failed", err)
			} else {
				report.Quarantined = true
				report.QuarantineExpiresAt = expires
			}
		}
	}

	if len(report.UnmappedTags) > 0 {
		if err := p.store.RecordUnmappedTags(ctx, sub.ID, report.UnmappedTags, now); err != nil {
			p.warn(&report, sub.ID, "unmapped tag tracking failed", "unmapped_tags_failed", err)
		}
	}

	p.logger.Info("analysis persisted",
		logging.SubmissionID(sub.ID),
		logging.String("decision", string(analysis.Decision)),
		logging.Float64("risk_score", analysis.RiskScore),
		logging.Bool("asset_written", report.AssetWritten),
		logging.Int64("projections_updated", report.ProjectionsUpdated),
		logging.Bool("quarantined", report.Quarantined),
		logging.Int("warnings", len(report.Warnings)),
		logging.EventType("analysis_persisted"),
	)
	return report, nil
}

func (p *Persister) canonicalize(analysis *queue.Analysis) []string {
	if len(analysis.RawTags) == 0 {
		analysis.RawTags = append([]string(nil), analysis.AutoTags...)
	}
	if p.tags == nil {
		return nil
	}
	result := p.tags.Canonicalize(analysis.RawTags)
	analysis.AutoTags = result.Tags
	return result.Unmapped
}

func (p *Persister) warn(report *Report, submissionID, msg, event string, err error) {
	report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %v", msg, err))
	logging.WarnWithContext(p.logger, msg, event,
		logging.SubmissionID(submissionID),
		logging.Error(err),
		logging.String(logging.FieldImpact, "submission analysis is stored; secondary tables may lag"),
	)
}

// SearchText builds the lowercase text index for a channel projection.
func SearchText(title, description string, tagList []string) string {
	parts := make([]string, 0, len(tagList)+2)
	parts = append(parts, title, description)
	parts = append(parts, tagList...)
	text := strings.ToLower(strings.Join(strings.Fields(strings.Join(parts, " ")), " "))
	if len(text) > maxSearchTextLength {
		cut := maxSearchTextLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
		if i := strings.LastIndexByte(text, ' '); i > 0 {
			text = text[:i]
		}
	}
	return text
}
