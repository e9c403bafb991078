package reuse

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"memalerts/internal/logging"
	"memalerts/internal/queue"
	"memalerts/internal/services"
)

// Provenance prefixes recorded in ai_reused_from.
const (
	SourceAsset      = "asset"
	SourceSubmission = "submission"
)

// Result is a reusable analysis and where it came from.
type Result struct {
	Analysis   *queue.Analysis
	ReusedFrom string
}

// Resolver finds and applies prior analysis for a fingerprint.
type Resolver struct {
	store  *queue.Store
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver constructs a Resolver backed by store.
func NewResolver(store *queue.Store, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		now:    time.Now,
		logger: logging.NewComponentLogger(logger, "reuse"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Find returns prior analysis for fingerprint, or nil when nothing may be
// reused. The submission itself is never its own source.
func (r *Resolver) Find(ctx context.Context, sub *queue.Submission, fingerprint string) (*Result, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if sub == nil || fingerprint == "" {
		return nil, nil
	}

	entry, err := r.store.ActiveQuarantine(ctx, fingerprint, r.now())
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "reuse", "check quarantine", fingerprint, err)
	}
	if entry != nil {
		r.logger.Debug("reuse blocked by quarantine",
			logging.SubmissionID(sub.ID),
			logging.String(logging.FieldFingerprint, fingerprint),
			logging.Time("quarantine_expires_at", entry.ExpiresAt),
		)
		return nil, nil
	}

	asset, err := r.store.GetAsset(ctx, fingerprint)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "reuse", "load asset", fingerprint, err)
	}
	if asset != nil && asset.PurgedAt != nil {
		r.logger.Debug("reuse blocked by purged asset",
			logging.SubmissionID(sub.ID),
			logging.String(logging.FieldFingerprint, fingerprint),
		)
		return nil, nil
	}
	if asset.Reusable() {
		return &Result{
			Analysis:   cloneAnalysis(asset.Analysis),
			ReusedFrom: SourceAsset + ":" + fingerprint,
		}, nil
	}

	prior, err := r.store.FindDoneSubmissionByFingerprint(ctx, fingerprint, sub.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "reuse", "find prior submission", fingerprint, err)
	}
	if prior == nil || prior.Analysis == nil {
		return nil, nil
	}
	return &Result{
		Analysis:   cloneAnalysis(prior.Analysis),
		ReusedFrom: SourceSubmission + ":" + prior.ID,
	}, nil
}

// Apply copies the result onto the submission and marks it done. It returns
// queue.ErrLeaseLost when workerID no longer holds the lease.
func (r *Resolver) Apply(ctx context.Context, sub *queue.Submission, workerID string, result *Result) error {
	if result == nil || result.Analysis == nil {
		return services.Wrap(services.ErrValidation, "reuse", "apply", "result is empty", nil)
	}
	ok, err := r.store.CompleteSubmission(ctx, sub.ID, workerID, result.Analysis, result.ReusedFrom, r.now())
	if err != nil {
		return services.Wrap(services.ErrTransient, "reuse", "complete submission", sub.ID, err)
	}
	if !ok {
		return fmt.Errorf("apply reuse to %s: %w", sub.ID, queue.ErrLeaseLost)
	}
	r.logger.Info("analysis reused",
		logging.SubmissionID(sub.ID),
		logging.String("reused_from", result.ReusedFrom),
		logging.String("decision", string(result.Analysis.Decision)),
		logging.EventType("analysis_reused"),
	)
	return nil
}

// Resolve finds a reusable result and applies it in one step. A nil result
// with a nil error means the caller must run a fresh analysis.
func (r *Resolver) Resolve(ctx context.Context, sub *queue.Submission, workerID, fingerprint string) (*Result, error) {
	result, err := r.Find(ctx, sub, fingerprint)
	if err != nil || result == nil {
		return nil, err
	}
	if err := r.Apply(ctx, sub, workerID, result); err != nil {
		return nil, err
	}
	return result, nil
}

func cloneAnalysis(a *queue.Analysis) *queue.Analysis {
	if a == nil {
		return nil
	}
	out := *a
	out.Labels = slices.Clone(a.Labels)
	out.AutoTags = slices.Clone(a.AutoTags)
	out.RawTags = slices.Clone(a.RawTags)
	out.ModelVersions = maps.Clone(a.ModelVersions)
	return &out
}
