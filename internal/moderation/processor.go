package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"memalerts/internal/approval"
	"memalerts/internal/config"
	"memalerts/internal/logging"
	"memalerts/internal/notifications"
	"memalerts/internal/persist"
	"memalerts/internal/pipeline"
	"memalerts/internal/queue"
	"memalerts/internal/reuse"
	"memalerts/internal/services"
	"memalerts/internal/spam"
)

// Kind classifies how an attempt ended.
type Kind string

const (
	OutcomeSkipped  Kind = "skipped"
	OutcomeReused   Kind = "reused"
	OutcomeAnalyzed Kind = "analyzed"
)

// Skip reasons.
const (
	SkipStatus            = "status_not_moderatable"
	SkipUnsupportedSource = "unsupported_source"
)

// Outcome summarizes one successful ProcessOne call.
type Outcome struct {
	Kind        Kind
	SkipReason  string
	ReusedFrom  string
	Decision    queue.Decision
	RiskScore   float64
	Approved    bool
	Verdict     approval.Verdict
	Quarantined bool
	Report      persist.Report
}

// Deps carries the collaborators a Processor needs beyond configuration.
type Deps struct {
	Store    *queue.Store
	Analyzer pipeline.Analyzer
	Tags     persist.TagCanonicalizer
	Notifier notifications.Service
}

// Processor executes moderation attempts.
type Processor struct {
	store      *queue.Store
	files      FileResolver
	reuse      *reuse.Resolver
	analyzer   pipeline.Analyzer
	persister  *persist.Persister
	spam       *spam.Detector
	notifier   notifications.Service
	thresholds approval.Thresholds
	priceCoins int
	timeout    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option customizes a Processor.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source for the processor and its collaborators.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// NewProcessor wires a Processor from configuration.
func NewProcessor(cfg *config.Config, deps Deps, logger *slog.Logger, opts ...Option) *Processor {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	return &Processor{
		store:      deps.Store,
		files:      FileResolver{UploadsDir: cfg.Paths.UploadsDir, FetchTimeout: cfg.FetchTimeout(), MaxFetchBytes: cfg.MaxFetchBytes()},
		reuse:      reuse.NewResolver(deps.Store, logger, reuse.WithClock(o.now)),
		analyzer:   deps.Analyzer,
		persister:  persist.NewPersister(deps.Store, deps.Tags, cfg.QuarantineTTL(), logger, persist.WithClock(o.now)),
		spam:       spam.NewDetector(deps.Store, cfg.Spam, logger, spam.WithClock(o.now)),
		notifier:   notifier,
		thresholds: approval.ThresholdsFromConfig(cfg.Approval),
		priceCoins: cfg.Approval.DefaultPriceCoins,
		timeout:    cfg.PipelineTimeout(),
		now:        o.now,
		logger:     logging.NewComponentLogger(logger, "moderation"),
	}
}

// ProcessOne runs one attempt for a submission leased to workerID.
func (p *Processor) ProcessOne(ctx context.Context, id, workerID string) (Outcome, error) {
	ctx = services.WithSubmissionID(services.WithWorkerID(ctx, workerID), id)
	logger := logging.WithContext(ctx, p.logger)

	sub, err := p.store.GetSubmission(ctx, id)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "moderation", "load submission", id, err)
	}
	if sub == nil {
		return Outcome{}, services.Wrap(services.ErrNotFound, "moderation", "load submission", id, queue.ErrSubmissionNotFound)
	}
	if sub.AIStatus != queue.AIStatusProcessing || sub.LockedBy != workerID {
		return Outcome{}, fmt.Errorf("process %s: %w", id, queue.ErrLeaseLost)
	}

	if !sub.Status.Moderatable() {
		return p.skip(logger, sub, SkipStatus), nil
	}
	if !sub.SourceKind.Supported() {
		return p.skip(logger, sub, SkipUnsupportedSource), nil
	}

	fc, err := p.files.Resolve(ctx, sub)
	if err != nil {
		return Outcome{}, err
	}
	if fc.Computed {
		if err := p.store.SetFingerprint(ctx, sub.ID, fc.Fingerprint, fc.DurationMS, p.now()); err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "moderation", "store fingerprint", sub.ID, err)
		}
		logger.Debug("fingerprint computed", logging.String(logging.FieldFingerprint, fc.Fingerprint))
	}
	sub.Fingerprint = fc.Fingerprint
	sub.DurationMS = fc.DurationMS

	reused, err := p.reuse.Resolve(ctx, sub, workerID, fc.Fingerprint)
	if err != nil {
		return Outcome{}, err
	}
	if reused != nil {
		return Outcome{
			Kind:       OutcomeReused,
			ReusedFrom: reused.ReusedFrom,
			Decision:   reused.Analysis.Decision,
			RiskScore:  reused.Analysis.RiskScore,
		}, nil
	}

	analysis, err := p.analyze(ctx, logger, sub, fc)
	if err != nil {
		return Outcome{}, err
	}

	report, err := p.persister.Persist(ctx, sub, workerID, analysis)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{
		Kind:        OutcomeAnalyzed,
		Decision:    analysis.Decision,
		RiskScore:   analysis.RiskScore,
		Quarantined: report.Quarantined,
		Report:      report,
	}
	outcome.Verdict, outcome.Approved = p.autoApprove(ctx, logger, sub, analysis, report)
	p.sideEffects(ctx, logger, sub, analysis, report)
	return outcome, nil
}

func (p *Processor) skip(logger *slog.Logger, sub *queue.Submission, reason string) Outcome {
	logger.Info("submission skipped",
		logging.String("reason", reason),
		logging.String("status", string(sub.Status)),
		logging.String("source_kind", string(sub.SourceKind)),
		logging.EventType("submission_skipped"),
	)
	return Outcome{Kind: OutcomeSkipped, SkipReason: reason}
}

func (p *Processor) analyze(ctx context.Context, logger *slog.Logger, sub *queue.Submission, fc FileContext) (*queue.Analysis, error) {
	if p.analyzer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "moderation", "analyze", "no analysis pipeline configured", nil)
	}
	callCtx := services.WithStage(ctx, "analyze")
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, p.timeout)
		defer cancel()
	}

	started := time.Now()
	out, err := p.analyzer.Analyze(callCtx, pipeline.Input{FileLocator: sub.FileLocator, LocalPath: fc.LocalPath})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
			err = services.Wrap(services.ErrTimeout, "moderation", "analyze", fmt.Sprintf("exceeded %s", p.timeout), err)
		}
		return nil, err
	}
	if err := out.Validate(); err != nil {
		logging.WarnWithContext(logger, "analysis output rejected", "pipeline_output_invalid",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the analysis service models"),
			logging.String(logging.FieldImpact, "attempt will be retried"),
		)
		return nil, err
	}
	logger.Info("analysis completed",
		logging.String("decision", string(out.Decision)),
		logging.Float64("risk_score", out.RiskScore),
		logging.Duration("duration", time.Since(started)),
		logging.EventType("analysis_completed"),
	)
	return out.ToAnalysis(), nil
}

func (p *Processor) autoApprove(ctx context.Context, logger *slog.Logger, sub *queue.Submission, analysis *queue.Analysis, report persist.Report) (approval.Verdict, bool) {
	if sub.Status == queue.StatusApproved {
		return approval.Verdict{Reason: "already_approved"}, false
	}
	if report.Quarantined {
		return approval.Verdict{Reason: "quarantined"}, false
	}
	if sub.Fingerprint == "" {
		return approval.Verdict{Reason: "no_fingerprint"}, false
	}
	entry, err := p.store.ActiveQuarantine(ctx, sub.Fingerprint, p.now())
	if err != nil {
		p.approvalFailed(logger, "quarantine lookup failed", err)
		return approval.Verdict{}, false
	}
	if entry != nil {
		return approval.Verdict{Reason: "quarantined"}, false
	}

	verdict := approval.Decide(analysis.Decision, analysis.RiskScore, p.thresholds)
	result := "manual_review"
	if verdict.Approve {
		result = "approved"
	}
	logger.Info("auto-approval decision", logging.Args(logging.DecisionAttrs("auto_approval", result, verdict.Reason)...)...)
	if !verdict.Approve {
		return verdict, false
	}

	approved, err := p.store.ApproveSubmission(ctx, sub.ID, p.now())
	if err != nil {
		p.approvalFailed(logger, "approve submission failed", err)
		return verdict, false
	}
	if !approved {
		return approval.Verdict{Reason: "status_changed"}, false
	}

	title := strings.TrimSpace(sub.Title)
	if title == "" {
		title = analysis.Title
	}
	if _, err := p.store.EnsureChannelMeme(ctx, queue.ChannelMeme{
		ChannelID:     sub.ChannelID,
		Fingerprint:   sub.Fingerprint,
		SubmissionID:  sub.ID,
		Title:         title,
		PriceCoins:    p.priceCoins,
		SearchText:    persist.SearchText(title, analysis.Description, analysis.AutoTags),
		AIDescription: analysis.Description,
		AITags:        analysis.AutoTags,
		CreatedAt:     p.now(),
	}); err != nil {
		p.approvalFailed(logger, "publish channel meme failed", err)
	}
	return verdict, true
}

func (p *Processor) approvalFailed(logger *slog.Logger, msg string, err error) {
	logging.WarnWithContext(logger, msg, "auto_approval_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "submission stays in manual review"),
	)
}

func (p *Processor) sideEffects(ctx context.Context, logger *slog.Logger, sub *queue.Submission, analysis *queue.Analysis, report persist.Report) {
	if report.Quarantined {
		if err := p.notifier.NotifyQuarantined(ctx, sub.ID, string(analysis.Decision), strings.Join(analysis.Labels, ", ")); err != nil {
			logger.Debug("quarantine notification failed", logging.Error(err))
		}
	}
	if !analysis.Decision.AboveLowest() {
		return
	}
	signal, err := p.spam.Evaluate(ctx, sub)
	if err != nil {
		logger.Debug("spam evaluation failed", logging.Error(err))
		return
	}
	if signal.Suspected {
		if err := p.notifier.NotifySpamSuspected(ctx, signal.SubmitterID, signal.Flagged, signal.Window); err != nil {
			logger.Debug("spam notification failed", logging.Error(err))
		}
	}
}
