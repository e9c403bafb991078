// Package spam watches submitters for repeated flagged content.
package spam

import (
	"context"
	"log/slog"
	"time"

	"memalerts/internal/config"
	"memalerts/internal/logging"
	"memalerts/internal/queue"
	"memalerts/internal/services"
)

// Signal is the outcome of evaluating one submitter.
type Signal struct {
	SubmitterID string
	Flagged     int
	Window      time.Duration
	Suspected   bool
}

// Detector counts a submitter's recent non-low decisions.
type Detector struct {
	store     *queue.Store
	enabled   bool
	window    time.Duration
	threshold int
	now       func() time.Time
	logger    *slog.Logger
}

// Option customizes a Detector.
type Option func(*Detector)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDetector constructs a Detector from the spam config section.
func NewDetector(store *queue.Store, cfg config.Spam, logger *slog.Logger, opts ...Option) *Detector {
	d := &Detector{
		store:     store,
		enabled:   cfg.Enabled && cfg.FlagThreshold > 0,
		window:    time.Duration(cfg.WindowHours) * time.Hour,
		threshold: cfg.FlagThreshold,
		now:       time.Now,
		logger:    logging.NewComponentLogger(logger, "spam"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Evaluate reports whether the submission's author crossed the flag threshold
// inside the configured window. Disabled detectors always return an empty Signal.
func (d *Detector) Evaluate(ctx context.Context, sub *queue.Submission) (Signal, error) {
	if d == nil || !d.enabled || sub == nil || sub.SubmitterID == "" {
		return Signal{}, nil
	}
	signal := Signal{SubmitterID: sub.SubmitterID, Window: d.window}
	flagged, err := d.store.CountFlaggedSince(ctx, sub.SubmitterID, d.now().Add(-d.window))
	if err != nil {
		return signal, services.Wrap(services.ErrTransient, "spam", "count flagged", sub.SubmitterID, err)
	}
	signal.Flagged = flagged
	signal.Suspected = flagged >= d.threshold
	if signal.Suspected {
		attrs := logging.DecisionAttrs("spam_pattern", "suspected", "flag threshold reached")
		attrs = append(attrs,
			logging.SubmissionID(sub.ID),
			logging.String("submitter_id", sub.SubmitterID),
			logging.Int("flagged", flagged),
			logging.Int("threshold", d.threshold),
			logging.Duration("window", d.window),
			logging.EventType("spam_suspected"),
		)
		d.logger.Info("submitter spam pattern detected", logging.Args(attrs...)...)
	}
	return signal, nil
}
