package lease

import (
	"strings"
	"time"
	"unicode/utf8"

	"memalerts/internal/config"
	"memalerts/internal/queue"
)

// StuckRecoveredError is written to ai_error when the watchdog reclaims a lease.
const StuckRecoveredError = "stuck_recovered"

const maxErrorLength = 500

// Backoff is an exponential retry schedule: Base * 2^(attempt-1), capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the given attempt number (1-based) may retry.
// The result never decreases as attempt grows.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	limit := b.Max
	if limit < b.Base {
		limit = b.Base
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		if delay >= limit/2 {
			return limit
		}
		delay *= 2
	}
	if delay > limit {
		return limit
	}
	return delay
}

// Policy holds the lease and retry settings.
type Policy struct {
	MaxAttempts   int
	LeaseDuration time.Duration
	Backoff       Backoff
	StaleAfter    time.Duration
}

// PolicyFromConfig builds a Policy from the moderation section.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxAttempts:   cfg.Moderation.MaxAttempts,
		LeaseDuration: cfg.LeaseDuration(),
		Backoff: Backoff{
			Base: time.Duration(cfg.Moderation.BackoffBaseSeconds) * time.Second,
			Max:  time.Duration(cfg.Moderation.BackoffMaxSeconds) * time.Second,
		},
		StaleAfter: cfg.StaleThreshold(),
	}
}

// ComputeFailureUpdate returns the row state after a failed attempt.
//
// The attempt counter is incremented; reaching maxAttempts makes the failure
// terminal (failed, no next retry). Otherwise the row returns to pending with
// a next retry time taken from the backoff schedule.
func ComputeFailureUpdate(retryCount, maxAttempts int, backoff Backoff, errText string, now time.Time) queue.FailureTransition {
	attempts := retryCount + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	update := queue.FailureTransition{
		RetryCount: attempts,
		Error:      truncateError(errText),
		At:         now,
	}
	if attempts >= maxAttempts {
		update.AIStatus = queue.AIStatusFailed
		return update
	}
	next := now.Add(backoff.Delay(attempts))
	update.AIStatus = queue.AIStatusPending
	update.NextRetryAt = &next
	return update
}

func truncateError(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "unknown error"
	}
	if len(text) <= maxErrorLength {
		return text
	}
	cut := maxErrorLength - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
