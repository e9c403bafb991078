package lease_test

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"memalerts/internal/lease"
	"memalerts/internal/queue"
)

func TestBackoffDelayIsMonotonicAndCapped(t *testing.T) {
	b := lease.Backoff{Base: 30 * time.Second, Max: 30 * time.Minute}
	want := []time.Duration{
		30 * time.Second,
		time.Minute,
		2 * time.Minute,
		4 * time.Minute,
		8 * time.Minute,
		16 * time.Minute,
		30 * time.Minute,
		30 * time.Minute,
	}
	prev := time.Duration(0)
	for i, expected := range want {
		got := b.Delay(i + 1)
		if got != expected {
			t.Fatalf("Delay(%d) = %v, want %v", i+1, got, expected)
		}
		if got < prev {
			t.Fatalf("Delay(%d) decreased: %v < %v", i+1, got, prev)
		}
		prev = got
	}
	if b.Delay(1000) != 30*time.Minute {
		t.Fatalf("large attempts must stay capped, got %v", b.Delay(1000))
	}
	if b.Delay(0) != 30*time.Second {
		t.Fatalf("attempt 0 should use base delay, got %v", b.Delay(0))
	}
}

func TestComputeFailureUpdateTerminatesAtMaxAttempts(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := lease.Backoff{Base: time.Minute, Max: time.Hour}

	first := lease.ComputeFailureUpdate(0, 3, b, "boom", now)
	second := lease.ComputeFailureUpdate(1, 3, b, "boom", now)
	third := lease.ComputeFailureUpdate(2, 3, b, "boom", now)

	for i, update := range []queue.FailureTransition{first, second} {
		if update.AIStatus != queue.AIStatusPending || update.NextRetryAt == nil {
			t.Fatalf("attempt %d should be retryable: %#v", i+1, update)
		}
	}
	if !second.NextRetryAt.After(*first.NextRetryAt) {
		t.Fatalf("next retry must increase: %v then %v", first.NextRetryAt, second.NextRetryAt)
	}
	if third.RetryCount != 3 || third.AIStatus != queue.AIStatusFailed || third.NextRetryAt != nil || !third.Terminal() {
		t.Fatalf("third failure should be terminal: %#v", third)
	}
}

func TestComputeFailureUpdateTruncatesError(t *testing.T) {
	update := lease.ComputeFailureUpdate(0, 5, lease.Backoff{}, strings.Repeat("x", 2000), time.Now())
	if len(update.Error) != 500 || !strings.HasSuffix(update.Error, "...") {
		t.Fatalf("unexpected error text length %d", len(update.Error))
	}
	wide := lease.ComputeFailureUpdate(0, 5, lease.Backoff{}, strings.Repeat("é", 600), time.Now())
	if !utf8.ValidString(wide.Error) || len(wide.Error) > 500 || !strings.HasSuffix(wide.Error, "...") {
		t.Fatalf("truncation must keep valid utf-8 within bounds, got %d bytes valid=%v", len(wide.Error), utf8.ValidString(wide.Error))
	}
	if blank := lease.ComputeFailureUpdate(0, 5, lease.Backoff{}, "  ", time.Now()); blank.Error != "unknown error" {
		t.Fatalf("blank error should get placeholder text, got %q", blank.Error)
	}
}
