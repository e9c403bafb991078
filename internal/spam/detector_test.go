package spam_test

import (
	"context"
	"testing"
	"time"

	"memalerts/internal/config"
	"memalerts/internal/logging"
	"memalerts/internal/queue"
	"memalerts/internal/spam"
	"memalerts/internal/testsupport"
)

func flag(t *testing.T, store *queue.Store, id string, decision queue.Decision) *queue.Submission {
	t.Helper()
	ctx := context.Background()
	testsupport.NewPendingSubmission(t, store, id, id+".mp4")
	if ok, err := store.ClaimLease(ctx, id, "w1", time.Now().Add(time.Minute), time.Now()); err != nil || !ok {
		t.Fatalf("ClaimLease ok=%v err=%v", ok, err)
	}
	analysis := &queue.Analysis{Decision: decision, RiskScore: 0.5, ModelVersions: map[string]string{"vision": "v1"}}
	if ok, err := store.CompleteSubmission(ctx, id, "w1", analysis, "", time.Now()); err != nil || !ok {
		t.Fatalf("CompleteSubmission ok=%v err=%v", ok, err)
	}
	sub, err := store.GetSubmission(ctx, id)
	if err != nil || sub == nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	return sub
}

func TestEvaluateCrossesThreshold(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	detector := spam.NewDetector(store, config.Spam{Enabled: true, WindowHours: 24, FlagThreshold: 2}, logging.NewNop())

	first := flag(t, store, "sub-1", queue.DecisionMedium)
	signal, err := detector.Evaluate(context.Background(), first)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if signal.Suspected || signal.Flagged != 1 {
		t.Fatalf("unexpected signal after one flag: %+v", signal)
	}

	flag(t, store, "sub-2", queue.DecisionLow)
	third := flag(t, store, "sub-3", queue.DecisionHigh)
	signal, err = detector.Evaluate(context.Background(), third)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !signal.Suspected || signal.Flagged != 2 || signal.Window != 24*time.Hour {
		t.Fatalf("expected suspicion, got %+v", signal)
	}
}

func TestEvaluateIgnoresOldFlags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	future := testsupport.NewClock(time.Now().Add(48 * time.Hour))
	detector := spam.NewDetector(store, config.Spam{Enabled: true, WindowHours: 24, FlagThreshold: 1}, logging.NewNop(), spam.WithClock(future.Now))

	sub := flag(t, store, "sub-1", queue.DecisionHigh)
	signal, err := detector.Evaluate(context.Background(), sub)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if signal.Suspected || signal.Flagged != 0 {
		t.Fatalf("expected flags outside the window to be ignored, got %+v", signal)
	}
}

func TestEvaluateDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	detector := spam.NewDetector(store, config.Spam{Enabled: false, WindowHours: 24, FlagThreshold: 1}, logging.NewNop())

	sub := flag(t, store, "sub-1", queue.DecisionHigh)
	signal, err := detector.Evaluate(context.Background(), sub)
	if err != nil || signal.Suspected {
		t.Fatalf("disabled detector must not flag, got %+v err=%v", signal, err)
	}
}
