package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"memalerts/internal/config"
	"memalerts/internal/lease"
	"memalerts/internal/logging"
	"memalerts/internal/moderation"
	"memalerts/internal/notifications"
	"memalerts/internal/queue"
	"memalerts/internal/testsupport"
	"memalerts/internal/workflow"
)

type stubProcessor struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubProcessor) ProcessOne(_ context.Context, id, _ string) (moderation.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, id)
	if s.err != nil {
		return moderation.Outcome{}, s.err
	}
	return moderation.Outcome{Kind: moderation.OutcomeAnalyzed, Decision: queue.DecisionLow}, nil
}

func (s *stubProcessor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubNotifier struct {
	notifications.Service
	mu        sync.Mutex
	exhausted []string
	recovered int
}

func (s *stubNotifier) NotifyRetriesExhausted(_ context.Context, id, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exhausted = append(s.exhausted, id)
	return nil
}

func (s *stubNotifier) NotifyWatchdogRecovered(_ context.Context, recovered, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovered += recovered
	return nil
}

func (s *stubNotifier) exhaustedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.exhausted...)
}

type fixture struct {
	cfg       *config.Config
	store     *queue.Store
	leases    *lease.Manager
	processor *stubProcessor
	notifier  *stubNotifier
	manager   *workflow.Manager
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Workflow.PollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	f := &fixture{
		cfg:       cfg,
		store:     store,
		leases:    lease.NewManager(store, lease.PolicyFromConfig(cfg), logging.NewNop()),
		processor: &stubProcessor{},
		notifier:  &stubNotifier{Service: notifications.NewNoop()},
	}
	f.manager = workflow.NewManager(cfg, f.leases, f.processor, f.notifier, logging.NewNop())
	return f
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
