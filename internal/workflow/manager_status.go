package workflow

import (
	"context"
	"time"

	"memalerts/internal/lease"
	"memalerts/internal/logging"
	"memalerts/internal/moderation"
	"memalerts/internal/queue"
)

// ItemResult records the most recent finished attempt.
type ItemResult struct {
	SubmissionID string
	WorkerID     string
	Outcome      moderation.Kind
	Decision     queue.Decision
	Approved     bool
	ReusedFrom   string
	FinishedAt   time.Time
}

// Counters accumulate attempt results since the manager was created.
type Counters struct {
	Analyzed  int
	Reused    int
	Skipped   int
	Approved  int
	Failed    int
	Exhausted int
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	Workers    int
	InstanceID string
	LastError  string
	LastResult *ItemResult
	Counters   Counters
	Backlog    queue.BacklogCounts
	Watchdog   lease.WatchdogState
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:    m.running,
		Workers:    m.workers,
		InstanceID: m.instanceID,
		Counters:   m.counters,
		Watchdog:   m.watchdog,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastResult != nil {
		last := *m.lastResult
		summary.LastResult = &last
	}
	m.mu.RUnlock()
	summary.Watchdog.Exhausted = append([]string(nil), summary.Watchdog.Exhausted...)

	backlog, err := m.leases.Snapshot(ctx)
	if err != nil {
		m.logger.Warn("failed to read backlog counts", logging.Error(err))
	}
	summary.Backlog = backlog
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) recordResult(result ItemResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastResult = &result
	switch result.Outcome {
	case moderation.OutcomeAnalyzed:
		m.counters.Analyzed++
	case moderation.OutcomeReused:
		m.counters.Reused++
	case moderation.OutcomeSkipped:
		m.counters.Skipped++
	}
	if result.Approved {
		m.counters.Approved++
	}
}

func (m *Manager) recordFailure(terminal bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters.Failed++
	if terminal {
		m.counters.Exhausted++
	}
}
