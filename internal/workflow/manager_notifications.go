package workflow

import (
	"context"
	"errors"

	"memalerts/internal/lease"
	"memalerts/internal/logging"
)

func (m *Manager) notifyExhausted(ctx context.Context, id, lastError string) {
	if err := m.notifier.NotifyRetriesExhausted(ctx, id, lastError); err != nil {
		m.notifyFailed("retries exhausted notification failed", err)
	}
}

func (m *Manager) notifyWatchdog(ctx context.Context, state lease.WatchdogState) {
	if err := m.notifier.NotifyWatchdogRecovered(ctx, state.Recovered, len(state.Exhausted)); err != nil {
		m.notifyFailed("watchdog notification failed", err)
	}
	for _, id := range state.Exhausted {
		m.notifyExhausted(ctx, id, lease.StuckRecoveredError)
	}
}

func (m *Manager) notifyFailed(msg string, err error) {
	if errors.Is(err, context.Canceled) {
		m.logger.Debug("daemon shutting down, notification skipped")
		return
	}
	m.logger.Debug(msg, logging.Error(err))
}
