// Package logging assembles structured slog loggers and formatting helpers used
// across memalerts services.
//
// It owns the console and JSON handlers, fans records out to the log file via
// slog-multi, and exposes context-aware helpers so moderation code tags log
// lines with submission IDs, worker IDs, and correlation IDs. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
