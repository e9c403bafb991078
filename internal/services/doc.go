// Package services defines shared error markers and context helpers consumed by
// the moderation pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp submission IDs, worker IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures keep their
//     classification as they cross package boundaries.
package services
