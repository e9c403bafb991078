// Package queue persists the moderation backlog in SQLite and exposes the
// conditional updates that drive it.
//
// Every submission row is one unit of work. The ai_status column moves
// through pending, processing, done and failed; the lease columns
// (ai_locked_by, ai_lock_expires_at) are only written by single conditional
// UPDATE statements so that concurrent workers, in this process or another,
// can never both hold the same row. Callers pass the clock explicitly so the
// lease arithmetic stays testable.
//
// Side tables hold the canonical content asset per fingerprint, quarantine
// entries for risky content, per-channel published projections, and tags that
// missed the vocabulary. Rows are never deleted by this package.
//
// Timestamps are stored as fixed-width UTC text so that SQL string comparison
// orders them chronologically. Schema changes bump the version in schema.go;
// users clear the database to adopt the new schema.
package queue
