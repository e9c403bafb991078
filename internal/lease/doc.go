// Package lease implements the claim protocol for the moderation backlog.
//
// Manager wraps the conditional updates in the queue package with the retry
// policy: idempotent enqueue, exclusive time-bounded claims, release on
// success, and failure scheduling with exponential backoff. Sweep is the
// watchdog that reclaims leases abandoned by crashed or hung workers; it takes
// and returns an explicit WatchdogState instead of keeping run history in
// package variables.
package lease
