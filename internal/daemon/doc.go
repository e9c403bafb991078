// Package daemon coordinates the long-running memalerts process.
//
// It wires configuration, backlog storage, the lease manager and the workflow
// manager into a single lifecycle with flock-based locking to prevent multiple
// instances on the same data directory. The daemon runs preflight checks at
// startup, serves the read-only status API with a narrow enqueue endpoint, and
// exposes maintenance helpers (retry, database health, test notification) to
// the CLI.
//
// Keep orchestration logic here: moderation steps live in their respective
// packages while the daemon focuses on startup, shutdown and high level
// coordination.
package daemon
