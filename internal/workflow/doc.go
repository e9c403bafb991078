// Package workflow drives the moderation backlog.
//
// The Manager runs a fixed pool of worker goroutines. Each worker claims the
// next ready submission through the lease manager, hands it to the moderation
// processor, and then either releases the lease or records the failure so the
// retry policy can schedule another attempt. A separate watchdog loop sweeps
// abandoned leases on its own ticker and reports recoveries.
//
// Correctness across processes relies only on the lease manager's conditional
// updates; nothing in this package locks rows.
package workflow
