// Package api defines wire-format types and converters for the HTTP status
// API and the CLI's --json output. It translates internal backlog models into
// transport-friendly DTOs so consumers never couple to queue types.
//
// # Key Types
//
// Submission: transport representation of a submission with its backlog
// state, lease, retry schedule and (when present) analysis outputs.
//
// Backlog: counts per backlog category plus bounded samples of each.
//
// WorkflowStatus: worker pool state, counters, last result and watchdog
// history.
//
// # Converters
//
// FromSubmission: queue.Submission -> Submission with the file locator reduced
// to its base name.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Enums are exposed as lowercase strings and a
// never-enqueued submission reports aiStatus "none". Timestamps use RFC3339
// with milliseconds. File locators are never returned in full because they
// may carry storage layout or signed URLs.
package api
