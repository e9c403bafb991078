// Package moderation runs one leased submission through the moderation
// pipeline.
//
// Processor.ProcessOne loads the submission, resolves its media and content
// fingerprint, reuses prior analysis when possible, and otherwise calls the
// external analysis service under a deadline. Validated output is handed to
// the persister and then to the auto-approval policy. Spam evaluation and
// notifications run last and never fail the attempt.
//
// The caller owns the lease: ProcessOne never releases it or schedules a
// retry. A nil error means the caller should release; any other error should
// be recorded with lease.Manager.FailAndSchedule.
package moderation
