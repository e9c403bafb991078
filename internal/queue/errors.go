package queue

import "errors"

var (
	// ErrSubmissionNotFound is returned when an operation targets an unknown submission id.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrLeaseLost indicates the caller no longer holds the lease it is trying to act on.
	// The row has either been reclaimed by the watchdog or claimed by another worker.
	ErrLeaseLost = errors.New("lease no longer held")

	// ErrDuplicateSubmission is returned when registering an id that already exists.
	ErrDuplicateSubmission = errors.New("submission already exists")
)
