// Package pipeline defines the contract with the external content analysis
// service and an HTTP client for it.
//
// The service turns a media file into a risk decision, tags, and generated
// text. Responses are decoded into the closed Output struct and checked by
// Validate before anything downstream may persist them; malformed or
// placeholder output is rejected with ErrInvalidOutput. The client never
// retries on its own, retry scheduling belongs to the lease manager.
package pipeline
