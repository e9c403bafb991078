package testsupport

import (
	"context"
	"testing"
	"time"

	"memalerts/internal/config"
	"memalerts/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSubmission registers an upload submission for tests using the provided store.
func NewSubmission(t testing.TB, store *queue.Store, id, locator string) *queue.Submission {
	t.Helper()

	sub, err := store.CreateSubmission(context.Background(), queue.NewSubmission{
		ID:          id,
		ChannelID:   "channel-1",
		SubmitterID: "viewer-1",
		SourceKind:  queue.SourceUpload,
		FileLocator: locator,
		Title:       "test meme",
	}, time.Now())
	if err != nil {
		t.Fatalf("store.CreateSubmission: %v", err)
	}
	return sub
}

// NewPendingSubmission registers a submission and enqueues it.
func NewPendingSubmission(t testing.TB, store *queue.Store, id, locator string) *queue.Submission {
	t.Helper()

	sub := NewSubmission(t, store, id, locator)
	if _, err := store.MarkPending(context.Background(), sub.ID, "test", time.Now()); err != nil {
		t.Fatalf("store.MarkPending: %v", err)
	}
	fresh, err := store.GetSubmission(context.Background(), sub.ID)
	if err != nil || fresh == nil {
		t.Fatalf("store.GetSubmission: %v", err)
	}
	return fresh
}
