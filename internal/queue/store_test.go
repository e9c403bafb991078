package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"memalerts/internal/queue"
	"memalerts/internal/testsupport"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func lowAnalysis() *queue.Analysis {
	return &queue.Analysis{
		Decision:      queue.DecisionLow,
		RiskScore:     0.05,
		Labels:        []string{"safe"},
		AutoTags:      []string{"cats", "funny"},
		RawTags:       []string{"Cats", "lol"},
		Transcript:    "meow",
		Title:         "Cat jumps",
		Description:   "A cat misjudges a jump.",
		ModelVersions: map[string]string{"vision": "v3"},
	}
}

func TestCreateAndGetSubmission(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	sub := testsupport.NewSubmission(t, store, "sub-1", "a.mp4")
	if sub.Status != queue.StatusPending || sub.AIStatus != queue.AIStatusNone {
		t.Fatalf("unexpected initial state: %#v", sub)
	}

	missing, err := store.GetSubmission(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown id, got %#v err=%v", missing, err)
	}

	_, err = store.CreateSubmission(ctx, queue.NewSubmission{ID: "sub-1", ChannelID: "c", FileLocator: "b.mp4"}, base)
	if !errors.Is(err, queue.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestMarkPendingIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewSubmission(t, store, "sub-1", "a.mp4")

	changed, err := store.MarkPending(ctx, "sub-1", "upload", base)
	if err != nil || !changed {
		t.Fatalf("first MarkPending: changed=%v err=%v", changed, err)
	}
	for i := 0; i < 3; i++ {
		changed, err = store.MarkPending(ctx, "sub-1", "again", base)
		if err != nil || changed {
			t.Fatalf("repeat MarkPending: changed=%v err=%v", changed, err)
		}
	}

	sub, _ := store.GetSubmission(ctx, "sub-1")
	if sub.AIStatus != queue.AIStatusPending || sub.EnqueueReason != "upload" {
		t.Fatalf("unexpected state after enqueue: %#v", sub)
	}

	if _, err := store.MarkPending(ctx, "ghost", "", base); !errors.Is(err, queue.ErrSubmissionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClaimLeaseIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewPendingSubmission(t, store, "sub-1", "a.mp4")

	const claimers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			ok, err := store.ClaimLease(ctx, "sub-1", worker, base.Add(time.Minute), base)
			if err != nil {
				t.Errorf("ClaimLease: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners = append(winners, worker)
				mu.Unlock()
			}
		}(fmt.Sprintf("worker-%d", i))
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	sub, _ := store.GetSubmission(ctx, "sub-1")
	if sub.AIStatus != queue.AIStatusProcessing || sub.LockedBy != winners[0] {
		t.Fatalf("unexpected lease: %#v", sub)
	}
	if sub.LockExpiresAt == nil || !sub.LockExpiresAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected expiry %v", sub.LockExpiresAt)
	}
}

func TestClaimLeaseRespectsNextRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	sub := testsupport.NewPendingSubmission(t, store, "sub-1", "a.mp4")

	if ok, _ := store.ClaimLease(ctx, sub.ID, "w1", base.Add(time.Minute), base); !ok {
		t.Fatal("expected claim")
	}
	claimed, _ := store.GetSubmission(ctx, sub.ID)
	next := base.Add(10 * time.Minute)
	ok, err := store.ApplyFailure(ctx, sub.ID, claimed.Lease(), queue.FailureTransition{
		RetryCount:  1,
		AIStatus:    queue.AIStatusPending,
		NextRetryAt: &next,
		Error:       "boom",
		At:          base,
	})
	if err != nil || !ok {
		t.Fatalf("ApplyFailure: ok=%v err=%v", ok, err)
	}

	if ok, _ := store.ClaimLease(ctx, sub.ID, "w2", base.Add(2*time.Minute), base.Add(time.Minute)); ok {
		t.Fatal("claim before next retry should fail")
	}
	if ok, _ := store.ClaimLease(ctx, sub.ID, "w2", base.Add(20*time.Minute), next); !ok {
		t.Fatal("claim at next retry should succeed")
	}
}

func TestApplyFailureRejectsStaleObservation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	sub := testsupport.NewPendingSubmission(t, store, "sub-1", "a.mp4")

	if ok, _ := store.ClaimLease(ctx, sub.ID, "w1", base.Add(time.Minute), base); !ok {
		t.Fatal("expected claim")
	}
	stale := queue.LeaseObservation{AIStatus: queue.AIStatusProcessing, LockedBy: "someone-else"}
	ok, err := store.ApplyFailure(ctx, sub.ID, stale, queue.FailureTransition{
		RetryCount: 1, AIStatus: queue.AIStatusFailed, Error: "x", At: base,
	})
	if err != nil || ok {
		t.Fatalf("expected CAS miss, ok=%v err=%v", ok, err)
	}
	current, _ := store.GetSubmission(ctx, sub.ID)
	if current.AIStatus != queue.AIStatusProcessing || current.LockedBy != "w1" {
		t.Fatalf("row should be untouched: %#v", current)
	}
}

func TestCompleteAndReleaseLease(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	sub := testsupport.NewPendingSubmission(t, store, "sub-1", "a.mp4")
	if ok, _ := store.ClaimLease(ctx, sub.ID, "w1", base.Add(time.Minute), base); !ok {
		t.Fatal("expected claim")
	}

	if ok, _ := store.CompleteSubmission(ctx, sub.ID, "intruder", lowAnalysis(), "", base); ok {
		t.Fatal("complete by non-holder should not apply")
	}
	ok, err := store.CompleteSubmission(ctx, sub.ID, "w1", lowAnalysis(), "", base.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("CompleteSubmission: ok=%v err=%v", ok, err)
	}
	ok, err = store.ReleaseLease(ctx, sub.ID, "w1", base.Add(2*time.Second))
	if err != nil || !ok {
		t.Fatalf("ReleaseLease after complete should be idempotent: ok=%v err=%v", ok, err)
	}

	done, _ := store.GetSubmission(ctx, sub.ID)
	if done.AIStatus != queue.AIStatusDone || done.LockedBy != "" || done.LockExpiresAt != nil {
		t.Fatalf("unexpected final state: %#v", done)
	}
	if done.Analysis == nil || done.Analysis.Decision != queue.DecisionLow || done.Analysis.ModelVersions["vision"] != "v3" {
		t.Fatalf("analysis not persisted: %#v", done.Analysis)
	}
	if done.CompletedAt == nil || !done.CompletedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("unexpected completed_at %v", done.CompletedAt)
	}
}

func TestListExpiredLeases(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"fresh", "expired", "stale"} {
		testsupport.NewPendingSubmission(t, store, id, id+".mp4")
	}
	mustClaim(t, store, "fresh", base.Add(10*time.Minute), base)
	mustClaim(t, store, "expired", base.Add(time.Minute), base)
	mustClaim(t, store, "stale", base.Add(time.Hour), base.Add(-time.Hour))

	now := base.Add(5 * time.Minute)
	rows, err := store.ListExpiredLeases(ctx, now, nil, 10)
	if err != nil {
		t.Fatalf("ListExpiredLeases: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "expired" {
		t.Fatalf("expected only expired row, got %v", ids(rows))
	}

	staleBefore := now.Add(-30 * time.Minute)
	rows, err = store.ListExpiredLeases(ctx, now, &staleBefore, 10)
	if err != nil {
		t.Fatalf("ListExpiredLeases: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected expired and stale rows, got %v", ids(rows))
	}
}

func TestAssetFirstWriterWins(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := lowAnalysis()
	written, err := store.UpsertAssetIfNotDone(ctx, "fp-1", "a.mp4", 1200, first, base)
	if err != nil || !written {
		t.Fatalf("first upsert: written=%v err=%v", written, err)
	}
	second := lowAnalysis()
	second.Title = "Different"
	written, err = store.UpsertAssetIfNotDone(ctx, "fp-1", "b.mp4", 1200, second, base.Add(time.Minute))
	if err != nil || written {
		t.Fatalf("second upsert should be ignored: written=%v err=%v", written, err)
	}

	asset, err := store.GetAsset(ctx, "fp-1")
	if err != nil || asset == nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if asset.Analysis.Title != "Cat jumps" || asset.FileLocator != "a.mp4" || !asset.Reusable() {
		t.Fatalf("asset overwritten: %#v", asset)
	}

	if ok, _ := store.MarkAssetPurged(ctx, "fp-1", base); !ok {
		t.Fatal("expected purge")
	}
	asset, _ = store.GetAsset(ctx, "fp-1")
	if asset.Reusable() {
		t.Fatal("purged asset must not be reusable")
	}
}

func TestQuarantineExpiry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	err := store.UpsertQuarantine(ctx, queue.QuarantineEntry{
		Fingerprint: "fp-q",
		FileLocator: "q.mp4",
		Decision:    queue.DecisionHigh,
		Reason:      "nsfw",
		CreatedAt:   base,
		ExpiresAt:   base.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("UpsertQuarantine: %v", err)
	}

	entry, err := store.ActiveQuarantine(ctx, "fp-q", base.Add(time.Hour))
	if err != nil || entry == nil || entry.Decision != queue.DecisionHigh {
		t.Fatalf("expected active entry, got %#v err=%v", entry, err)
	}
	entry, err = store.ActiveQuarantine(ctx, "fp-q", base.Add(25*time.Hour))
	if err != nil || entry != nil {
		t.Fatalf("expected expired entry, got %#v err=%v", entry, err)
	}
}

func TestChannelMemeTextKeepsOwnerTitle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, meme := range []queue.ChannelMeme{
		{ChannelID: "c1", Fingerprint: "fp", SubmissionID: "s1", Title: "Owner title", CreatedAt: base},
		{ChannelID: "c2", Fingerprint: "fp", SubmissionID: "s2", CreatedAt: base},
	} {
		if ok, err := store.EnsureChannelMeme(ctx, meme); err != nil || !ok {
			t.Fatalf("EnsureChannelMeme: ok=%v err=%v", ok, err)
		}
	}
	if ok, _ := store.EnsureChannelMeme(ctx, queue.ChannelMeme{ChannelID: "c1", Fingerprint: "fp", SubmissionID: "s3"}); ok {
		t.Fatal("duplicate projection should be ignored")
	}

	updated, err := store.UpdateChannelMemeText(ctx, queue.ChannelMemeText{
		Fingerprint:   "fp",
		Title:         "AI title",
		SearchText:    "ai title cats",
		AIDescription: "desc",
		AITags:        []string{"cats"},
		At:            base,
	})
	if err != nil || updated != 2 {
		t.Fatalf("UpdateChannelMemeText: updated=%d err=%v", updated, err)
	}

	c1, _ := store.ListChannelMemes(ctx, "c1")
	c2, _ := store.ListChannelMemes(ctx, "c2")
	if c1[0].Title != "Owner title" || c2[0].Title != "AI title" {
		t.Fatalf("unexpected titles %q / %q", c1[0].Title, c2[0].Title)
	}
	if c1[0].SearchText != "ai title cats" || len(c1[0].AITags) != 1 {
		t.Fatalf("derived text not updated: %#v", c1[0])
	}
}

func TestRecordUnmappedTagsCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.RecordUnmappedTags(ctx, "s1", []string{"lol", "wat"}, base); err != nil {
		t.Fatalf("RecordUnmappedTags: %v", err)
	}
	if err := store.RecordUnmappedTags(ctx, "s2", []string{"lol"}, base.Add(time.Minute)); err != nil {
		t.Fatalf("RecordUnmappedTags: %v", err)
	}
	tags, err := store.ListUnmappedTags(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnmappedTags: %v", err)
	}
	if len(tags) != 2 || tags[0].Tag != "lol" || tags[0].Occurrences != 2 || tags[0].LastSubmissionID != "s2" {
		t.Fatalf("unexpected tags %#v", tags)
	}
}

func TestBacklogCountsAndRetryFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewSubmission(t, store, "idle", "idle.mp4")
	testsupport.NewPendingSubmission(t, store, "ready", "ready.mp4")
	testsupport.NewPendingSubmission(t, store, "stuck", "stuck.mp4")
	testsupport.NewPendingSubmission(t, store, "dead", "dead.mp4")
	mustClaim(t, store, "stuck", base.Add(time.Minute), base)
	mustClaim(t, store, "dead", base.Add(time.Minute), base)

	dead, _ := store.GetSubmission(ctx, "dead")
	if ok, _ := store.ApplyFailure(ctx, "dead", dead.Lease(), queue.FailureTransition{
		RetryCount: 5, AIStatus: queue.AIStatusFailed, Error: "gave up", At: base,
	}); !ok {
		t.Fatal("expected failure applied")
	}

	counts, err := store.BacklogCounts(ctx, base.Add(10*time.Minute), nil)
	if err != nil {
		t.Fatalf("BacklogCounts: %v", err)
	}
	want := queue.BacklogCounts{NeverEnqueued: 1, Pending: 1, Processing: 1, Stuck: 1, FailedTerminal: 1}
	if counts != want {
		t.Fatalf("counts = %+v, want %+v", counts, want)
	}

	sample, err := store.SampleSubmissions(ctx, queue.CategoryFailedTerminal, base, nil, 5)
	if err != nil || len(sample) != 1 || sample[0].ID != "dead" {
		t.Fatalf("unexpected sample %v err=%v", ids(sample), err)
	}

	reset, err := store.RetryFailed(ctx, base)
	if err != nil || reset != 1 {
		t.Fatalf("RetryFailed: reset=%d err=%v", reset, err)
	}
	dead, _ = store.GetSubmission(ctx, "dead")
	if dead.AIStatus != queue.AIStatusPending || dead.RetryCount != 0 {
		t.Fatalf("unexpected reset state %#v", dead)
	}
}

func TestCountFlaggedSince(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i, decision := range []queue.Decision{queue.DecisionHigh, queue.DecisionMedium, queue.DecisionLow} {
		id := fmt.Sprintf("s%d", i)
		testsupport.NewPendingSubmission(t, store, id, id+".mp4")
		mustClaim(t, store, id, base.Add(time.Minute), base)
		analysis := lowAnalysis()
		analysis.Decision = decision
		if ok, err := store.CompleteSubmission(ctx, id, "worker", analysis, "", base); err != nil || !ok {
			t.Fatalf("CompleteSubmission: ok=%v err=%v", ok, err)
		}
	}
	count, err := store.CountFlaggedSince(ctx, "viewer-1", base.Add(-time.Hour))
	if err != nil || count != 2 {
		t.Fatalf("CountFlaggedSince = %d err=%v", count, err)
	}
	count, _ = store.CountFlaggedSince(ctx, "viewer-1", base.Add(time.Hour))
	if count != 0 {
		t.Fatalf("expected window to exclude old rows, got %d", count)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health %#v", health)
	}
	if len(health.MissingTables) != 0 || len(health.MissingColumns) != 0 || health.SchemaVersion != 1 {
		t.Fatalf("schema incomplete: %#v", health)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	path := store.Path()
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	_, err = queue.OpenPath(path)
	if !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "memalerts enqueue") || !strings.Contains(err.Error(), path) {
		t.Fatalf("mismatch error should name the database and recovery step: %v", err)
	}
}

func TestOpenStampsUnversionedDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	path := store.Path()
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("DELETE FROM schema_version"); err != nil {
		t.Fatalf("clear version: %v", err)
	}
	db.Close()

	reopened, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen unversioned database: %v", err)
	}
	defer reopened.Close()
	health, err := reopened.CheckHealth(context.Background())
	if err != nil || health.SchemaVersion != 1 {
		t.Fatalf("expected stamped schema, got %+v err=%v", health, err)
	}
}

func mustClaim(t *testing.T, store *queue.Store, id string, expires, at time.Time) {
	t.Helper()
	ok, err := store.ClaimLease(context.Background(), id, "worker", expires, at)
	if err != nil || !ok {
		t.Fatalf("ClaimLease(%s): ok=%v err=%v", id, ok, err)
	}
}

func ids(subs []*queue.Submission) []string {
	out := make([]string, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub.ID)
	}
	return out
}
