package api

import (
	"testing"
	"time"

	"memalerts/internal/lease"
	"memalerts/internal/moderation"
	"memalerts/internal/queue"
	"memalerts/internal/workflow"
)

func TestRedactLocator(t *testing.T) {
	cases := map[string]string{
		"":                                    "",
		"clip.mp4":                            "clip.mp4",
		"uploads/2026/03/clip.mp4":            "clip.mp4",
		"/srv/memes/private/clip.webm":        "clip.webm",
		"https://cdn.example.com/a/b.gif?x=1": "b.gif",
		"https://cdn.example.com/":            "",
	}
	for in, want := range cases {
		if got := RedactLocator(in); got != want {
			t.Fatalf("RedactLocator(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromSubmissionIncludesAnalysis(t *testing.T) {
	completed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sub := &queue.Submission{
		ID:          "sub-1",
		ChannelID:   "chan",
		Status:      queue.StatusApproved,
		SourceKind:  queue.SourceUpload,
		FileLocator: "uploads/x/clip.mp4",
		AIStatus:    queue.AIStatusDone,
		CompletedAt: &completed,
		ReusedFrom:  "asset:abc",
		Analysis: &queue.Analysis{
			Decision:   queue.DecisionLow,
			RiskScore:  0.1,
			AutoTags:   []string{"cats"},
			Transcript: "meow",
		},
	}
	dto := FromSubmission(sub)
	if dto.File != "clip.mp4" || dto.Status != "approved" || dto.AIStatus != "done" {
		t.Fatalf("unexpected dto: %#v", dto)
	}
	if dto.CompletedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected completedAt %q", dto.CompletedAt)
	}
	if dto.Analysis == nil || dto.Analysis.Decision != "low" || !dto.Analysis.HasTranscript || dto.Analysis.Tags[0] != "cats" {
		t.Fatalf("unexpected analysis: %#v", dto.Analysis)
	}
	if dto.ReusedFrom != "asset:abc" {
		t.Fatalf("unexpected reusedFrom %q", dto.ReusedFrom)
	}
}

func TestFromStatusSummary(t *testing.T) {
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	summary := workflow.StatusSummary{
		Running:    true,
		Workers:    2,
		InstanceID: "host:1:abcd",
		LastResult: &workflow.ItemResult{
			SubmissionID: "sub-1",
			WorkerID:     "host:1:abcd/w0",
			Outcome:      moderation.OutcomeReused,
			FinishedAt:   finished,
		},
		Counters: workflow.Counters{Analyzed: 3, Reused: 1},
		Backlog:  queue.BacklogCounts{Pending: 4, Stuck: 1},
		Watchdog: lease.WatchdogState{Runs: 2, Recovered: 1, TotalRecovered: 3, Exhausted: []string{"sub-9"}},
	}
	status := FromStatusSummary(summary)
	if !status.Running || status.Workers != 2 || status.Counters.Analyzed != 3 {
		t.Fatalf("unexpected status: %#v", status)
	}
	if status.LastResult == nil || status.LastResult.Outcome != "reused" {
		t.Fatalf("unexpected last result: %#v", status.LastResult)
	}
	if status.Backlog.Pending != 4 || status.Watchdog.TotalRecovered != 3 || status.Watchdog.Exhausted[0] != "sub-9" {
		t.Fatalf("unexpected backlog/watchdog: %#v", status)
	}
	if status.Watchdog.LastRunAt != "" {
		t.Fatalf("expected empty lastRunAt for zero time, got %q", status.Watchdog.LastRunAt)
	}
}

func TestFromDatabaseHealth(t *testing.T) {
	healthy := FromDatabaseHealth(queue.DatabaseHealth{DatabaseExists: true, DatabaseReadable: true, IntegrityCheck: true})
	if !healthy.Healthy {
		t.Fatalf("expected healthy: %#v", healthy)
	}
	broken := FromDatabaseHealth(queue.DatabaseHealth{DatabaseExists: true, DatabaseReadable: true, IntegrityCheck: true, MissingTables: []string{"channel_memes"}})
	if broken.Healthy {
		t.Fatalf("expected unhealthy: %#v", broken)
	}
}
