package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"memalerts/internal/config"
	"memalerts/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newRecorder(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), requests...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyQuarantined(context.Background(), "sub-1", "high", ""); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, requests := newRecorder(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyQuarantined(ctx, "sub-1", "high", "violence"); err != nil {
		t.Fatalf("NotifyQuarantined: %v", err)
	}
	if err := svc.NotifyRetriesExhausted(ctx, "sub-2", "timeout: pipeline"); err != nil {
		t.Fatalf("NotifyRetriesExhausted: %v", err)
	}
	if err := svc.NotifyWatchdogRecovered(ctx, 3, 1); err != nil {
		t.Fatalf("NotifyWatchdogRecovered: %v", err)
	}
	if err := svc.NotifySpamSuspected(ctx, "viewer-9", 4, 24*time.Hour); err != nil {
		t.Fatalf("NotifySpamSuspected: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("disk full"), "daemon"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}

	got := requests()
	if len(got) != 5 {
		t.Fatalf("expected 5 requests, got %d", len(got))
	}
	want := []captured{
		{title: "memalerts - Quarantined", tags: "memalerts,quarantine,high", priority: "high", body: "Submission sub-1 quarantined (high risk)\nLabels: violence"},
		{title: "memalerts - Retries Exhausted", tags: "memalerts,moderation,failed", priority: "high", body: "Moderation gave up on sub-2\nLast error: timeout: pipeline"},
		{title: "memalerts - Stuck Leases Recovered", tags: "memalerts,watchdog", body: "Watchdog recovered 3 stuck submission(s), 1 out of retries"},
		{title: "memalerts - Spam Suspected", tags: "memalerts,spam,review", body: "Submitter viewer-9 has 4 flagged submissions in the last 24h0m0s"},
		{title: "memalerts - Error", tags: "memalerts,error,alert", priority: "high", body: "Error with daemon: disk full"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("request %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNtfyServiceRespectsToggles(t *testing.T) {
	srv, requests := newRecorder(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Quarantine = false
	cfg.Notifications.Watchdog = false
	svc := notifications.NewService(&cfg)

	_ = svc.NotifyQuarantined(context.Background(), "sub-1", "high", "")
	_ = svc.NotifyWatchdogRecovered(context.Background(), 2, 0)
	if n := len(requests()); n != 0 {
		t.Fatalf("disabled events must not be sent, got %d", n)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
