package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"memalerts/internal/config"
)

const userAgent = "memalerts/0.1.0"

// Service defines the notification surface exposed to moderation components.
type Service interface {
	NotifyQuarantined(ctx context.Context, submissionID, decision, reason string) error
	NotifyRetriesExhausted(ctx context.Context, submissionID, lastError string) error
	NotifyWatchdogRecovered(ctx context.Context, recovered, exhausted int) error
	NotifySpamSuspected(ctx context.Context, submitterID string, flagged int, window time.Duration) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		toggles:  cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	toggles  config.Notifications
}

func (n *ntfyService) NotifyQuarantined(ctx context.Context, submissionID, decision, reason string) error {
	if !n.toggles.Quarantine {
		return nil
	}
	message := fmt.Sprintf("Submission %s quarantined (%s risk)", strings.TrimSpace(submissionID), strings.TrimSpace(decision))
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\nLabels: %s", message, reason)
	}
	return n.send(ctx, payload{
		title:    "memalerts - Quarantined",
		message:  message,
		tags:     []string{"memalerts", "quarantine", strings.ToLower(decision)},
		priority: "high",
	})
}

func (n *ntfyService) NotifyRetriesExhausted(ctx context.Context, submissionID, lastError string) error {
	if !n.toggles.RetriesExhausted {
		return nil
	}
	message := fmt.Sprintf("Moderation gave up on %s", strings.TrimSpace(submissionID))
	if lastError = strings.TrimSpace(lastError); lastError != "" {
		message = fmt.Sprintf("%s\nLast error: %s", message, lastError)
	}
	return n.send(ctx, payload{
		title:    "memalerts - Retries Exhausted",
		message:  message,
		tags:     []string{"memalerts", "moderation", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyWatchdogRecovered(ctx context.Context, recovered, exhausted int) error {
	if !n.toggles.Watchdog || recovered <= 0 {
		return nil
	}
	message := fmt.Sprintf("Watchdog recovered %d stuck submission(s)", recovered)
	if exhausted > 0 {
		message = fmt.Sprintf("%s, %d out of retries", message, exhausted)
	}
	return n.send(ctx, payload{
		title:   "memalerts - Stuck Leases Recovered",
		message: message,
		tags:    []string{"memalerts", "watchdog"},
	})
}

func (n *ntfyService) NotifySpamSuspected(ctx context.Context, submitterID string, flagged int, window time.Duration) error {
	if !n.toggles.Spam {
		return nil
	}
	return n.send(ctx, payload{
		title:   "memalerts - Spam Suspected",
		message: fmt.Sprintf("Submitter %s has %d flagged submissions in the last %s", strings.TrimSpace(submitterID), flagged, window.Round(time.Minute)),
		tags:    []string{"memalerts", "spam", "review"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    "memalerts - Error",
		message:  builder.String(),
		tags:     []string{"memalerts", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "memalerts - Test",
		message:  "Notification system test",
		tags:     []string{"memalerts", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyQuarantined(context.Context, string, string, string) error { return nil }
func (noopService) NotifyRetriesExhausted(context.Context, string, string) error    { return nil }
func (noopService) NotifyWatchdogRecovered(context.Context, int, int) error         { return nil }
func (noopService) NotifySpamSuspected(context.Context, string, int, time.Duration) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }

// NewNoop returns a Service that discards every notification.
func NewNoop() Service {
	return noopService{}
}
