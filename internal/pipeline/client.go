package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"memalerts/internal/config"
	"memalerts/internal/queue"
	"memalerts/internal/services"
)

const (
	analyzePath        = "/v1/analyze"
	healthPath         = "/healthz"
	maxErrorBodyBytes  = 2048
	maxOutputBodyBytes = 4 << 20
)

// Analyzer runs content analysis for one media file.
type Analyzer interface {
	Analyze(ctx context.Context, in Input) (Output, error)
}

// HTTPClient talks to the analysis service over JSON/HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewHTTPClient constructs a client from the pipeline config section. The
// request deadline comes from the caller's context.
func NewHTTPClient(cfg config.Pipeline, opts ...Option) *HTTPClient {
	client := &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type analyzeResponse struct {
	Decision        string            `json:"decision"`
	RiskScore       *float64          `json:"riskScore"`
	Labels          []string          `json:"labels"`
	AutoTags        []string          `json:"autoTags"`
	Transcript      string            `json:"transcript"`
	AITitle         string            `json:"aiTitle"`
	MetaDescription string            `json:"metaDescription"`
	ModelVersions   map[string]string `json:"modelVersions"`
}

// Analyze submits the media for analysis and returns the decoded output. The
// output is not validated here; callers run Output.Validate.
func (c *HTTPClient) Analyze(ctx context.Context, in Input) (Output, error) {
	if c.baseURL == "" {
		return Output{}, services.Wrap(services.ErrConfiguration, "pipeline", "analyze", "pipeline base_url is not configured", nil)
	}
	body, err := json.Marshal(in)
	if err != nil {
		return Output{}, fmt.Errorf("encode pipeline request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, bytes.NewReader(body))
	if err != nil {
		return Output{}, services.Wrap(services.ErrConfiguration, "pipeline", "analyze", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID(ctx))
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Output{}, services.Wrap(services.ErrTimeout, "pipeline", "analyze", "analysis call timed out", err)
		}
		return Output{}, services.Wrap(services.ErrTransient, "pipeline", "analyze", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			marker = services.ErrTransient
		}
		return Output{}, services.Wrap(marker, "pipeline", "analyze",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var decoded analyzeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxOutputBodyBytes)).Decode(&decoded); err != nil {
		return Output{}, services.Wrap(services.ErrValidation, "pipeline", "decode output", err.Error(), ErrInvalidOutput)
	}
	if decoded.RiskScore == nil {
		return Output{}, invalid("risk score missing")
	}
	return Output{
		Decision:      queue.Decision(strings.ToLower(strings.TrimSpace(decoded.Decision))),
		RiskScore:     *decoded.RiskScore,
		Labels:        decoded.Labels,
		AutoTags:      decoded.AutoTags,
		Transcript:    decoded.Transcript,
		Title:         decoded.AITitle,
		Description:   decoded.MetaDescription,
		ModelVersions: decoded.ModelVersions,
	}, nil
}

// Ping checks that the analysis service answers its health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "pipeline", "ping", "pipeline base_url is not configured", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "ping", "request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return services.Wrap(services.ErrExternalTool, "pipeline", "ping", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return nil
}

func requestID(ctx context.Context) string {
	if id, ok := services.RequestIDFromContext(ctx); ok {
		return id
	}
	return uuid.NewString()
}
