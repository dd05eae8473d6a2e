// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeranaias/coprelay/internal/copilot"
	"github.com/jeranaias/coprelay/internal/model"
	"github.com/jeranaias/coprelay/internal/telemetry"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is where a locally running relay listens.
	DefaultBaseURL = "http://127.0.0.1:8788"

	// DefaultTimeout bounds request/response calls. It must outlast the
	// relay's own run budget (5 minutes by default) or long CLI runs
	// would be cut off client-side first.
	DefaultTimeout = 330 * time.Second

	// DefaultMaxRetries is the total number of attempts for retryable
	// failures.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff delay.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize caps response bodies. Responses carry base64
	// artifacts, so this is far larger than the text alone needs.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 32 * 1024 * 1024

	// userAgent identifies this client to the relay.
	userAgent = "coprelay-client/1.0"
)

// PERFORMANCE: One pooled transport shared by every client keeps
// connections reusable across commands in the same process.
var sharedTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnauthorized indicates the relay rejected the API key.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the relay throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrRunTimeout indicates the relay's CLI run hit its time budget.
	ErrRunTimeout = errors.New("copilot run timed out")
)

// APIError is a structured error returned by the relay.
type APIError struct {
	Status  int
	Message string
	Details string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("relay error (HTTP %d): %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("relay error (HTTP %d): %s", e.Status, e.Message)
}

// apiErrorBody is the relay's JSON error envelope.
type apiErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// decodeError converts a non-200 relay response into a Go error,
// mapping well-known statuses onto sentinels.
func decodeError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	details := ""

	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		msg = parsed.Error
		details = parsed.Details
	}

	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	case http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrRunTimeout, msg)
	default:
		return &APIError{Status: status, Message: msg, Details: details}
	}
}

// isRetryable reports whether a failed attempt is worth repeating.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	// A timed-out run would only time out again under the same budget.
	if errors.Is(err, ErrRunTimeout) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// calculateBackoff returns the delay before the next retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to a coprelay server.
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	timeout    time.Duration

	// httpClient serves bounded request/response calls; streamClient has
	// no client timeout because streams are context-controlled.
	httpClient   *http.Client
	streamClient *http.Client
}

// New creates a client for the given base URL. An empty URL targets the
// default local relay address.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		maxRetries: DefaultMaxRetries,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{
			Transport: sharedTransport,
			Timeout:   DefaultTimeout,
		},
		streamClient: &http.Client{
			Transport: sharedTransport,
		},
	}
}

// WithAPIKey sets the key sent as a bearer token.
func (c *Client) WithAPIKey(key string) *Client {
	c.apiKey = strings.TrimSpace(key)
	return c
}

// WithTimeout sets the request timeout for non-streaming calls.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	c.httpClient.Timeout = timeout
	return c
}

// WithMaxRetries sets the total number of attempts for retryable errors.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	c.maxRetries = maxRetries
	return c
}

// BaseURL returns the configured relay address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// setHeaders sets the headers common to every relay request.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// readBody reads a response body under the size cap.
func readBody(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// get performs a single GET and returns the body and status code.
func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// =============================================================================
// CHAT
// =============================================================================

// Chat sends a chat request and returns the completed response. Transient
// failures (429, 5xx, transport errors) are retried with exponential
// backoff; run timeouts are not.
func (c *Client) Chat(ctx context.Context, req *copilot.ChatRequest) (*copilot.ChatResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		resp, err := c.doChat(ctx, payload)
		if err != nil {
			if isRetryable(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doChat performs a single chat attempt.
func (c *Client) doChat(ctx context.Context, payload []byte) (*copilot.ChatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, body)
	}

	var chatResp copilot.ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &chatResp, nil
}

// =============================================================================
// HEALTH / MODELS / STATS
// =============================================================================

// HealthReport mirrors the relay's health endpoint body.
type HealthReport struct {
	Status  string              `json:"status"`
	Service string              `json:"service"`
	Version string              `json:"version"`
	Copilot copilot.ProbeResult `json:"copilot"`
}

// Healthy reports whether the relay considers itself fully operational.
func (h *HealthReport) Healthy() bool {
	return h.Status == "healthy"
}

// Health fetches the relay's health report. A degraded relay answers 503
// with a well-formed report, so the body is decoded before the status
// code is judged.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	body, status, err := c.get(ctx, "/api/health")
	if err != nil {
		return nil, err
	}

	var report HealthReport
	if err := json.Unmarshal(body, &report); err != nil {
		if status != http.StatusOK {
			return nil, decodeError(status, body)
		}
		return nil, fmt.Errorf("parse health response: %w", err)
	}
	return &report, nil
}

// Models fetches the model catalog from the relay.
func (c *Client) Models(ctx context.Context) ([]model.ModelInfo, error) {
	body, status, err := c.get(ctx, "/api/models")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(status, body)
	}

	var resp struct {
		Models []model.ModelInfo `json:"models"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse models response: %w", err)
	}
	return resp.Models, nil
}

// ServerStats mirrors the server counters in the stats endpoint body.
type ServerStats struct {
	UptimeSeconds float64          `json:"uptime_seconds"`
	Requests      int64            `json:"requests"`
	Errors        int64            `json:"errors"`
	ByRoute       map[string]int64 `json:"by_route"`
}

// StatsReport mirrors the relay's stats endpoint body.
type StatsReport struct {
	Server ServerStats        `json:"server"`
	Usage  telemetry.Snapshot `json:"usage"`
}

// Stats fetches request counters and usage aggregates from the relay.
func (c *Client) Stats(ctx context.Context) (*StatsReport, error) {
	body, status, err := c.get(ctx, "/api/stats")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(status, body)
	}

	var report StatsReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("parse stats response: %w", err)
	}
	return &report, nil
}
