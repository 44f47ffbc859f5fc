// Package reportsvc talks to the external narrative generation
// service that writes the prose for sustainability reports.
package reportsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/niavasha/greenledger/pkg/logger"
	"github.com/niavasha/greenledger/pkg/metrics"
)

// maxResponseSize bounds the response body read off the wire.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// defaultTimeout allows for slow generation backends.
const defaultTimeout = 180 * time.Second

// Request asks the service to write a narrative for the given prompt.
type Request struct {
	Prompt   string `json:"prompt"`
	Filename string `json:"filename,omitempty"`
	// ReturnFile is always false here: the pipeline renders its own
	// document and only wants the text back.
	ReturnFile bool `json:"return_file"`
}

// Response carries the generated narrative.
type Response struct {
	Narrative string `json:"narrative"`
}

// Client generates report narratives.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// HTTPClient implements Client over a JSON-over-HTTP endpoint, with
// retry on retryable failures.
type HTTPClient struct {
	url         string
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      logger.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(h *HTTPClient) {
		h.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *HTTPClient) {
		h.logger = l
	}
}

// NewHTTPClient creates a client for the service at url.
func NewHTTPClient(url string, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		url:         url,
		retryConfig: DefaultRetryConfig(),
		httpClient:  &http.Client{Timeout: defaultTimeout},
		logger:      logger.Get().Named("reportsvc"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Generate sends the request, retrying retryable failures up to the
// configured attempt budget. The final attempt's error is returned
// unchanged so callers can classify it.
func (h *HTTPClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Prompt == "" {
		return nil, NewTerminalError(fmt.Errorf("prompt is required"))
	}

	var lastErr error
	for attempt := 1; attempt <= h.retryConfig.MaxAttempts; attempt++ {
		start := time.Now()
		resp, err := h.doRequest(ctx, req)
		metrics.RecordReportCallLatency(float64(time.Since(start).Milliseconds()))

		if err == nil {
			return resp, nil
		}
		lastErr = err
		metrics.RecordReportCallError()

		if IsTerminal(err) {
			return nil, err
		}

		if attempt < h.retryConfig.MaxAttempts {
			backoff := h.backoff(attempt)
			h.logger.Warn(ctx, "generation request failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("backoff", backoff),
				logger.Error(err),
			)
			metrics.RecordReportCallRetry()

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, lastErr
}

// backoff computes exponential backoff with jitter so concurrent
// clients don't retry in lockstep.
func (h *HTTPClient) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= h.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(h.retryConfig.BackoffBase) * multiplier)
	if backoff > h.retryConfig.MaxBackoff {
		backoff = h.retryConfig.MaxBackoff
	}

	// Jitter of +/- 25%.
	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

func (h *HTTPClient) doRequest(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewTerminalError(fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, NewTerminalError(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := h.httpClient.Do(httpReq)
	if err != nil {
		// Network failures and timeouts are worth retrying.
		return nil, NewRetryableError(fmt.Errorf("send request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewRetryableError(fmt.Errorf("read response: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, NewTerminalError(fmt.Errorf("decode response: %w", err))
	}
	return &out, nil
}

// classifyHTTPError decides whether a status code is worth a retry.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("report service error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewRetryableError(err)
	case statusCode >= 500:
		return NewRetryableError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusBadRequest:
		return NewTerminalError(err)
	default:
		return NewTerminalError(err)
	}
}
