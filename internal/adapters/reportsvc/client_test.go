package reportsvc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niavasha/greenledger/internal/adapters/reportsvc"
)

func fastRetry() reportsvc.RetryConfig {
	return reportsvc.RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        20 * time.Millisecond,
	}
}

func TestGenerate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req reportsvc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "quarterly summary prompt", req.Prompt)
		assert.False(t, req.ReturnFile)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reportsvc.Response{Narrative: "Strong quarter for energy reduction."})
	}))
	defer server.Close()

	client := reportsvc.NewHTTPClient(server.URL)
	resp, err := client.Generate(context.Background(), reportsvc.Request{
		Prompt:   "quarterly summary prompt",
		Filename: "q1.html",
	})

	require.NoError(t, err)
	assert.Equal(t, "Strong quarter for energy reduction.", resp.Narrative)
}

func TestGenerate_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(reportsvc.Response{Narrative: "done"})
	}))
	defer server.Close()

	client := reportsvc.NewHTTPClient(server.URL, reportsvc.WithRetryConfig(fastRetry()))
	resp, err := client.Generate(context.Background(), reportsvc.Request{Prompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "done", resp.Narrative)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestGenerate_RateLimitIsRetryable(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(reportsvc.Response{Narrative: "ok"})
	}))
	defer server.Close()

	client := reportsvc.NewHTTPClient(server.URL, reportsvc.WithRetryConfig(fastRetry()))
	resp, err := client.Generate(context.Background(), reportsvc.Request{Prompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Narrative)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestGenerate_TerminalErrorStopsRetrying(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := reportsvc.NewHTTPClient(server.URL, reportsvc.WithRetryConfig(fastRetry()))
	_, err := client.Generate(context.Background(), reportsvc.Request{Prompt: "p"})

	require.Error(t, err)
	assert.True(t, reportsvc.IsTerminal(err))
	assert.False(t, reportsvc.IsRetryable(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestGenerate_ExhaustedRetriesReturnLastError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := reportsvc.NewHTTPClient(server.URL, reportsvc.WithRetryConfig(fastRetry()))
	_, err := client.Generate(context.Background(), reportsvc.Request{Prompt: "p"})

	require.Error(t, err)
	assert.True(t, reportsvc.IsRetryable(err))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestGenerate_EmptyPromptRejected(t *testing.T) {
	client := reportsvc.NewHTTPClient("http://localhost:0")
	_, err := client.Generate(context.Background(), reportsvc.Request{})

	require.Error(t, err)
	assert.True(t, reportsvc.IsTerminal(err))
}

func TestGenerate_MalformedResponseIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client := reportsvc.NewHTTPClient(server.URL, reportsvc.WithRetryConfig(fastRetry()))
	_, err := client.Generate(context.Background(), reportsvc.Request{Prompt: "p"})

	require.Error(t, err)
	assert.True(t, reportsvc.IsTerminal(err))
}

func TestGenerate_ContextCancellationStopsBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := fastRetry()
	cfg.BackoffBase = 5 * time.Second
	client := reportsvc.NewHTTPClient(server.URL, reportsvc.WithRetryConfig(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Generate(ctx, reportsvc.Request{Prompt: "p"})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
