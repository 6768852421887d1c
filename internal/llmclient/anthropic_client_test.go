// File: internal/llmclient/anthropic_client_test.go
package llmclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLLMConfig(endpoint string) config.LLMConfig {
	return config.LLMConfig{
		APIKey:      "test-key",
		Endpoint:    endpoint,
		Model:       "test-model",
		MaxTokens:   4000,
		Temperature: 0.2,
		APITimeout:  5 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  10 * time.Millisecond,
	}
}

const successBody = `{
	"content": [{"type": "text", "text": "Here is my analysis."}],
	"usage": {"input_tokens": 120, "output_tokens": 48}
}`

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	cfg := testLLMConfig("http://localhost")
	cfg.APIKey = ""
	_, err := NewClient(cfg, zap.NewNop())
	assert.Error(t, err)

	cfg = testLLMConfig("http://localhost")
	cfg.APITimeout = 0
	_, err = NewClient(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestSend_Success(t *testing.T) {
	t.Parallel()

	var gotPayload apiRequestPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Write([]byte(successBody))
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	resp, err := client.Send(context.Background(), AnalysisRequest{
		System: "be precise",
		Prompt: "analyze this",
	})
	require.NoError(t, err)
	assert.Equal(t, "Here is my analysis.", resp.Text)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "test-model", gotPayload.Model)
	assert.Equal(t, 4000, gotPayload.MaxTokens)
	assert.Equal(t, "be precise", gotPayload.System)
	require.Len(t, gotPayload.Messages, 1)
	assert.Equal(t, "user", gotPayload.Messages[0].Role)
	assert.Equal(t, "analyze this", gotPayload.Messages[0].Content)
}

func TestSend_RetriesExhaustedOn503(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	resp, err := client.Send(context.Background(), AnalysisRequest{Prompt: "x"})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	// Exactly the attempt cap, never more.
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(successBody))
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	resp, err := client.Send(context.Background(), AnalysisRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Here is my analysis.", resp.Text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_NonRetryableStatusFailsImmediately(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad request"}`))
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.Send(context.Background(), AnalysisRequest{Prompt: "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "bad request")
	// A fatal status must not burn further attempts.
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_HonorsRetryAfterHint(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var gap time.Duration
	var lastCall time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		if calls.Add(1) == 1 {
			lastCall = now
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		gap = now.Sub(lastCall)
		w.Write([]byte(successBody))
	}))
	defer server.Close()

	cfg := testLLMConfig(server.URL)
	cfg.RetryDelay = time.Millisecond // The hint must win over this.
	client, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Send(context.Background(), AnalysisRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, gap, time.Second)
}

func TestSend_TransportErrorsAreRetryable(t *testing.T) {
	t.Parallel()

	// A server that is immediately closed produces connection failures.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	client, err := NewClient(testLLMConfig(endpoint), zap.NewNop())
	require.NoError(t, err)

	_, err = client.Send(context.Background(), AnalysisRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestSend_MalformedSuccessBodyIsFatal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.Send(context.Background(), AnalysisRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response payload")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_EmptySuccessBodyIsFatal(t *testing.T) {
	t.Parallel()

	// Well-formed 200 with no text block: retrying would re-issue the full
	// request for the same empty answer.
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"content": [], "usage": {"input_tokens": 1, "output_tokens": 0}}`))
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.Send(context.Background(), AnalysisRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text content")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_ContextCancellationStopsRetrySleep(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testLLMConfig(server.URL)
	cfg.RetryDelay = 10 * time.Second
	client, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.Send(ctx, AnalysisRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
