// File: internal/llmclient/anthropic_client.go
package llmclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/suture-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const apiVersion = "2023-06-01"

// AnalysisRequest is the immutable description of one outbound analysis
// call. Constructed fresh per run.
type AnalysisRequest struct {
	System string
	Prompt string
}

// RawResponse carries the full text returned by the remote model plus the
// transport metadata a caller may want for diagnostics.
type RawResponse struct {
	Text       string
	StatusCode int
	Header     http.Header
}

// APIError is a non-retryable HTTP failure from the remote endpoint,
// surfaced immediately with the status and body for diagnostics.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("analysis API error: status %d, body: %s", e.StatusCode, e.Body)
}

// permanentError marks a failure that no retry can recover from.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// retryableStatus is the set of statuses worth another attempt: rate
// limiting and transient server-side failures.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// -- Anthropic messages API shapes (internal to this file) --

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequestPayload struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
}

type apiResponsePayload struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Client issues the outbound analysis request with a bounded retry policy.
// One request is in flight at a time; the only side effect is the network
// call itself.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient initializes the client. The configured timeout is mandatory: a
// request that can hang forever is its own bug class.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.APITimeout <= 0 {
		return nil, fmt.Errorf("a finite API timeout is required")
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), 1)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.APITimeout},
		limiter:    limiter,
		logger:     logger.Named("llm_client"),
	}, nil
}

// Send performs the analysis call. HTTP 200 is success; 429 and the 5xx
// transient set are retried up to the attempt cap with a Retry-After-aware
// delay; any other status is fatal immediately. Transport errors count
// against the same cap. Exhausting the cap is a fatal failure, never a
// silent empty result.
func (c *Client) Send(ctx context.Context, req AnalysisRequest) (*RawResponse, error) {
	body, err := json.Marshal(c.buildPayload(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter wait aborted: %w", err)
			}
		}

		resp, retryDelay, err := c.attempt(ctx, body)
		if resp != nil {
			return resp, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !retryableStatus[apiErr.StatusCode] {
			c.logger.Error("Analysis API returned non-retryable status",
				zap.Int("status", apiErr.StatusCode),
				zap.String("body", apiErr.Body))
			return nil, err
		}
		var permErr *permanentError
		if errors.As(err, &permErr) {
			return nil, permErr.err
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := retryDelay
		if delay <= 0 {
			delay = c.cfg.RetryDelay
		}
		c.logger.Warn("Analysis request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("analysis request failed after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

// attempt executes a single HTTP round trip. On a retryable failure it
// returns the server's Retry-After hint, when one was supplied.
func (c *Client) attempt(ctx context.Context, body []byte) (*RawResponse, time.Duration, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// DNS failures, resets, timeouts: all transient from our side.
		return nil, 0, fmt.Errorf("transport error: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, retryAfterHint(httpResp.Header), &APIError{
			StatusCode: httpResp.StatusCode,
			Body:       string(respBody),
		}
	}

	var payload apiResponsePayload
	if err := json.Unmarshal(respBody, &payload); err != nil {
		// A malformed success body will not improve on retry.
		return nil, 0, &permanentError{err: fmt.Errorf("failed to decode response payload: %w", err)}
	}

	text := ""
	for _, block := range payload.Content {
		if block.Type == "" || block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		// A well-formed success body with no text will not improve on retry.
		return nil, 0, &permanentError{err: fmt.Errorf("analysis API returned no text content")}
	}

	c.logger.Info("Analysis request complete",
		zap.Duration("duration", time.Since(start)),
		zap.Int("input_tokens", payload.Usage.InputTokens),
		zap.Int("output_tokens", payload.Usage.OutputTokens))

	return &RawResponse{
		Text:       text,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
	}, 0, nil
}

func (c *Client) buildPayload(req AnalysisRequest) apiRequestPayload {
	return apiRequestPayload{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		System:      req.System,
		Messages: []apiMessage{
			{Role: "user", Content: req.Prompt},
		},
	}
}

// retryAfterHint parses a Retry-After header, which may carry either a
// delay in seconds or an HTTP date.
func retryAfterHint(h http.Header) time.Duration {
	value := h.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if date, err := http.ParseTime(value); err == nil {
		if d := time.Until(date); d > 0 {
			return d
		}
	}
	return 0
}
