package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/parsemed/internal/common"
)

// maxErrorBody caps how much of a failed response body ends up in errors.
const maxErrorBody = 512

type sendConfig struct {
	retries int
	backoff time.Duration
}

type SendOption func(*sendConfig)

// WithRetries retries rate limited (429) and gateway (502, 503, 504)
// responses and transport failures up to n more times.
func WithRetries(n int) SendOption {
	return func(c *sendConfig) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithBackoff sets the first retry delay. Each later retry doubles it.
func WithBackoff(d time.Duration) SendOption {
	return func(c *sendConfig) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// SendJSON posts body as JSON to url and returns the raw response body and
// status. It is provider neutral: callers pick the URL and headers.
// Non-2xx responses return the body together with an error wrapping
// common.ErrUpstream.
func SendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger, opts ...SendOption) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}
	cfg := sendConfig{backoff: 500 * time.Millisecond}
	for _, o := range opts {
		o(&cfg)
	}

	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	payload, err := json.Marshal(body)
	if err != nil {
		logger.Error("llm.http.encode_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("encode json: %w", err)
	}

	delay := cfg.backoff
	for attempt := 0; ; attempt++ {
		raw, code, err := sendOnce(ctx, client, url, payload, headers, reqID, attempt, logger)
		if err == nil || attempt >= cfg.retries || !retryable(ctx, code, err) {
			return raw, code, err
		}
		logger.Warn("llm.http.retry", "req_id", reqID, "attempt", attempt+1, "status", code, "delay_ms", delay.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return raw, code, err
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func sendOnce(ctx context.Context, client *http.Client, url string, payload []byte, headers map[string]string, reqID string, attempt int, logger *slog.Logger) ([]byte, int, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		logger.Error("llm.http.build_request_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Info("llm.http.request", "req_id", reqID, "url", url, "attempt", attempt, "content_length", len(payload))

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("llm.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, fmt.Errorf("%w: %w", common.ErrUpstream, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("llm.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read body: %w", common.ErrUpstream, err)
	}
	logger.Info("llm.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		snippet := raw
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return raw, resp.StatusCode, fmt.Errorf("%w: status %d: %s", common.ErrUpstream, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return raw, resp.StatusCode, nil
}

func retryable(ctx context.Context, code int, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch code {
	case 0, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
