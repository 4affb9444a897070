// Package httputil holds the JSON-over-HTTP plumbing shared by provider clients.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
)

// MaxResponseBytes caps how much of a provider response is read.
const MaxResponseBytes = 32 << 20

// Request describes one provider call.
type Request struct {
	Provider string // used in errors and logs
	Op       string
	Method   string // default POST
	URL      string
	Body     any // JSON-encoded when non-nil
	Headers  map[string]string
}

// SendJSON performs the request and returns the raw response body.
// Non-2xx responses are classified: 429 becomes a common.RateLimitError,
// everything else (and transport failures) a common.ProviderError. Callers
// inspect the body of 4xx responses with Classify when they need
// provider-specific codes.
func SendJSON(ctx context.Context, client *http.Client, r Request, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}
	method := r.Method
	if method == "" {
		method = http.MethodPost
	}

	reqID := uuid.New().String()
	start := time.Now()

	var body io.Reader
	var size int
	if r.Body != nil {
		bs, err := json.Marshal(r.Body)
		if err != nil {
			logger.Error("http.encode_error", "req_id", reqID, "provider", r.Provider, "error", err)
			return nil, 0, fmt.Errorf("encode json: %w", err)
		}
		body = bytes.NewReader(bs)
		size = len(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		logger.Error("http.build_request_error", "req_id", reqID, "provider", r.Provider, "error", err)
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	logger.Debug("http.request",
		"req_id", reqID,
		"provider", r.Provider,
		"op", r.Op,
		"url", redact(r.URL),
		"content_length", size,
	)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("http.send_error", "req_id", reqID, "provider", r.Provider, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, &common.ProviderError{Provider: r.Provider, Op: r.Op, Cause: err}
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logger.Warn("http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, &common.ProviderError{Provider: r.Provider, Op: r.Op, StatusCode: resp.StatusCode, Cause: err}
	}

	logger.Debug("http.response",
		"req_id", reqID,
		"provider", r.Provider,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, Classify(r.Provider, r.Op, resp.StatusCode, resp.Header, raw)
	}
	return raw, resp.StatusCode, nil
}

// Classify turns a non-2xx response into the error taxonomy.
func Classify(provider, op string, status int, header http.Header, body []byte) error {
	if status == http.StatusTooManyRequests {
		return &common.RateLimitError{Provider: provider, RetryAfter: ParseRetryAfter(header.Get("Retry-After"), time.Now())}
	}
	return &common.ProviderError{
		Provider:   provider,
		Op:         op,
		StatusCode: status,
		Cause:      errors.New(snippet(body, 300)),
	}
}

// ParseRetryAfter reads a Retry-After header in either delta-seconds or HTTP-date form.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

func snippet(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "…"
	}
	return s
}

// redact drops query strings, which may carry API keys.
func redact(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i] + "?…"
	}
	return u
}
