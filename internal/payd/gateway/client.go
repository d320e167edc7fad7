// Package gateway implements the HTTP clients for the two external payment
// processors the daemon talks to: the card processor (tokenization and
// charges) and the PayPal-style checkout processor (redirect flow and
// notifications).
//
// Both clients share one small transport layer. It owns the concerns every
// call needs and no handler should think about:
//
// Retries
// =======
//
// Requests that fail with a retryable status (429 or any 5xx) or a
// transport error are retried with exponential backoff plus jitter, capped
// at a small attempt count. The request builder runs once per attempt so
// body readers are fresh. Anything non-retryable surfaces immediately as an
// *APIError carrying the status and the processor's own message, which the
// command layer echoes to the frontend.
//
// Both processors treat the operations used here as idempotent or
// single-use (tokens are one-shot, charges are keyed by token), so a retry
// after an ambiguous failure cannot double-charge.
//
// Budgets
// =======
//
// Every call runs under the caller's context plus the client timeout. The
// daemon holds a frontend connection open while these calls run, so slow
// processor responses must turn into errors, not hung connections.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout    = 20 * time.Second
	defaultMaxRetries = 2
	defaultBackoff    = 250 * time.Millisecond

	// maxResponseBytes bounds how much of a processor response is read.
	// Real responses are a few hundred bytes of JSON.
	maxResponseBytes = 1 << 20
)

// APIError is a non-2xx answer from a payment processor.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether err is worth retrying: processor overload,
// server-side failure, or a transport error before any status arrived.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode >= 500
	}
	// No status means the request may not have reached the processor.
	return err != nil && !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Option configures a gateway client.
type Option func(*transport)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *transport) { t.httpClient.Timeout = d }
}

// WithMaxRetries sets how many times a retryable failure is retried.
func WithMaxRetries(n int) Option {
	return func(t *transport) { t.maxRetries = n }
}

// WithLogger sets the logger used for retry and failure reporting.
func WithLogger(l *slog.Logger) Option {
	return func(t *transport) { t.logger = l }
}

// WithHTTPClient replaces the underlying HTTP client. Tests use this to
// point at an httptest server with custom transports.
func WithHTTPClient(c *http.Client) Option {
	return func(t *transport) { t.httpClient = c }
}

type transport struct {
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
}

func newTransport(opts ...Option) *transport {
	t := &transport{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// roundTrip executes a request with retries and returns the response body.
// build is invoked once per attempt; it must return a request whose body
// can be consumed exactly once.
func (t *transport) roundTrip(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	delay := t.backoff

	for attempt := 0; ; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}

		body, err := t.once(req)
		if err == nil {
			return body, nil
		}
		if attempt >= t.maxRetries || !IsRetryable(err) {
			return nil, err
		}

		// Full jitter on top of the exponential step.
		sleep := delay + time.Duration(rand.Int63n(int64(delay)))
		t.logger.Warn("gateway request failed, retrying",
			"url", req.URL.Path, "attempt", attempt+1, "delay", sleep, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		delay *= 2
	}
}

func (t *transport) once(req *http.Request) ([]byte, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("gateway: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}
	return body, nil
}

// errorMessage digs the human-readable message out of a processor error
// body. Both processors wrap it in JSON; fall back to the raw body.
func errorMessage(body []byte) string {
	var wrapped struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if wrapped.Error.Message != "" {
			return wrapped.Error.Message
		}
		if wrapped.Message != "" {
			return wrapped.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "no error detail"
	}
	return msg
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}
	return nil
}
