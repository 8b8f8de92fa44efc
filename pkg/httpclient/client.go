// Package httpclient provides a retrying HTTP client used by the LLM
// providers. Transient failures (rate limits, server errors) are retried
// with exponential backoff; Retry-After hints from the server take
// precedence over the computed delay.
package httpclient

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Client wraps *http.Client with bounded retries.
type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithMaxRetries sets how many times a request is re-attempted.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

// WithBaseDelay sets the backoff base delay.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

// New creates a retrying client. Defaults: 60s request timeout, 3 retries,
// 2s base delay.
func New(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
		baseDelay:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryable reports whether the status code warrants another attempt.
func retryable(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Do executes the request, retrying transient failures. The request must
// have GetBody set for retries to replay the body (http.NewRequest sets it
// for common body types).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("recreating request body for retry: %w", err)
				}
				req.Body = body
			}
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			default:
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Transport-level error: retry unless the context is gone.
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			if attempt < c.maxRetries {
				c.sleep(c.delay(attempt, nil))
			}
			continue
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		if !retryable(resp.StatusCode) || attempt == c.maxRetries {
			return resp, nil
		}

		delay := c.delay(attempt, resp)
		slog.Warn("retrying HTTP request",
			"status", resp.StatusCode,
			"delay", delay,
			"attempt", attempt+1,
			"max_attempts", c.maxRetries+1)
		_ = resp.Body.Close()
		c.sleep(delay)
	}

	return nil, &RetryExhaustedError{Attempts: c.maxRetries + 1, Err: lastErr}
}

// delay computes the wait before the next attempt. A Retry-After header
// wins over exponential backoff.
func (c *Client) delay(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
}

func (c *Client) sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
