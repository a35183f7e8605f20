// Package httpclient provides a shared HTTP client with transport-level
// retry. Only connection failures and I/O timeouts are retried; HTTP status
// codes are returned to the caller untouched so that ports can apply their
// own semantics (a 404 on the model endpoint is a configuration error, not a
// transient fault).
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	client     *http.Client
	baseURL    string
	maxRetries int
	baseDelay  time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

// New creates a client rooted at baseURL (no trailing slash required).
func New(baseURL string, opts ...Option) *Client {
	client := &Client{
		client:     &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		maxRetries: 2,
		baseDelay:  500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PostJSON marshals payload and POSTs it to baseURL+path, retrying transport
// failures with linear backoff. The response body is the caller's to close.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &TransportError{Attempts: attempt, Err: ctx.Err()}
			case <-time.After(time.Duration(attempt) * c.baseDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Context cancellation is not a transient fault; stop immediately.
		if ctx.Err() != nil {
			return nil, &TransportError{Attempts: attempt + 1, Err: ctx.Err()}
		}
	}

	return nil, &TransportError{Attempts: c.maxRetries + 1, Err: lastErr}
}
