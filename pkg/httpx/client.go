// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package httpx provides the shared ingestion HTTP utility: a scoped
// client with a closed error taxonomy, an exponential-backoff retry
// wrapper, a per-source rate limiter, and a circuit breaker.
//
// Every collector goes through this package for outbound I/O. The error
// taxonomy is deliberately closed:
//
//   - *HTTPError: non-2xx responses and transport failures
//   - ErrRetryExhausted: the retry wrapper gave up; unwraps to the last error
//   - ErrCircuitOpen: the breaker for the source is open
//
// # Resource Management
//
// Client owns a connection-pooled transport. Call Close() when the scope
// ends so idle connections are released on all exit paths:
//
//	client := httpx.NewClient(10 * time.Second)
//	defer client.Close()
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPError is the single transport-level error kind. Status is zero for
// failures that never produced a response.
type HTTPError struct {
	Status int
	URL    string
	Err    error
}

func (e *HTTPError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("http %d from %s", e.Status, e.URL)
	}
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// Doer allows injecting mock HTTP clients for testing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a scoped HTTP utility offering GetJSON, GetText, and
// GetBytes. It owns its transport; Close releases pooled connections.
//
// # Thread Safety
//
// Client is safe for concurrent use.
type Client struct {
	httpClient Doer
	transport  *http.Transport
}

// NewClient creates a Client with the given wall-clock timeout applied
// to every request.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		transport:  transport,
	}
}

// NewClientWithDoer creates a Client around an injected Doer. Used by
// tests; Close is a no-op for injected clients.
func NewClientWithDoer(d Doer) *Client {
	return &Client{httpClient: d}
}

// Close releases idle pooled connections. Safe to call multiple times.
func (c *Client) Close() {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
}

// GetJSON fetches url and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, v any) error {
	body, err := c.get(ctx, url, headers, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &HTTPError{URL: url, Err: fmt.Errorf("decode json: %w", err)}
	}
	return nil
}

// GetText fetches url and returns the body as a string.
func (c *Client) GetText(ctx context.Context, url string, headers map[string]string) (string, error) {
	body, err := c.get(ctx, url, headers, "")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetBytes fetches url and returns the raw body.
func (c *Client) GetBytes(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.get(ctx, url, headers, "")
}

func (c *Client) get(ctx context.Context, url string, headers map[string]string, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &HTTPError{URL: url, Err: err}
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &HTTPError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Status: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &HTTPError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// IsHTTPStatus reports whether err is an *HTTPError with the given status.
func IsHTTPStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == status
}
