// Package fetch provides the outbound HTTP helper shared by all provider
// adapters: bounded retries with exponential backoff and jitter on rate
// limiting, server errors, and transport failures.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultMaxRetries bounds how many times a request is reissued after
	// the initial attempt.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the backoff base; attempt n sleeps base * 2^n.
	DefaultBaseDelay = 500 * time.Millisecond
	// MaxJitter is added to every backoff sleep to spread synchronized
	// retries apart.
	MaxJitter = 200 * time.Millisecond
)

// ErrUnavailable is returned once retries are exhausted. Callers treat it
// as "provider had no answer for this item" and move on, never as fatal.
var ErrUnavailable = errors.New("provider unavailable after retries")

// ErrNotFound is returned for a 404 response. Not-found is terminal for a
// provider and is never retried.
var ErrNotFound = errors.New("not found")

// Sleeper abstracts the backoff sleep so tests can observe delays without
// waiting them out.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Client issues HTTP requests with retry semantics.
type Client struct {
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	sleep      Sleeper
	jitter     func() time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseDelay overrides the backoff base delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithSleeper replaces the backoff sleep, for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithJitter replaces the jitter source, for tests.
func WithJitter(f func() time.Duration) Option {
	return func(c *Client) { c.jitter = f }
}

// New creates a retrying client with the default budget.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		sleep:      defaultSleep,
		jitter: func() time.Duration {
			return time.Duration(rand.Int64N(int64(MaxJitter)))
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BackoffDelay computes the sleep before retry number attempt (0-based):
// base * 2^attempt plus up to MaxJitter of random jitter.
func (c *Client) BackoffDelay(attempt int) time.Duration {
	return c.baseDelay*time.Duration(1<<uint(attempt)) + c.jitter()
}

// Do issues the request, retrying on 429, 5xx, and transport errors until
// the retry budget runs out. The returned response always has status 200;
// anything unrecoverable surfaces as an error (ErrNotFound for 404,
// ErrUnavailable once retries exhaust).
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		resp, err := c.httpClient.Do(req.Clone(ctx))
		switch {
		case err != nil:
			// Transport-level failure, same backoff as a 5xx.
			lastErr = err
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case resp.StatusCode == http.StatusNotFound:
			drain(resp)
			return nil, ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			drain(resp)
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
		default:
			// 4xx other than 404/429 will not improve on retry.
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			drain(resp)
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		if attempt >= c.maxRetries {
			slog.Debug("Retries exhausted", "url", req.URL.Redacted(), "attempts", attempt+1, "error", lastErr)
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, lastErr)
		}

		delay := c.BackoffDelay(attempt)
		slog.Debug("Retrying request", "url", req.URL.Redacted(), "attempt", attempt+1, "delay", delay, "error", lastErr)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// GetJSON issues a GET with optional headers and decodes the JSON body
// into target.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
