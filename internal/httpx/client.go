// Package httpx provides the shared outbound HTTP client for both
// metadata providers: a single GET-and-parse-JSON entry point wrapped
// in a uniform retry policy.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultAttempts  = 5
	defaultBaseDelay = 500 * time.Millisecond
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Status)
}

// ParseError reports a response body that was not valid JSON.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse JSON from %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Retryable reports whether an error is a transient upstream condition
// worth retrying: rate limiting or a gateway-class server error.
// Everything else (parse failures, 4xx, transport errors) propagates
// immediately.
func Retryable(err error) bool {
	se, ok := err.(*StatusError)
	if !ok {
		return false
	}
	switch se.Status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client issues GET requests and decodes JSON bodies, retrying
// transient failures with exponential backoff. One Client is shared by
// all provider calls of a build so connections are pooled.
type Client struct {
	httpc     *http.Client
	log       *slog.Logger
	attempts  uint
	baseDelay time.Duration
}

// New builds a Client around httpc. A nil httpc gets a pooled transport
// sized for the build pipeline's parallelism.
func New(httpc *http.Client) *Client {
	if httpc == nil {
		transport := &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 50,
			IdleConnTimeout:     30 * time.Second,
		}
		httpc = &http.Client{Timeout: 15 * time.Second, Transport: transport}
	}
	return &Client{
		httpc:     httpc,
		log:       slog.Default().With("component", "httpx"),
		attempts:  defaultAttempts,
		baseDelay: defaultBaseDelay,
	}
}

// GetJSON performs a GET against url with the given headers and decodes
// the body into v. Retries up to 5 attempts on 429/5xx, waiting 500ms
// before the first retry and doubling from there (500ms, 1s, 2s, 4s);
// other failures return on the first attempt.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, v any) error {
	return retry.Do(
		func() error {
			return c.getOnce(ctx, url, header, v)
		},
		retry.Attempts(c.attempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			// n counts completed attempts, so it is 1 on the first
			// retry; shift down so that retry waits the base delay.
			if n > 0 {
				n--
			}
			return c.baseDelay << n
		}),
		retry.RetryIf(Retryable),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("retrying request", "url", url, "attempt", n+1, "error", err)
		}),
	)
}

func (c *Client) getOnce(ctx context.Context, url string, header http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, vals := range header {
		for _, hv := range vals {
			req.Header.Add(k, hv)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, URL: url}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &ParseError{URL: url, Err: err}
	}
	return nil
}
