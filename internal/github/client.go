// Package github fetches a user's activity from the GitHub GraphQL API and
// folds it into a flat Metrics record.
//
// Every HTTP call goes through Client.DoWithRetry:
//
//	attempt 1 ──fail──▶ sleep base·2⁰ + jitter ──▶ attempt 2 ──fail──▶ sleep base·2¹ + jitter ──▶ attempt 3 ──fail──▶ ErrRetriesExhausted
//
// 404 and 401 are answers, not glitches: they return immediately. Each
// attempt has its own timeout, and the caller's context cancels both the
// in-flight request and the backoff sleep.
package github

import (
	"bytes"
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

	"golang.org/x/oauth2"
)

var (
	ErrNotFound         = errors.New("github: not found")
	ErrUnauthorized     = errors.New("github: token rejected")
	ErrRetriesExhausted = errors.New("github: retries exhausted")
)

const (
	DefaultAPIURL      = "https://api.github.com"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second

	// Bodies larger than this are cut off; a page of 100 commits is far below.
	maxResponseBytes = 8 << 20
)

// StatusError is a non-2xx answer other than 404 and 401. It is always
// retried: GitHub throttles with 403 and 429 as well as 5xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github: unexpected status %d: %s", e.StatusCode, e.Body)
}

// GraphQLError carries the "errors" array of a 200 response. Never retried:
// the same query would fail the same way.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "github: graphql: " + strings.Join(e.Messages, "; ")
}

// Observer receives one call per attempt. outcome is "ok", "retry" or
// "fail". A nil Observer is allowed.
type Observer interface {
	ObserveGitHubRequest(outcome string, took time.Duration)
}

type ClientConfig struct {
	APIURL      string
	Timeout     time.Duration // per attempt
	MaxAttempts int
	BaseDelay   time.Duration
	HTTPClient  *http.Client
	Observer    Observer
	Logger      *slog.Logger
}

type Client struct {
	apiURL      string
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	base        *http.Client
	observer    Observer
	logger      *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(base time.Duration) time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		apiURL:      strings.TrimRight(cfg.APIURL, "/"),
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		base:        cfg.HTTPClient,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
		sleep:       sleepCtx,
		jitter:      randomJitter,
	}
	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = DefaultBaseDelay
	}
	if c.base == nil {
		c.base = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Backoff is the wait after failed attempt n (0-based): base·2ⁿ plus jitter
// in [0, base).
func (c *Client) Backoff(n int) time.Duration {
	return c.baseDelay<<n + c.jitter(c.baseDelay)
}

// DoWithRetry runs newReq until it yields a 2xx, a non-retryable failure, or
// the attempts run out. newReq is called once per attempt with that
// attempt's context so the request can be rebuilt with a fresh body.
func (c *Client) DoWithRetry(ctx context.Context, hc *http.Client, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.Backoff(attempt - 1)
			c.logger.Warn("github request failed, retrying",
				"attempt", attempt, "max_attempts", c.maxAttempts, "backoff", wait, "error", lastErr)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		body, err := c.attempt(ctx, hc, newReq)
		if err == nil {
			c.observe("ok", time.Since(start))
			return body, nil
		}
		if ctx.Err() != nil {
			c.observe("fail", time.Since(start))
			return nil, ctx.Err()
		}
		if !retryable(err) {
			c.observe("fail", time.Since(start))
			return nil, err
		}
		c.observe("retry", time.Since(start))
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.maxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, hc *http.Client, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := newReq(ctx)
	if err != nil {
		return nil, &permanentError{err}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("github: reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

// permanentError marks failures that happen before anything is sent.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var perm *permanentError
	var gqlErr *GraphQLError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthorized):
		return false
	case errors.As(err, &perm), errors.As(err, &gqlErr):
		return false
	}
	// Other statuses, transport errors and per-attempt timeouts.
	return true
}

// Query POSTs a GraphQL document authorized with token and decodes "data"
// into dst.
func (c *Client) Query(ctx context.Context, token, query string, vars map[string]any, dst any) error {
	payload, err := json.Marshal(struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables,omitempty"`
	}{query, vars})
	if err != nil {
		return fmt.Errorf("github: encoding query: %w", err)
	}

	hc := c.authorized(token)
	body, err := c.DoWithRetry(ctx, hc, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/graphql", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("github: decoding graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		gqlErr := &GraphQLError{}
		for _, e := range envelope.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return gqlErr
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		return fmt.Errorf("github: decoding graphql data: %w", err)
	}
	return nil
}

// authorized wraps the base client's transport with a static bearer token.
func (c *Client) authorized(token string) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.base.Transport,
		},
	}
}

func (c *Client) observe(outcome string, took time.Duration) {
	if c.observer != nil {
		c.observer.ObserveGitHubRequest(outcome, took)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return rand.N(base)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
