// Package fetch performs authenticated reads against the metadata API.
//
// Every request carries a key drawn from a CredentialSource. A 402 or 403
// answer forces the source to refresh before the next attempt; any other
// failure is simply retried until the budget (MaxRetries+1 attempts) runs
// out. Successful payloads can be memoized by full target URL, so a repeated
// lookup returns without touching the network.
//
// Concurrent identical fetches are not merged: both may reach the API.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cineplex/internal/clients/credentials"
	"cineplex/internal/utils"
)

const (
	DefaultMaxRetries       = 3
	DefaultCredentialHeader = "X-API-KEY"

	maxBodySize = 10 * 1024 * 1024
)

// CredentialSource yields API keys and can be told to drop them.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
	Refresh(ctx context.Context)
}

// ExhaustionNotifier hears about fetches that spent their whole retry budget.
type ExhaustionNotifier interface {
	NotifyFetchExhausted(target string)
}

// RequestOptions are per-call request settings. They do not take part in the
// memo key: the API is read-only, so the target alone identifies a payload.
type RequestOptions struct {
	Method string
	Header http.Header
	Body   []byte
}

type Client struct {
	baseURL          string
	httpClient       *http.Client
	credentials      CredentialSource
	credentialHeader string
	maxRetries       int
	memo             Memo
	limiter          *rate.Limiter
	metrics          *MetricsCollector
	logger           *utils.Logger
	notifier         ExhaustionNotifier
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(client *Client) {
		if n >= 0 {
			client.maxRetries = n
		}
	}
}

func WithCredentialHeader(name string) Option {
	return func(client *Client) {
		if name != "" {
			client.credentialHeader = name
		}
	}
}

func WithMemo(m Memo) Option {
	return func(client *Client) {
		if m != nil {
			client.memo = m
		}
	}
}

// WithRateLimiter makes every attempt wait for a token first.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(client *Client) { client.limiter = l }
}

func WithMetrics(m *MetricsCollector) Option {
	return func(client *Client) { client.metrics = m }
}

func WithLogger(logger *utils.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

func WithNotifier(n ExhaustionNotifier) Option {
	return func(client *Client) { client.notifier = n }
}

func New(baseURL string, source CredentialSource, opts ...Option) *Client {
	c := &Client{
		baseURL:          strings.TrimSuffix(baseURL, "/"),
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		credentials:      source,
		credentialHeader: DefaultCredentialHeader,
		maxRetries:       DefaultMaxRetries,
		memo:             NewMemoryMemo(),
		logger:           utils.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Target returns the fully qualified URL for path, which is also the memo key.
func (c *Client) Target(path string) string {
	return c.baseURL + path
}

// Memo exposes the memo cache, mainly for status reporting.
func (c *Client) Memo() Memo {
	return c.memo
}

// Fetch returns the JSON payload found at path.
func (c *Client) Fetch(ctx context.Context, path string, opts RequestOptions, useCache bool) (json.RawMessage, error) {
	target := c.Target(path)
	endpoint := endpointLabel(path)

	if useCache {
		if payload, ok := c.memo.Get(ctx, target); ok {
			if c.metrics != nil {
				c.metrics.RecordMemoHit()
			}
			c.logger.Debug("Memo hit:", target)
			return payload, nil
		}
		if c.metrics != nil {
			c.metrics.RecordMemoMiss()
		}
	}

	requestID := uuid.NewString()
	var (
		last    Outcome
		lastErr error
	)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, c.abandoned(target, requestID, attempt, err)
		}

		key, err := c.credentials.Credential(ctx)
		if err != nil {
			if c.metrics != nil {
				c.metrics.RecordNoCredential()
			}
			return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
		}

		payload, outcome := c.attempt(ctx, target, endpoint, key, opts)
		state := Decide(outcome, attempt, c.maxRetries)
		c.logger.Debug("[", requestID, "]", target, "attempt", attempt+1, "->", state)

		if state == StateSucceeded {
			if useCache {
				if err := c.memo.Put(ctx, target, payload); err != nil {
					c.logger.Warn("Failed to memoize", target, ":", err)
				}
			}
			return payload, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, c.abandoned(target, requestID, attempt+1, err)
		}

		last, lastErr = outcome, outcome.failure()

		if outcome.CredentialRejected() {
			c.logger.Warn("Credential rejected with HTTP", outcome.StatusCode, "for", target, "- refreshing keys")
			c.credentials.Refresh(ctx)
			if c.metrics != nil {
				c.metrics.RecordCredentialRefresh()
			}
		}

		if state == StateExhausted {
			break
		}
		if c.metrics != nil {
			c.metrics.RecordRetry(endpoint, state)
		}
	}

	if c.metrics != nil {
		c.metrics.RecordExhausted(endpoint)
	}
	if c.notifier != nil {
		c.notifier.NotifyFetchExhausted(target)
	}
	c.logger.Error("Giving up on", target, "after", c.maxRetries+1, "attempts:", lastErr)

	return nil, &Error{
		Kind:       ErrResourceUnavailable,
		Target:     target,
		StatusCode: last.StatusCode,
		Attempt:    c.maxRetries + 1,
		MaxRetries: c.maxRetries,
		RequestID:  requestID,
		Cause:      lastErr,
	}
}

// abandoned reports a fetch stopped by its caller's context. It is not an
// exhaustion: nothing is recorded and nobody is notified.
func (c *Client) abandoned(target, requestID string, attempts int, cause error) error {
	c.logger.Debug("[", requestID, "]", target, "abandoned after", attempts, "attempts:", cause)
	return fmt.Errorf("fetch %s abandoned after %d attempts: %w", target, attempts, cause)
}

// FetchJSON is Fetch followed by decoding the payload into dest.
func (c *Client) FetchJSON(ctx context.Context, path string, opts RequestOptions, useCache bool, dest interface{}) error {
	payload, err := c.Fetch(ctx, path, opts, useCache)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// attempt performs a single request and reads a successful body.
func (c *Client) attempt(ctx context.Context, target, endpoint, key string, opts RequestOptions) (json.RawMessage, Outcome) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, Outcome{Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, Outcome{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	for name, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.credentialHeader, key)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, Outcome{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordRequest(endpoint, resp.StatusCode, time.Since(start))
	}

	outcome := Outcome{StatusCode: resp.StatusCode}
	if !outcome.ok() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, outcome
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		outcome.Err = fmt.Errorf("failed to read body: %w", err)
		return nil, outcome
	}
	var payload json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		outcome.Err = fmt.Errorf("failed to decode body: %w", err)
		return nil, outcome
	}
	return payload, outcome
}

var numericSegment = regexp.MustCompile(`/\d+(/|$)`)

// endpointLabel strips the query and numeric ids so metric labels stay bounded.
func endpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	for numericSegment.MatchString(path) {
		path = numericSegment.ReplaceAllString(path, "/:id$1")
	}
	return path
}

// IsNoCredential reports whether err came from an empty credential pool.
func IsNoCredential(err error) bool {
	return errors.Is(err, credentials.ErrNoCredentialAvailable)
}
