// Package assistant is the typed HTTP client for the EITC answering service.
// Every operation is paced by its own rate limiter, retried on transient
// failures and sent through the credential transport.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eitc-assistant/internal/logger"
	"eitc-assistant/internal/resilience"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4096
	maxBody        = 1 << 20
)

// Intervals is the minimum spacing between call starts for each operation
// group. A zero value disables pacing for that group.
type Intervals struct {
	Chat        time.Duration
	Feedback    time.Duration
	History     time.Duration
	Calculation time.Duration
	Admin       time.Duration
	Health      time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Chat:        time.Second,
		Feedback:    2 * time.Second,
		History:     500 * time.Millisecond,
		Calculation: time.Second,
		Admin:       500 * time.Millisecond,
		Health:      250 * time.Millisecond,
	}
}

func DefaultRetryPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// errorPayload is the error body shape returned by the service.
type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	retry      resilience.RetryPolicy
	intervals  Intervals
	clock      resilience.Clock
	log        *logger.Logger
	now        func() time.Time

	tokens         resilience.TokenStore
	onUnauthorized func(*http.Request)

	chat        *resilience.Limiter
	feedback    *resilience.Limiter
	history     *resilience.Limiter
	calculation *resilience.Limiter
	admin       *resilience.Limiter
	health      *resilience.Limiter
}

type Option func(*Client)

// WithHTTPClient supplies the base client. Its transport is wrapped, the
// value passed in is not modified.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithCredentials installs the bearer token source. onUnauthorized runs after
// a 401 has evicted the token.
func WithCredentials(tokens resilience.TokenStore, onUnauthorized func(*http.Request)) Option {
	return func(c *Client) {
		c.tokens = tokens
		c.onUnauthorized = onUnauthorized
	}
}

func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

func WithIntervals(in Intervals) Option {
	return func(c *Client) {
		c.intervals = in
	}
}

// WithClock drives rate limiting from c instead of wall time.
func WithClock(clock resilience.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a Client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("assistant: base url must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("assistant: parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("assistant: base url %q must be an absolute http(s) url", baseURL)
	}

	c := &Client{
		baseURL:   baseURL,
		timeout:   defaultTimeout,
		retry:     DefaultRetryPolicy(),
		intervals: DefaultIntervals(),
		log:       logger.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.httpClient = c.wrapHTTPClient(c.httpClient)

	var limOpts []resilience.LimiterOption
	if c.clock != nil {
		limOpts = append(limOpts, resilience.WithClock(c.clock))
	}
	c.chat = resilience.NewLimiter(c.intervals.Chat, limOpts...)
	c.feedback = resilience.NewLimiter(c.intervals.Feedback, limOpts...)
	c.history = resilience.NewLimiter(c.intervals.History, limOpts...)
	c.calculation = resilience.NewLimiter(c.intervals.Calculation, limOpts...)
	c.admin = resilience.NewLimiter(c.intervals.Admin, limOpts...)
	c.health = resilience.NewLimiter(c.intervals.Health, limOpts...)
	return c, nil
}

func (c *Client) wrapHTTPClient(base *http.Client) *http.Client {
	var hc http.Client
	if base != nil {
		hc = *base
	}
	if hc.Timeout <= 0 {
		hc.Timeout = c.timeout
	}
	hc.Transport = &resilience.CredentialTransport{
		Base:   hc.Transport,
		Tokens: c.tokens,
		OnUnauthorized: func(req *http.Request) {
			c.log.Warn("assistant: credential evicted after 401", "path", req.URL.Path)
			if c.onUnauthorized != nil {
				c.onUnauthorized(req)
			}
		},
		OnEvictError: func(err error) {
			c.log.Error("assistant: credential eviction failed", "err", err)
		},
	}
	return &hc
}

// policy decorates the configured retry policy with logging for op.
func (c *Client) policy(op string) resilience.RetryPolicy {
	p := c.retry
	observe := p.OnRetry
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.log.Warn("assistant: retrying", "op", op, "attempt", attempt, "delay", delay.String(), "err", err)
		if observe != nil {
			observe(attempt, err, delay)
		}
	}
	return p
}

// invoke runs raw as op: paced by lim, then retried. The limiter bounds the
// first attempt only.
func invoke[T any](ctx context.Context, c *Client, lim *resilience.Limiter, op string, raw resilience.Func[T]) (T, error) {
	return resilience.RateLimited(lim, resilience.Retrying(c.policy(op), raw))(ctx)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// doJSON performs one HTTP exchange. in is marshalled as the request body
// when non-nil; a 2xx body is decoded into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	u := c.endpoint(path, query)

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("assistant: %s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("assistant: %s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		se := &ServiceError{Op: op, StatusCode: res.StatusCode, URL: u}
		var payload errorPayload
		if json.Unmarshal(buf, &payload) == nil {
			se.Code = payload.Error
			se.Message = payload.Message
		}
		return se
	}

	if out == nil {
		return nil
	}
	buf, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("read response body: %w", err)}
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("assistant: %s: decode response: %w", op, err)
	}
	return nil
}

// parseTimestamp accepts RFC 3339 and the zone-less ISO 8601 form the
// service emits, read as UTC. Unparseable input yields the zero time.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC); err == nil {
		return t
	}
	return time.Time{}
}
