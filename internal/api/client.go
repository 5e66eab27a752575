package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/apierrors"
)

const (
	// DefaultTimeout is the HTTP client timeout when none is configured.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is zero: transport failures surface to the caller.
	DefaultMaxRetries = 0
	// DefaultRetryDelay is the base backoff delay when retries are enabled.
	DefaultRetryDelay = time.Second

	maxResponseSize = 8 << 20
)

// Observer is called once per HTTP attempt. status is zero when the request
// failed before a response arrived.
type Observer func(route string, status int, elapsed time.Duration)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the server root, e.g. "https://vault.example.com".
	BaseURL string
	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
	// Timeout is the per-request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
	// MaxRetries is the number of retries for retryable responses and
	// network errors. Zero disables retries.
	MaxRetries int
	// RetryDelay is the base backoff delay. Defaults to DefaultRetryDelay.
	RetryDelay time.Duration
	// RetryOn lists status codes that trigger a retry. Defaults to
	// DefaultRetryStatuses.
	RetryOn []int
	// RateLimit caps outgoing requests per second. Zero means unlimited.
	RateLimit rate.Limit
	// Burst is the limiter burst size. Defaults to 1 when RateLimit is set.
	Burst int
	// Observer, if set, is notified of every attempt.
	Observer Observer
}

// Client is the HTTP API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *RetryPolicy
	limiter    *rate.Limiter
	observer   Observer
}

// NewClient creates a client from an explicit configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		retry:      NewRetryPolicy(cfg.MaxRetries, cfg.RetryDelay, cfg.RetryOn),
		observer:   cfg.Observer,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	return c, nil
}

// Option configures a Config for New.
type Option func(*Config)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithRetries sets the number of retries.
func WithRetries(retries int) Option {
	return func(c *Config) { c.MaxRetries = retries }
}

// WithRetryDelay sets the base backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) { c.RetryDelay = d }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithRateLimit paces outgoing requests to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Config) {
		c.RateLimit = r
		c.Burst = burst
	}
}

// WithObserver sets the per-attempt observer.
func WithObserver(o Observer) Option {
	return func(c *Config) { c.Observer = o }
}

// New creates a client using functional options.
func New(opts ...Option) (*Client, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewClient(cfg)
}

// BaseURL returns the configured server root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	route  string
	method string
	path   string
	token  string
	body   any

	// idempotent requests may be repeated after a failure.
	idempotent bool
}

// Do sends a JSON request and decodes a JSON response into result. token,
// when non-empty, is sent as a bearer token. A nil result discards the body.
// Only POST requests are never retried.
func (c *Client) Do(ctx context.Context, method, path, token string, body, result any) error {
	return c.doJSON(ctx, request{
		route:      path,
		method:     method,
		path:       path,
		token:      token,
		body:       body,
		idempotent: method != http.MethodPost,
	}, result)
}

func (c *Client) doJSON(ctx context.Context, r request, result any) error {
	data, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	if result == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", r.route, err)
	}
	return nil
}

// do performs the request with pacing and retries and returns the body of
// a 2xx response.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	var payload []byte
	if r.body != nil {
		var err error
		payload, err = json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		out, err := c.attempt(ctx, r, payload, attempt)
		if err == nil {
			return out.data, nil
		}

		var netErr *apierrors.NetworkError
		if out.status == 0 && (!errors.As(err, &netErr) || ctx.Err() != nil) {
			return nil, err
		}
		if !c.retry.retryable(attempt, out.status, r.idempotent) {
			return nil, err
		}
		if werr := sleep(ctx, c.retry.Delay(attempt, out.retryAfter)); werr != nil {
			return nil, err
		}
	}
}

// outcome is what one attempt produced. status is zero when no response
// arrived.
type outcome struct {
	data       []byte
	status     int
	retryAfter time.Duration
}

func (c *Client) attempt(ctx context.Context, r request, payload []byte, attempt int) (outcome, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	url := c.baseURL + r.path
	req, err := http.NewRequestWithContext(ctx, r.method, url, bodyReader)
	if err != nil {
		return outcome{}, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(r.route, 0, start)
		return outcome{}, &apierrors.NetworkError{Err: err, URL: url, Attempt: attempt + 1}
	}
	defer resp.Body.Close()
	c.observe(r.route, resp.StatusCode, start)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return outcome{}, &apierrors.NetworkError{Err: err, URL: url, Attempt: attempt + 1}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseErrorResponse(resp, data)
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return outcome{status: resp.StatusCode, retryAfter: apiErr.RetryAfter}, apiErr
	}
	return outcome{data: data, status: resp.StatusCode}, nil
}

func (c *Client) observe(route string, status int, start time.Time) {
	if c.observer != nil {
		c.observer(route, status, time.Since(start))
	}
}

func parseErrorResponse(resp *http.Response, body []byte) *apierrors.APIError {
	var errResp struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}

	requestID := resp.Header.Get("X-Request-Id")
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.RequestID != "" {
			requestID = errResp.RequestID
		}
		msg := errResp.Error
		if msg == "" {
			msg = errResp.Message
		}
		if msg != "" {
			return &apierrors.APIError{
				StatusCode: resp.StatusCode,
				Message:    msg,
				RequestID:  requestID,
			}
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &apierrors.APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		RequestID:  requestID,
	}
}
