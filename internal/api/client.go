package api

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"resty.dev/v3"

	"github.com/rickgao/quoteboard/internal/version"
)

// Default client settings.
const (
	DefaultTimeout           = 10 * time.Second
	DefaultRetryCount        = 3
	DefaultRetryWait         = 500 * time.Millisecond
	DefaultRequestsPerMinute = 120
)

// TokenSource supplies a current OAuth access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client provides access to the broker REST API.
type Client struct {
	baseURL string
	tokens  TokenSource
	rest    *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		tokens:  tokens,
		limiter: rate.NewLimiter(perMinute(DefaultRequestsPerMinute), 1),
		logger:  slog.Default(),
	}
	c.rest = resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent()).
		SetTimeout(DefaultTimeout).
		SetRetryCount(DefaultRetryCount).
		SetRetryWaitTime(DefaultRetryWait).
		SetRetryMaxWaitTime(10 * DefaultRetryWait).
		AddRetryConditions(retryCondition).
		AddRetryHooks(c.retryHook)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.rest.SetTimeout(d)
	}
}

// WithRetries sets the retry count and the base wait between attempts.
func WithRetries(count int, wait time.Duration) ClientOption {
	return func(c *Client) {
		c.rest.SetRetryCount(count).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(10 * wait)
	}
}

// WithRateLimit caps outgoing requests per minute. Zero or less disables pacing.
func WithRateLimit(requestsPerMinute int) ClientOption {
	return func(c *Client) {
		if requestsPerMinute <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(perMinute(requestsPerMinute), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.rest.Close()
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}
