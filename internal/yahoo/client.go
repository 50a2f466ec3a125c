// Package yahoo is the primary data source: daily price history, annual
// financial statements and shares outstanding from Yahoo Finance. No API key
// is required.
package yahoo

import (
	"context"
	"log/slog"
	"time"

	"resty.dev/v3"

	"equitycollector/internal/fetcher"
	"equitycollector/internal/ratelimit"
)

const (
	// DefaultBaseURL is the Yahoo Finance query host
	DefaultBaseURL = "https://query2.finance.yahoo.com"

	// DefaultRetries is the number of transport retries per request
	DefaultRetries = 2
)

// Client is a Yahoo Finance client
type Client struct {
	baseURL string
	timeout time.Duration
	retries int
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time

	http *resty.Client
}

// Option configures the Client
type Option func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetries sets the number of transport retries
func WithRetries(n int) Option {
	return func(c *Client) {
		c.retries = n
	}
}

// WithLimiter shares a rate limiter with other clients
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithLogger sets a logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock overrides the clock used for the end of the fundamentals window
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new Yahoo Finance client
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		timeout: fetcher.DefaultTimeout,
		retries: DefaultRetries,
		logger:  slog.Default(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.http = fetcher.NewHTTPClient(c.baseURL, fetcher.ClientOptions{
		Timeout: c.timeout,
		Retries: c.retries,
	})

	return c
}

// Close releases the underlying HTTP client
func (c *Client) Close() error {
	return c.http.Close()
}

// get waits for the limiter and performs a GET request
func (c *Client) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, ratelimit.APIYahoo); err != nil {
		return nil, fetcher.Classify(err)
	}

	c.logger.Debug("yahoo request", "path", path)

	return fetcher.Get(c.http.R().
		SetContext(ctx).
		SetQueryParams(params), path)
}
