package fetcher

import (
	"log/slog"
	"time"

	"resty.dev/v3"
)

const (
	// Default retry configuration
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second

	// DefaultTimeout bounds every request so a hanging provider cannot block a run
	DefaultTimeout = 30 * time.Second

	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// ClientOptions tunes the shared HTTP client
type ClientOptions struct {
	// Timeout for a single request attempt. Zero means DefaultTimeout.
	Timeout time.Duration
	// Retries is the number of transport-level retries. Zero disables retrying.
	Retries int
}

// NewHTTPClient creates a new HTTP client with a request timeout and, when
// retries are enabled, exponential backoff on retryable failures
func NewHTTPClient(baseURL string, opts ClientOptions) *resty.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	if opts.Retries > 0 {
		client.
			SetRetryCount(opts.Retries).
			SetRetryWaitTime(defaultRetryWaitTime).
			SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
			AddRetryConditions(retryCondition).
			AddRetryHooks(retryHook)
	}

	return client
}

// Get executes a GET request and returns the response body. Transport errors
// are classified into network or timeout errors and non-2xx statuses into
// HTTP errors.
func Get(req *resty.Request, url string) ([]byte, error) {
	resp, err := req.Get(url)
	if err != nil {
		return nil, Classify(err)
	}

	body := resp.Bytes()
	if !resp.IsSuccess() {
		return body, ClassifyHTTPError(resp.StatusCode())
	}

	return body, nil
}

// retryCondition determines whether a request should be retried based on the response and error
func retryCondition(r *resty.Response, err error) bool {
	// Retry on network errors
	if err != nil {
		return true
	}

	switch {
	case r.StatusCode() >= 500:
		return true
	case r.StatusCode() == 429:
		return true
	case r.StatusCode() == 408:
		return true
	}

	return false
}

// retryHook logs retry attempts for observability
func retryHook(r *resty.Response, err error) {
	if err != nil {
		slog.Debug("retrying request due to error",
			"url", r.Request.URL,
			"attempt", r.Request.Attempt,
			"error", err.Error())
		return
	}

	slog.Debug("retrying request due to status code",
		"url", r.Request.URL,
		"attempt", r.Request.Attempt,
		"status_code", r.StatusCode())
}
