// Package httputil provides shared HTTP client utilities for zoneweaver providers.
package httputil

import (
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default HTTP client configuration values.
const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is used when no custom user agent is specified.
	DefaultUserAgent = "zoneweaver/1.0"

	// DefaultRetryBaseDelay is the first wait between retried requests.
	DefaultRetryBaseDelay = 250 * time.Millisecond

	// DefaultRetryMaxDelay caps the wait between retried requests.
	DefaultRetryMaxDelay = 5 * time.Second
)

// ClientConfig contains configuration for creating an HTTP client.
type ClientConfig struct {
	// Timeout is the HTTP client timeout, covering every retry. Defaults to 30 seconds.
	Timeout time.Duration

	// TLSSkipVerify controls whether to skip TLS certificate verification.
	// WARNING: This should only be used for testing or when connecting to
	// servers with self-signed certificates. It is insecure for production.
	TLSSkipVerify bool

	// UserAgent is the User-Agent header to set on requests.
	// Defaults to "zoneweaver/1.0" if not specified.
	UserAgent string

	// Retries is the number of times a request is re-sent after a transport
	// error or a 429/5xx response. Zero disables retries.
	Retries int

	// RetryBaseDelay and RetryMaxDelay bound the exponential wait between retries.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Logger enables debug logging for HTTP requests.
	// If nil, no debug logging is performed.
	Logger *slog.Logger
}

// Retryable reports whether a response status is worth re-sending the request for.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// userAgentTransport wraps an http.RoundTripper to add User-Agent header
// and optionally log requests at debug level.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}

	if t.logger != nil {
		t.logger.Debug("HTTP request",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
		)
	}

	resp, err := t.base.RoundTrip(req)

	if t.logger != nil && resp != nil {
		t.logger.Debug("HTTP response",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
			slog.Int("status", resp.StatusCode),
		)
	}

	return resp, err
}

// retryTransport re-sends requests that failed in transport or were
// answered with a retryable status. The last response is returned as is
// once the retries are used up.
type retryTransport struct {
	base      http.RoundTripper
	retries   int
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    *slog.Logger
}

func (t *retryTransport) newBackOff(req *http.Request) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.baseDelay
	b.MaxInterval = t.maxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.retries)), req.Context())
}

// RoundTrip implements http.RoundTripper.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// A body that cannot be rewound can only be sent once.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return t.base.RoundTrip(req)
	}

	var resp *http.Response
	attempt := 0
	op := func() error {
		attempt++
		r := req
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			r = req.Clone(req.Context())
			r.Body = body
		}

		res, err := t.base.RoundTrip(r)
		if err != nil {
			if req.Context().Err() != nil {
				return backoff.Permanent(err)
			}
			t.logRetry(req, attempt, slog.String("error", err.Error()))
			return err
		}
		if !Retryable(res.StatusCode) || attempt > t.retries {
			resp = res
			return nil
		}
		_, _ = io.Copy(io.Discard, res.Body)
		res.Body.Close()
		t.logRetry(req, attempt, slog.Int("status", res.StatusCode))
		return errRetryableStatus
	}

	if err := backoff.Retry(op, t.newBackOff(req)); err != nil {
		return nil, err
	}
	return resp, nil
}

var errRetryableStatus = errors.New("retryable status")

func (t *retryTransport) logRetry(req *http.Request, attempt int, reason slog.Attr) {
	if t.logger == nil {
		return
	}
	t.logger.Debug("HTTP request will be retried",
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.Int("attempt", attempt),
		reason,
	)
}

// NewClient creates an HTTP client with the specified configuration.
// If cfg is nil, defaults are used (30s timeout, TLS verification enabled, no retries).
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	baseTransport := http.DefaultTransport
	if cfg.TLSSkipVerify {
		baseTransport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec // Intentional: user explicitly requested skip
			},
		}
	}

	if cfg.Retries > 0 {
		rt := &retryTransport{
			base:      baseTransport,
			retries:   cfg.Retries,
			baseDelay: cfg.RetryBaseDelay,
			maxDelay:  cfg.RetryMaxDelay,
			logger:    cfg.Logger,
		}
		if rt.baseDelay <= 0 {
			rt.baseDelay = DefaultRetryBaseDelay
		}
		if rt.maxDelay <= 0 {
			rt.maxDelay = DefaultRetryMaxDelay
		}
		baseTransport = rt
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &userAgentTransport{
			base:      baseTransport,
			userAgent: userAgent,
			logger:    cfg.Logger,
		},
	}
}

// DefaultClient returns a new HTTP client with default settings.
// Equivalent to NewClient(nil).
func DefaultClient() *http.Client {
	return NewClient(nil)
}
