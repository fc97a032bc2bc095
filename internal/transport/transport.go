package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sentinel errors surfaced by Fetch. Callers test with errors.Is.
var (
	ErrTimeout          = errors.New("request timed out")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrInvalidURL       = errors.New("invalid URL")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Config controls HTTP fetching behaviour.
type Config struct {
	UserAgent         string
	Timeout           time.Duration // default per-call timeout
	MaxRedirects      int
	MaxAttempts       int // total attempts, including the first
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	MaxIdleConns      int
	MaxConnsPerHost   int
	MaxBodyBytes      int64
	RequestsPerSecond float64 // 0 disables rate limiting
	RequestBurst      int
}

// Options are per-call overrides for Fetch.
type Options struct {
	Timeout time.Duration // overrides Config.Timeout when > 0
	Headers map[string]string
}

// Response is the outcome of a successful fetch. Body is capped at
// Config.MaxBodyBytes.
type Response struct {
	Status   int
	Body     []byte
	FinalURL string
	Header   http.Header
}

// Client is the shared HTTP client used by every component that talks to the
// network. Connections are pooled and reused across calls; no other component
// holds transport state.
type Client struct {
	hc      *http.Client
	cfg     Config
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates a transport client from the given configuration.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 * 1024 * 1024
	}

	tr := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	hc := &http.Client{
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.RequestBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		hc:      hc,
		cfg:     cfg,
		limiter: limiter,
		log:     log.With().Str("component", "transport").Logger(),
	}
}

// Fetch performs a GET against rawURL, retrying transient failures
// (connection errors, timeouts, 5xx) with exponential backoff and jitter.
// Client errors (4xx), malformed URLs and redirect-limit violations are never
// retried. The returned error wraps ErrTimeout, ErrTooManyRedirects,
// ErrInvalidURL or a *StatusError as appropriate.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q is not absolute http(s)", ErrInvalidURL, rawURL)
	}

	timeout := c.cfg.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BackoffBase
	bo.MaxInterval = c.cfg.BackoffMax
	bo.MaxElapsedTime = 0

	var out *Response
	attempt := 0
	op := func() error {
		attempt++
		resp, err := c.attempt(ctx, rawURL, timeout, opts.Headers)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			c.log.Debug().Str("url", rawURL).Int("attempt", attempt).Err(err).Msg("fetch attempt failed")
			return err
		}
		out = resp
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return out, nil
}

// attempt performs a single request with its own deadline.
func (c *Client) attempt(ctx context.Context, rawURL string, timeout time.Duration, headers map[string]string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if errors.Is(err, ErrTooManyRedirects) {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrTooManyRedirects)
		}
		if isTimeout(err) {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrTimeout)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrTimeout)
		}
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return &Response{
		Status:   resp.StatusCode,
		Body:     body,
		FinalURL: resp.Request.URL.String(),
		Header:   resp.Header,
	}, nil
}

// isPermanent reports whether err must not be retried: client errors,
// malformed URLs and redirect-limit violations indicate caller mistakes or
// target misbehaviour that another attempt cannot fix.
func isPermanent(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code < 500
	}
	return errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrTooManyRedirects)
}

// isTimeout matches both context deadlines and net-level timeouts.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// url.Error sometimes stringifies deadline errors from the transport.
	return strings.Contains(err.Error(), "Client.Timeout")
}
