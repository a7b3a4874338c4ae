package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=httpx_test -destination=mock_http_client_test.go -source=httpx.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrRateLimited is returned when the per-domain quota is already met.
// The request was rejected locally; no network call was issued.
var ErrRateLimited = errors.New("httpx: rate limit reached for domain")

// StatusError is a non-2xx response. Retry behavior depends on the code:
// 5xx and 429 are transient, everything else is permanent.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpx: unexpected status %d: %s", e.Code, e.Body)
}

// Config controls the shared transport. Zero values fall back to the
// defaults below.
type Config struct {
	Timeout         time.Duration // per-attempt bound
	MaxAttempts     int           // total attempts for transient failures
	RetryBase       time.Duration // backoff base, doubled per attempt
	RetryMax        time.Duration // backoff cap before jitter
	CacheTTL        time.Duration // GET response TTL; 0 disables caching
	CacheMaxEntries int           // oldest entries evicted beyond this
	WindowMax       int           // calls allowed per domain per window
	WindowSpan      time.Duration // sliding window length
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 10 * time.Second
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = 1000
	}
	if c.WindowMax <= 0 {
		c.WindowMax = 60
	}
	if c.WindowSpan <= 0 {
		c.WindowSpan = time.Minute
	}
}

// Client is the shared transport used by every feed adapter. It caches
// successful GET responses for a TTL, enforces a sliding-window quota
// per domain, and retries transient failures with capped exponential
// backoff. Identical concurrent GETs are coalesced into one call.
type Client struct {
	cfg  Config
	http HTTPClient
	log  *zap.Logger

	cache   *responseCache
	windows *domainWindows
	sf      singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Tests use it to
// install a mock.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New builds a Client with pooled transport defaults.
func New(cfg Config, options ...Option) *Client {
	cfg.defaults()
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   3 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Transport: transport},
		log:     zap.NewNop(),
		cache:   newResponseCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		windows: newDomainWindows(cfg.WindowMax, cfg.WindowSpan),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// SetDomainLimit overrides the quota for one domain. Adapters with a
// provider-declared limit call this once at construction; a full URL is
// accepted and reduced to its host.
func (c *Client) SetDomainLimit(domain string, max int, span time.Duration) {
	c.windows.setLimit(domainOf(domain), max, span)
}

// Get fetches rawURL and returns the response body. A cached body within
// its TTL is returned without a network call. A domain whose window is
// full is rejected locally with ErrRateLimited.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	sig := "GET " + rawURL
	v, err, _ := c.sf.Do(sig, func() (any, error) {
		return c.get(ctx, rawURL, sig)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// GetJSON fetches rawURL and unmarshals the body into out. A body that
// does not parse is a permanent failure.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("httpx: decode %s: %w", redactURL(rawURL), err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, rawURL, sig string) ([]byte, error) {
	if body, ok := c.cache.lookup(sig); ok {
		return body, nil
	}

	domain := domainOf(rawURL)
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		// Reserve a window slot before dialing; a slot consumed by a
		// failed call is released so only successes count against the
		// quota.
		reservedAt, ok := c.windows.reserve(domain)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, domain)
		}

		body, err := c.attempt(ctx, rawURL)
		if err == nil {
			c.cache.store(sig, body)
			return body, nil
		}
		c.windows.release(domain, reservedAt)
		lastErr = err

		if permanent(ctx, err) {
			c.log.Debug("request failed permanently",
				zap.String("url", redactURL(rawURL)),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return nil, err
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := backoff(c.cfg.RetryBase, c.cfg.RetryMax, attempt)
		c.log.Debug("transient failure, retrying",
			zap.String("url", redactURL(rawURL)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("httpx: %d attempts failed: %w", c.cfg.MaxAttempts, lastErr)
}

// attempt issues one bounded network call.
func (c *Client) attempt(ctx context.Context, rawURL string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpx: build request: %w", err)
	}
	req.Header.Set("User-Agent", "stockfeed/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpx: read body: %w", err)
	}
	return body, nil
}

// permanent reports whether err must not be retried: auth/not-found
// responses, malformed requests, and aborts of the caller's own context.
// Transport errors, 5xx, and 429 are transient.
func permanent(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusTooManyRequests || se.Code >= 500 {
			return false
		}
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		// Per-attempt timeouts and connection failures are transient.
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The per-attempt deadline fired but the caller's context is
		// still live: transient.
		return false
	}
	// Anything unrecognized (request build errors and the like).
	return true
}

// backoff returns base*2^(attempt-1) capped at max, plus up to 25% jitter.
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > max || d <= 0 {
		d = max
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// redactURL strips query parameters so credentials never reach logs.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.String()
}
