// Package http provides HTTP implementations of crawlkit.Fetcher,
// crawlkit.RobotsChecker and crawlkit.SitemapService for static sites that
// don't require JavaScript rendering.
package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fwojciec/crawlkit"
	"github.com/sony/gobreaker/v2"
	"resty.dev/v3"
)

// Defaults for NewFetcher.
const (
	DefaultFetchTimeout    = 30 * time.Second
	DefaultMaxBodySize     = 10 << 20
	DefaultMaxRedirects    = 10
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
)

// Ensure Fetcher implements crawlkit.Fetcher at compile time.
var _ crawlkit.Fetcher = (*Fetcher)(nil)

// Fetcher retrieves HTML content with plain HTTP requests. Each host gets
// its own circuit breaker; while a host's breaker is open, fetches fail
// immediately with EUNAVAILABLE.
//
// Unlike rod.Fetcher, it does not execute JavaScript and cannot capture
// screenshots or PDFs.
type Fetcher struct {
	client *resty.Client

	timeout         time.Duration
	maxBodySize     int64
	breakerFailures uint32
	breakerTimeout  time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*resty.Response]
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the client-wide request timeout. The context passed to
// Fetch may impose a shorter one.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithMaxBodySize limits how many response bytes are read.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		f.maxBodySize = n
	}
}

// WithCircuitBreaker sets how many consecutive failures open a host's
// breaker and how long it stays open.
func WithCircuitBreaker(failures uint32, openFor time.Duration) Option {
	return func(f *Fetcher) {
		f.breakerFailures = failures
		f.breakerTimeout = openFor
	}
}

// NewFetcher creates a new HTTP-based Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:         DefaultFetchTimeout,
		maxBodySize:     DefaultMaxBodySize,
		breakerFailures: DefaultBreakerFailures,
		breakerTimeout:  DefaultBreakerTimeout,
		breakers:        make(map[string]*gobreaker.CircuitBreaker[*resty.Response]),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.client = resty.New().
		SetTimeout(f.timeout).
		SetResponseBodyLimit(f.maxBodySize).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(DefaultMaxRedirects))

	return f
}

// Fetch retrieves the URL. Any HTTP status is returned as a response; only
// transport failures, open breakers and unsupported options are errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, cfg crawlkit.RunConfig) (*crawlkit.FetchResponse, error) {
	if cfg.Screenshot || cfg.PDF {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "http fetcher cannot capture screenshots or PDFs")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "unsupported url %q", rawURL)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = crawlkit.DefaultUserAgent
	}

	resp, err := f.breaker(u.Host).Execute(func() (*resty.Response, error) {
		resp, err := f.client.R().
			WithContext(ctx).
			SetHeader("User-Agent", userAgent).
			Get(rawURL)
		if err != nil {
			return resp, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, crawlkit.Errorf(crawlkit.EUNAVAILABLE, "circuit open for %s", u.Host)
	case err != nil && !errors.Is(err, errServerStatus):
		return nil, err
	}

	return &crawlkit.FetchResponse{
		HTML:          string(resp.Bytes()),
		StatusCode:    resp.StatusCode(),
		Headers:       flattenHeader(resp.Header()),
		RedirectedURL: finalURL(resp, rawURL),
	}, nil
}

// Close releases the underlying client.
func (f *Fetcher) Close() error {
	return f.client.Close()
}

// errServerStatus marks 5xx answers as failures for the breaker without
// failing the fetch.
var errServerStatus = errors.New("server error status")

func (f *Fetcher) breaker(host string) *gobreaker.CircuitBreaker[*resty.Response] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[host]; ok {
		return cb
	}
	failures := f.breakerFailures
	cb := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:    host,
		Timeout: f.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	f.breakers[host] = cb
	return cb
}

func finalURL(resp *resty.Response, requested string) string {
	if resp.RawResponse == nil || resp.RawResponse.Request == nil || resp.RawResponse.Request.URL == nil {
		return ""
	}
	if u := resp.RawResponse.Request.URL.String(); u != requested {
		return u
	}
	return ""
}

func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	m := make(map[string]string, len(h))
	for k := range h {
		m[k] = h.Get(k)
	}
	return m
}
