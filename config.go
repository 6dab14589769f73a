package crawlkit

import (
	"net/url"
	"strings"
	"time"
)

// RawPrefix marks a request URL whose remainder is the HTML itself.
const RawPrefix = "raw:"

// Defaults applied by DefaultRunConfig.
const (
	DefaultPageTimeout = 30 * time.Second
	DefaultUserAgent   = "Mozilla/5.0 (compatible; crawlkit/1.0; +https://github.com/fwojciec/crawlkit)"
)

// RunConfig holds the options recognized for a single crawl. It is owned by
// the caller; the crawler reads it but never mutates it.
type RunConfig struct {
	// CacheMode selects whether cache reads and writes apply.
	CacheMode CacheMode

	// BypassCache skips cache reads for this call regardless of CacheMode.
	BypassCache bool

	// FingerprintCacheKey keys cache entries by URL plus a fingerprint of
	// the strategies that shape the output.
	FingerprintCacheKey bool

	// WordCountThreshold drops text blocks with fewer words. Zero keeps everything.
	WordCountThreshold int

	// CSSSelector restricts scraping to matching elements. Empty means the whole document.
	CSSSelector string

	Screenshot bool
	PDF        bool

	// Chunking splits text for text-based extraction strategies. Nil uses
	// the crawler's default.
	Chunking Chunker

	// Extraction produces ExtractedContent. Nil or NoExtraction disables it.
	Extraction ExtractionStrategy

	CheckRobotsTxt bool
	UserAgent      string

	// PageTimeout bounds each fetch attempt. Zero uses DefaultPageTimeout.
	PageTimeout time.Duration

	// Stream selects streaming delivery for batches.
	Stream bool

	Verbose bool
}

// DefaultRunConfig returns a RunConfig with cache enabled and default timeouts.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		CacheMode:   CacheEnabled,
		UserAgent:   DefaultUserAgent,
		PageTimeout: DefaultPageTimeout,
	}
}

// Validate returns an error if the configuration contains invalid fields.
func (c RunConfig) Validate() error {
	if _, err := ParseCacheMode(string(c.CacheMode)); err != nil {
		return err
	}
	if c.WordCountThreshold < 0 {
		return Errorf(EINVALID, "word count threshold must not be negative")
	}
	if c.PageTimeout < 0 {
		return Errorf(EINVALID, "page timeout must not be negative")
	}
	return nil
}

// Cache returns the cache context derived from the configuration.
func (c RunConfig) Cache() CacheContext {
	return CacheContext{Mode: c.CacheMode, Bypass: c.BypassCache}
}

// Timeout returns the per-attempt fetch timeout.
func (c RunConfig) Timeout() time.Duration {
	if c.PageTimeout == 0 {
		return DefaultPageTimeout
	}
	return c.PageTimeout
}

// CrawlRequest asks for one URL to be crawled under a configuration.
type CrawlRequest struct {
	URL    string
	Config RunConfig
}

// IsRaw reports whether the request carries literal HTML rather than a URL.
func (r CrawlRequest) IsRaw() bool {
	return strings.HasPrefix(r.URL, RawPrefix)
}

// Validate returns an error if the request cannot be crawled.
func (r CrawlRequest) Validate() error {
	if r.URL == "" {
		return Errorf(EINVALID, "url required")
	}
	if !r.IsRaw() {
		u, err := url.Parse(r.URL)
		if err != nil {
			return Errorf(EINVALID, "invalid url %q: %v", r.URL, err)
		}
		if u.Scheme == "" {
			return Errorf(EINVALID, "url %q must be scheme-qualified", r.URL)
		}
	}
	return r.Config.Validate()
}

// Domain returns the host a request is paced by. Raw requests have no domain.
func (r CrawlRequest) Domain() string {
	if r.IsRaw() {
		return ""
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
