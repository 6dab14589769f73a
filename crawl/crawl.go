// Package crawl provides crawl orchestration and dispatch.
// It coordinates cache lookups, robots checks, per-domain pacing, fetching
// and the content pipeline for one URL, and schedules many URLs under
// adaptive concurrency with retry.
package crawl

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fwojciec/crawlkit"
	"golang.org/x/sync/singleflight"
)

// Robots-block reporting.
const (
	RobotsBlockedMessage = "Access denied by robots.txt"
	RobotsStatusHeader   = "X-Robots-Status"
	RobotsBlockedStatus  = "Blocked by robots.txt"
)

// Crawler runs one URL at a time: cache lookup, conditional fetch, pipeline,
// cache write and result assembly. It keeps no state between calls beyond
// the collaborators it is given, and is safe for concurrent use.
type Crawler struct {
	Fetcher     crawlkit.Fetcher
	Scraper     crawlkit.Scraper
	Markdown    crawlkit.MarkdownGenerator
	Robots      crawlkit.RobotsChecker
	Cache       crawlkit.CacheStore
	RateLimiter crawlkit.DomainLimiter

	// Chunker is used for text extraction when the run config sets none.
	// Nil splits on blank lines.
	Chunker crawlkit.Chunker

	// AlwaysBypassCache skips cache reads for every request.
	AlwaysBypassCache bool

	Logger *slog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	flight singleflight.Group
}

// Run crawls one URL. It never panics or returns an error: every failure is
// reported through the result's Success, ErrorCode and ErrorMessage.
func (c *Crawler) Run(ctx context.Context, req crawlkit.CrawlRequest) (result *crawlkit.CrawlResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger().Error("crawl panicked", "url", req.URL, "panic", r)
			result = failedResult(req.URL, http.StatusInternalServerError,
				crawlkit.Errorf(crawlkit.EINTERNAL, "crawl panicked: %v", r))
		}
		result.LoadTime = time.Since(start)
		c.logResult(req, result)
	}()

	if err := req.Validate(); err != nil {
		return failedResult(req.URL, http.StatusBadRequest, err)
	}

	cfg := req.Config
	cc := cfg.Cache()
	if c.AlwaysBypassCache {
		cc.Bypass = true
	}
	cacheable := c.Cache != nil && !req.IsRaw()
	key := CacheKey(req.URL, cfg)

	if cacheable && cc.ShouldRead() {
		if entry := c.readCache(ctx, key); entry != nil {
			if entry.Satisfies(cfg) {
				return entry.Result(req.URL)
			}
			c.logger().Debug("partial cache hit discarded", "url", req.URL, "key", key)
		}
	}

	if cacheable && cc.ShouldWrite() {
		return c.shared(ctx, req, key)
	}
	return c.crawl(ctx, req)
}

// shared runs the crawl once for all concurrent callers with the same flight
// key. The crawl is detached from every caller's cancellation so one caller
// giving up does not fail the others; each caller stops waiting when its own
// context ends. Fetches stay bounded by the page timeout.
func (c *Crawler) shared(ctx context.Context, req crawlkit.CrawlRequest, key string) *crawlkit.CrawlResult {
	ch := c.flight.DoChan(flightKey(key, req.Config), func() (any, error) {
		return c.crawlAndStore(context.WithoutCancel(ctx), req, key), nil
	})
	select {
	case r := <-ch:
		return r.Val.(*crawlkit.CrawlResult).Clone()
	case <-ctx.Done():
		return failedResult(req.URL, http.StatusInternalServerError,
			crawlkit.Errorf(crawlkit.ECANCELED, "crawl of %s canceled", req.URL))
	}
}

// crawlAndStore crawls req and caches a successful result. Panics are
// converted to failed results because shared crawls run outside the
// caller's goroutine.
func (c *Crawler) crawlAndStore(ctx context.Context, req crawlkit.CrawlRequest, key string) (res *crawlkit.CrawlResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger().Error("crawl panicked", "url", req.URL, "panic", r)
			res = failedResult(req.URL, http.StatusInternalServerError,
				crawlkit.Errorf(crawlkit.EINTERNAL, "crawl panicked: %v", r))
		}
	}()
	res = c.crawl(ctx, req)
	if res.Success {
		c.writeCache(ctx, key, res)
	}
	return res
}

// crawl fetches and processes a request without consulting the cache.
func (c *Crawler) crawl(ctx context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
	if req.IsRaw() {
		return c.process(ctx, req, &crawlkit.FetchResponse{
			HTML:       strings.TrimPrefix(req.URL, crawlkit.RawPrefix),
			StatusCode: http.StatusOK,
		})
	}

	if req.Config.CheckRobotsTxt && c.Robots != nil {
		allowed, err := c.Robots.CanFetch(ctx, req.URL, userAgent(req.Config))
		if err != nil {
			c.logger().Warn("robots check failed", "url", req.URL, "err", err)
		} else if !allowed {
			return robotsBlockedResult(req.URL)
		}
	}

	resp, err := c.fetch(ctx, req)
	if err != nil {
		status := http.StatusInternalServerError
		if resp != nil && resp.StatusCode != 0 {
			status = resp.StatusCode
		}
		res := failedResult(req.URL, status, err)
		if resp != nil {
			res.ResponseHeaders = resp.Headers
		}
		return res
	}
	return c.process(ctx, req, resp)
}

// fetch waits for the domain's turn and performs one bounded fetch attempt.
func (c *Crawler) fetch(ctx context.Context, req crawlkit.CrawlRequest) (*crawlkit.FetchResponse, error) {
	domain := req.Domain()
	if c.RateLimiter != nil {
		if err := c.RateLimiter.Acquire(ctx, domain); err != nil {
			return nil, crawlkit.Errorf(crawlkit.ECANCELED, "waiting for %s: %v", domain, err)
		}
	}

	fctx, cancel := context.WithTimeout(ctx, req.Config.Timeout())
	defer cancel()

	resp, err := c.Fetcher.Fetch(fctx, req.URL, req.Config)
	if err != nil {
		return nil, classifyFetchError(ctx, req, err)
	}

	if c.isSoftFailure(resp.StatusCode) {
		if c.RateLimiter != nil && !c.RateLimiter.OnSoftFailure(domain, resp.StatusCode) {
			return resp, crawlkit.Errorf(crawlkit.EEXHAUSTED, "%s answered %d after exhausting retries", domain, resp.StatusCode)
		}
		return resp, crawlkit.Errorf(crawlkit.ERATELIMITED, "%s answered %d", domain, resp.StatusCode)
	}
	if c.RateLimiter != nil {
		c.RateLimiter.OnSuccess(domain)
	}
	return resp, nil
}

func (c *Crawler) isSoftFailure(status int) bool {
	if c.RateLimiter != nil {
		return c.RateLimiter.IsSoftFailure(status)
	}
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// classifyFetchError maps a fetch error onto the error taxonomy. Timeouts
// and unclassified network errors are transient.
func classifyFetchError(ctx context.Context, req crawlkit.CrawlRequest, err error) error {
	switch {
	case ctx.Err() != nil:
		return crawlkit.Errorf(crawlkit.ECANCELED, "fetch of %s canceled", req.URL)
	case errors.Is(err, context.DeadlineExceeded):
		return crawlkit.Errorf(crawlkit.EUNAVAILABLE, "fetch of %s timed out after %s", req.URL, req.Config.Timeout())
	}
	var e *crawlkit.Error
	if errors.As(err, &e) {
		return err
	}
	return crawlkit.Errorf(crawlkit.EUNAVAILABLE, "fetch of %s failed: %v", req.URL, err)
}

func (c *Crawler) readCache(ctx context.Context, key string) *crawlkit.CacheEntry {
	entry, err := c.Cache.Get(ctx, key)
	if err != nil {
		c.logger().Warn("cache read failed", "key", key, "err", err)
		return nil
	}
	return entry
}

// writeCache stores a fresh result. Failures are logged, never surfaced.
func (c *Crawler) writeCache(ctx context.Context, key string, res *crawlkit.CrawlResult) {
	entry := crawlkit.NewCacheEntry(key, res, c.now())
	if err := c.Cache.Set(context.WithoutCancel(ctx), key, entry); err != nil {
		c.logger().Warn("cache write failed", "url", res.URL, "key", key, "err", err)
	}
}

func (c *Crawler) logResult(req crawlkit.CrawlRequest, res *crawlkit.CrawlResult) {
	level := slog.LevelDebug
	if req.Config.Verbose {
		level = slog.LevelInfo
	}
	c.logger().Log(context.Background(), level, "crawl",
		"url", req.URL,
		"status", res.StatusCode,
		"success", res.Success,
		"cache_hit", res.CacheHit,
		"duration", res.LoadTime,
		"err", res.ErrorMessage,
	)
}

func (c *Crawler) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func (c *Crawler) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func userAgent(cfg crawlkit.RunConfig) string {
	if cfg.UserAgent == "" {
		return crawlkit.DefaultUserAgent
	}
	return cfg.UserAgent
}

func failedResult(url string, status int, err error) *crawlkit.CrawlResult {
	return &crawlkit.CrawlResult{
		URL:          url,
		StatusCode:   status,
		ErrorCode:    crawlkit.ErrorCode(err),
		ErrorMessage: crawlkit.ErrorMessage(err),
	}
}

func robotsBlockedResult(url string) *crawlkit.CrawlResult {
	return &crawlkit.CrawlResult{
		URL:             url,
		StatusCode:      http.StatusForbidden,
		ErrorCode:       crawlkit.EFORBIDDEN,
		ErrorMessage:    RobotsBlockedMessage,
		ResponseHeaders: map[string]string{RobotsStatusHeader: RobotsBlockedStatus},
	}
}
