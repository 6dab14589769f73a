//go:build integration

package http_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fwojciec/crawlkit"
	"github.com/fwojciec/crawlkit/crawl"
	"github.com/fwojciec/crawlkit/goquery"
	"github.com/fwojciec/crawlkit/htmltomarkdown"
	crawlhttp "github.com/fwojciec/crawlkit/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// htmx.org declares its sitemap in robots.txt.
const liveSite = "https://htmx.org"

func TestSitemapService_Integration_LimitedBatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	filter, err := crawlkit.NewURLFilter([]string{`/docs/`}, nil, 5)
	require.NoError(t, err)

	urls, err := crawlhttp.NewSitemapService(nil).DiscoverURLs(ctx, liveSite, filter)

	require.NoError(t, err)
	require.NotEmpty(t, urls)
	assert.LessOrEqual(t, len(urls), 5)
	for _, u := range urls {
		assert.Contains(t, u, "/docs/")
	}
}

func TestSitemapService_Integration_DispatchesDiscoveredBatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	filter, err := crawlkit.NewURLFilter(nil, nil, 3)
	require.NoError(t, err)
	urls, err := crawlhttp.NewSitemapService(nil).DiscoverURLs(ctx, liveSite, filter)
	require.NoError(t, err)
	require.NotEmpty(t, urls)

	limiter := crawl.NewDomainLimiter()
	c := &crawl.Crawler{
		Fetcher:     crawlhttp.NewFetcher(crawlhttp.WithTimeout(20 * time.Second)),
		Scraper:     goquery.NewScraper(),
		Markdown:    htmltomarkdown.NewGenerator(nil),
		RateLimiter: limiter,
	}
	d := crawl.NewDispatcher(c)
	d.RateLimiter = limiter
	d.MaxConcurrency = 2

	outcomes, err := d.Run(ctx, urls, crawlkit.DefaultRunConfig())

	require.NoError(t, err)
	require.Len(t, outcomes, len(urls))
	for _, o := range outcomes {
		require.Equal(t, crawlkit.OutcomeSucceeded, o.Status, o.Error)
		assert.NotEmpty(t, strings.TrimSpace(o.Result.Markdown), o.URL)
	}
}
