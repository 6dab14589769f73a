package main_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/fwojciec/crawlkit"
	main "github.com/fwojciec/crawlkit/cmd/crawlkit"
	"github.com/fwojciec/crawlkit/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSitemapCmd_Run(t *testing.T) {
	t.Parallel()

	discovered := []string{
		"https://example.com/docs/a",
		"https://example.com/docs/b",
		"https://example.com/docs/c",
	}

	t.Run("crawls discovered urls up to the limit", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newDeps(&mock.Runner{
			RunFn: func(_ context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
				return &crawlkit.CrawlResult{URL: req.URL, StatusCode: http.StatusOK, Success: true}
			},
		})
		deps.Sitemaps = &mock.SitemapService{
			DiscoverURLsFn: func(context.Context, string, *crawlkit.URLFilter) ([]string, error) {
				return discovered, nil
			},
		}

		cmd := &main.SitemapCmd{URL: "https://example.com", Limit: 2}
		require.NoError(t, cmd.Run(deps))

		lines := decodeLines(t, stdout.String())
		require.Len(t, lines, 2)
		assert.Equal(t, discovered[0], lines[0].URL)
		assert.Equal(t, discovered[1], lines[1].URL)
	})

	t.Run("compiles include and exclude filters", func(t *testing.T) {
		t.Parallel()

		var got *crawlkit.URLFilter
		deps, stdout, _ := newDeps(nil)
		deps.Sitemaps = &mock.SitemapService{
			DiscoverURLsFn: func(_ context.Context, _ string, filter *crawlkit.URLFilter) ([]string, error) {
				got = filter
				return discovered, nil
			},
		}

		cmd := &main.SitemapCmd{
			URL:     "https://example.com",
			Include: []string{"/docs/"},
			Exclude: []string{"/b$"},
			Preview: true,
		}
		require.NoError(t, cmd.Run(deps))

		require.NotNil(t, got)
		assert.True(t, got.Match("https://example.com/docs/a"))
		assert.False(t, got.Match("https://example.com/docs/b"))
		assert.False(t, got.Match("https://example.com/blog/a"))
		assert.Equal(t, discovered[0]+"\n"+discovered[2]+"\n", stdout.String())
	})

	t.Run("batches only filtered urls within the limit", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var crawled []string
		deps, stdout, _ := newDeps(&mock.Runner{
			RunFn: func(_ context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
				mu.Lock()
				crawled = append(crawled, req.URL)
				mu.Unlock()
				return &crawlkit.CrawlResult{URL: req.URL, StatusCode: http.StatusOK, Success: true}
			},
		})
		deps.Sitemaps = &mock.SitemapService{
			URLs: []string{
				"https://example.com/blog/x",
				"https://example.com/docs/a",
				"https://example.com/docs/a",
				"https://example.com/docs/b",
				"https://example.com/docs/c",
			},
		}

		cmd := &main.SitemapCmd{URL: "https://example.com", Include: []string{"/docs/"}, Limit: 2}
		require.NoError(t, cmd.Run(deps))

		assert.ElementsMatch(t, []string{"https://example.com/docs/a", "https://example.com/docs/b"}, crawled)
		assert.Len(t, decodeLines(t, stdout.String()), 2)
	})

	t.Run("rejects a malformed pattern without discovering", func(t *testing.T) {
		t.Parallel()

		deps, _, stderr := newDeps(nil)
		deps.Sitemaps = &mock.SitemapService{
			DiscoverURLsFn: func(context.Context, string, *crawlkit.URLFilter) ([]string, error) {
				t.Error("discovery must not run")
				return nil, nil
			},
		}

		err := (&main.SitemapCmd{URL: "https://example.com", Include: []string{"("}}).Run(deps)
		require.Error(t, err)
		assert.Equal(t, crawlkit.EINVALID, crawlkit.ErrorCode(err))
		assert.Contains(t, stderr.String(), "invalid include pattern")
	})

	t.Run("reports discovery errors", func(t *testing.T) {
		t.Parallel()

		deps, _, stderr := newDeps(nil)
		deps.Sitemaps = &mock.SitemapService{
			DiscoverURLsFn: func(context.Context, string, *crawlkit.URLFilter) ([]string, error) {
				return nil, crawlkit.Errorf(crawlkit.EUNAVAILABLE, "no sitemap found")
			},
		}

		err := (&main.SitemapCmd{URL: "https://example.com"}).Run(deps)
		require.Error(t, err)
		assert.Contains(t, stderr.String(), "no sitemap found")
	})

	t.Run("empty sitemap crawls nothing", func(t *testing.T) {
		t.Parallel()

		deps, stdout, stderr := newDeps(&mock.Runner{
			RunFn: func(context.Context, crawlkit.CrawlRequest) *crawlkit.CrawlResult {
				t.Error("runner must not be called")
				return nil
			},
		})
		deps.Sitemaps = &mock.SitemapService{
			DiscoverURLsFn: func(context.Context, string, *crawlkit.URLFilter) ([]string, error) {
				return nil, nil
			},
		}

		require.NoError(t, (&main.SitemapCmd{URL: "https://example.com"}).Run(deps))
		assert.Empty(t, stdout.String())
		assert.Contains(t, stderr.String(), "No URLs found")
	})
}

func TestCacheCmds(t *testing.T) {
	t.Parallel()

	t.Run("size prints the entry count", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newDeps(nil)
		deps.Cache = &mock.CacheStore{
			LenFn: func(context.Context) (int, error) { return 42, nil },
		}

		require.NoError(t, (&main.CacheSizeCmd{}).Run(deps))
		assert.Equal(t, "42 cached page(s) in memory store\n", stdout.String())
	})

	t.Run("clear flushes the store", func(t *testing.T) {
		t.Parallel()

		cleared := false
		deps, stdout, _ := newDeps(nil)
		deps.Cache = &mock.CacheStore{
			LenFn:   func(context.Context) (int, error) { return 3, nil },
			ClearFn: func(context.Context) error { cleared = true; return nil },
		}

		require.NoError(t, (&main.CacheClearCmd{}).Run(deps))
		assert.True(t, cleared)
		assert.Equal(t, "Cleared 3 cached page(s)\n", stdout.String())
	})

	t.Run("clear reports store errors", func(t *testing.T) {
		t.Parallel()

		deps, _, stderr := newDeps(nil)
		deps.Cache = &mock.CacheStore{
			LenFn:   func(context.Context) (int, error) { return 1, nil },
			ClearFn: func(context.Context) error { return errors.New("database is locked") },
		}

		require.Error(t, (&main.CacheClearCmd{}).Run(deps))
		assert.Contains(t, stderr.String(), "error:")
	})

	t.Run("disabled cache", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newDeps(nil)
		require.NoError(t, (&main.CacheSizeCmd{}).Run(deps))
		assert.Equal(t, "Cache is disabled.\n", stdout.String())
	})
}
