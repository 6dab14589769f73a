package main_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/crawlkit"
	main "github.com/fwojciec/crawlkit/cmd/crawlkit"
	"github.com/fwojciec/crawlkit/config"
	"github.com/fwojciec/crawlkit/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeps(runner *mock.Runner) (*main.Dependencies, *bytes.Buffer, *bytes.Buffer) {
	cfg := config.Default()
	cfg.Dispatch.RetryDelay = time.Millisecond
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return &main.Dependencies{
		Ctx:    context.Background(),
		Stdout: stdout,
		Stderr: stderr,
		Config: cfg,
		Logger: slog.New(slog.DiscardHandler),
		Runner: runner,
	}, stdout, stderr
}

func succeed(req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
	return &crawlkit.CrawlResult{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Success:    true,
		Markdown:   "# Page",
		Metadata:   map[string]string{"title": "Page"},
	}
}

func TestCrawlCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("passes flags through the run config", func(t *testing.T) {
		t.Parallel()

		var got crawlkit.RunConfig
		deps, _, _ := newDeps(&mock.Runner{
			RunFn: func(_ context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
				got = req.Config
				return succeed(req)
			},
		})

		cmd := &main.CrawlCmd{
			URLs: []string{"https://example.com"},
			RunFlags: main.RunFlags{
				CacheMode:     "read_only",
				CSS:           "main",
				WordThreshold: 5,
				Robots:        true,
				Chunking:      "sliding_window",
				Extraction:    "cosine",
				Query:         "install",
			},
		}
		require.NoError(t, cmd.Run(deps))

		assert.Equal(t, crawlkit.CacheReadOnly, got.CacheMode)
		assert.Equal(t, "main", got.CSSSelector)
		assert.Equal(t, 5, got.WordCountThreshold)
		assert.True(t, got.CheckRobotsTxt)
		require.NotNil(t, got.Chunking)
		assert.Equal(t, "sliding_window", got.Chunking.Name())
		require.NotNil(t, got.Extraction)
		assert.Equal(t, crawlkit.InputText, got.Extraction.InputFormat())
	})

	t.Run("negative word threshold keeps the configured value", func(t *testing.T) {
		t.Parallel()

		var got crawlkit.RunConfig
		deps, _, _ := newDeps(&mock.Runner{
			RunFn: func(_ context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
				got = req.Config
				return succeed(req)
			},
		})
		deps.Config.Crawl.WordCountThreshold = 12

		cmd := &main.CrawlCmd{URLs: []string{"https://example.com"}, RunFlags: main.RunFlags{WordThreshold: -1}}
		require.NoError(t, cmd.Run(deps))
		assert.Equal(t, 12, got.WordCountThreshold)
		assert.False(t, crawlkit.ExtractionEnabled(got.Extraction))
	})

	t.Run("prints one line per url through the dispatcher", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		seen := map[string]int{}
		deps, stdout, _ := newDeps(&mock.Runner{
			RunFn: func(_ context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
				mu.Lock()
				seen[req.URL]++
				mu.Unlock()
				return succeed(req)
			},
		})

		urls := []string{"https://a.example/1", "https://b.example/2", "https://c.example/3"}
		cmd := &main.CrawlCmd{URLs: urls}
		require.NoError(t, cmd.Run(deps))

		lines := decodeLines(t, stdout.String())
		require.Len(t, lines, 3)
		for i, l := range lines {
			assert.Equal(t, urls[i], l.URL)
			assert.Equal(t, crawlkit.OutcomeSucceeded, l.Status)
			assert.NotEmpty(t, l.TaskID)
			assert.Equal(t, "Page", l.Title)
		}
		for _, u := range urls {
			assert.Equal(t, 1, seen[u])
		}
	})

	t.Run("stream prints every outcome", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newDeps(&mock.Runner{
			RunFn: func(_ context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
				return succeed(req)
			},
		})

		cmd := &main.CrawlCmd{
			URLs:     []string{"https://a.example/1", "https://b.example/2"},
			RunFlags: main.RunFlags{Stream: true},
		}
		require.NoError(t, cmd.Run(deps))

		lines := decodeLines(t, stdout.String())
		require.Len(t, lines, 2)
		assert.ElementsMatch(t,
			[]string{"https://a.example/1", "https://b.example/2"},
			[]string{lines[0].URL, lines[1].URL})
	})

	t.Run("failed urls are printed and reported", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newDeps(&mock.Runner{
			RunFn: func(_ context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
				return &crawlkit.CrawlResult{
					URL:          req.URL,
					StatusCode:   http.StatusForbidden,
					ErrorCode:    crawlkit.EFORBIDDEN,
					ErrorMessage: "Access denied by robots.txt",
				}
			},
		})

		err := (&main.CrawlCmd{URLs: []string{"https://example.com/private"}}).Run(deps)
		require.Error(t, err)

		lines := decodeLines(t, stdout.String())
		require.Len(t, lines, 1)
		assert.Equal(t, crawlkit.OutcomeFailed, lines[0].Status)
		assert.Equal(t, crawlkit.EFORBIDDEN, lines[0].ErrorCode)
		assert.Equal(t, http.StatusForbidden, lines[0].StatusCode)
	})

	t.Run("writes successful results when an output directory is set", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newDeps(&mock.Runner{
			RunFn: func(_ context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
				return succeed(req)
			},
		})
		var dir string
		deps.NewWriter = func(d string) crawlkit.ResultWriter {
			dir = d
			return &mock.ResultWriter{
				WriteResultFn: func(_ context.Context, r *crawlkit.CrawlResult) (string, error) {
					return filepath.Join(d, "example.com", "index.md"), nil
				},
			}
		}

		cmd := &main.CrawlCmd{URLs: []string{"https://example.com/"}, RunFlags: main.RunFlags{OutDir: "out"}}
		require.NoError(t, cmd.Run(deps))

		assert.Equal(t, "out", dir)
		lines := decodeLines(t, stdout.String())
		require.Len(t, lines, 1)
		assert.Equal(t, filepath.Join("out", "example.com", "index.md"), lines[0].Path)
	})

	t.Run("write failures do not fail the crawl", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newDeps(&mock.Runner{
			RunFn: func(_ context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
				return succeed(req)
			},
		})
		deps.NewWriter = func(string) crawlkit.ResultWriter {
			return &mock.ResultWriter{
				WriteResultFn: func(context.Context, *crawlkit.CrawlResult) (string, error) {
					return "", errors.New("disk full")
				},
			}
		}

		cmd := &main.CrawlCmd{URLs: []string{"https://example.com/"}, RunFlags: main.RunFlags{OutDir: "out"}}
		require.NoError(t, cmd.Run(deps))
		assert.Empty(t, decodeLines(t, stdout.String())[0].Path)
	})

	t.Run("rejects invalid options before crawling", func(t *testing.T) {
		t.Parallel()

		schema := filepath.Join(t.TempDir(), "schema.yaml")
		require.NoError(t, os.WriteFile(schema, []byte("base_selector: \"\"\nfields: []\n"), 0644))

		tests := []struct {
			name  string
			flags main.RunFlags
		}{
			{"unknown cache mode", main.RunFlags{CacheMode: "sometimes"}},
			{"unknown chunking", main.RunFlags{Chunking: "sentences"}},
			{"css without schema", main.RunFlags{Extraction: "css"}},
			{"xpath with empty schema", main.RunFlags{Extraction: "xpath", Schema: schema}},
			{"cosine without query", main.RunFlags{Extraction: "cosine"}},
			{"llm without api key", main.RunFlags{Extraction: "llm", Instruction: "list products"}},
		}
		for _, tt := range tests {
			deps, stdout, stderr := newDeps(&mock.Runner{
				RunFn: func(context.Context, crawlkit.CrawlRequest) *crawlkit.CrawlResult {
					t.Errorf("%s: runner must not be called", tt.name)
					return nil
				},
			})

			err := (&main.CrawlCmd{URLs: []string{"https://example.com"}, RunFlags: tt.flags}).Run(deps)
			require.Error(t, err, tt.name)
			assert.Equal(t, crawlkit.EINVALID, crawlkit.ErrorCode(err), tt.name)
			assert.Contains(t, stderr.String(), "error:", tt.name)
			assert.Empty(t, stdout.String(), tt.name)
		}
	})

	t.Run("builds css extraction from a schema file", func(t *testing.T) {
		t.Parallel()

		schema := filepath.Join(t.TempDir(), "schema.json")
		require.NoError(t, os.WriteFile(schema, []byte(`{"name":"items","baseSelector":"li","fields":[{"name":"text","selector":"span","type":"text"}]}`), 0644))

		var got crawlkit.RunConfig
		deps, _, _ := newDeps(&mock.Runner{
			RunFn: func(_ context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
				got = req.Config
				return succeed(req)
			},
		})

		cmd := &main.CrawlCmd{URLs: []string{"https://example.com"}, RunFlags: main.RunFlags{Extraction: "css", Schema: schema}}
		require.NoError(t, cmd.Run(deps))
		require.NotNil(t, got.Extraction)
		assert.Equal(t, crawlkit.InputHTML, got.Extraction.InputFormat())
	})
}
