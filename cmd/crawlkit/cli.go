package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/fwojciec/crawlkit"
	"github.com/fwojciec/crawlkit/config"
	"github.com/fwojciec/crawlkit/crawl"
	"github.com/fwojciec/crawlkit/gemini"
	"github.com/fwojciec/crawlkit/prometheus"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx    context.Context
	Stdout io.Writer
	Stderr io.Writer
	Config config.Config
	Logger *slog.Logger

	Runner      crawl.Runner
	RateLimiter crawlkit.DomainLimiter
	Memory      crawlkit.MemoryMonitor
	Sitemaps    crawlkit.SitemapService
	Cache       crawlkit.CacheStore
	Metrics     *prometheus.Metrics

	// Models backs LLM extraction. Nil when no API key is configured.
	Models gemini.Models

	// NewWriter opens the result writer for --out-dir.
	NewWriter func(dir string) crawlkit.ResultWriter
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config string `short:"C" type:"path" env:"CRAWLKIT_CONFIG" help:"YAML configuration file"`

	Crawl   CrawlCmd   `cmd:"" help:"Crawl one or more URLs"`
	Sitemap SitemapCmd `cmd:"" help:"Crawl the URLs listed in a site's sitemap"`
	Cache   CacheCmd   `cmd:"" help:"Inspect or flush the page cache"`
}

// RunFlags are the per-crawl options shared by crawl and sitemap.
type RunFlags struct {
	CacheMode     string `name:"cache-mode" help:"Cache mode (enabled, disabled, read_only, write_only, bypass)"`
	BypassCache   bool   `name:"bypass-cache" help:"Skip cache reads for this run"`
	CSS           string `name:"css" help:"Restrict scraping to elements matching this CSS selector"`
	WordThreshold int    `name:"word-threshold" default:"-1" help:"Drop text blocks with fewer words (-1 uses the configured value)"`
	Screenshot    bool   `help:"Capture a full-page screenshot (browser fetcher only)"`
	PDF           bool   `name:"pdf" help:"Print the page to PDF (browser fetcher only)"`
	Robots        bool   `help:"Honour robots.txt"`
	Stream        bool   `help:"Print outcomes as they complete"`

	Extraction  string `short:"x" enum:"none,css,xpath,cosine,llm" default:"none" help:"Extraction strategy (none, css, xpath, cosine, llm)"`
	Schema      string `type:"existingfile" help:"Schema file for css and xpath extraction (YAML or JSON)"`
	Query       string `help:"Query for cosine extraction"`
	Instruction string `help:"Instruction for llm extraction"`
	Chunking    string `help:"Chunking strategy for text extraction (identity, regex, fixed_length_word, sliding_window, overlapping_window)"`

	OutDir  string `name:"out-dir" type:"path" help:"Also write each successful page's markdown under this directory"`
	Content bool   `help:"Include markdown and extracted content in the output"`
}

// CrawlCmd is the "crawl" subcommand.
type CrawlCmd struct {
	URLs []string `arg:"" name:"url" help:"URLs to crawl (raw:<html> crawls literal HTML)"`

	RunFlags `embed:""`
}

// SitemapCmd is the "sitemap" subcommand.
type SitemapCmd struct {
	URL     string   `arg:"" help:"Site URL"`
	Include []string `short:"i" help:"Only crawl URLs matching this regex (repeatable)"`
	Exclude []string `short:"e" help:"Skip URLs matching this regex (repeatable)"`
	Limit   int      `help:"Crawl at most this many URLs (0 crawls all)"`
	Preview bool     `short:"p" help:"List discovered URLs without crawling"`

	RunFlags `embed:""`
}

// CacheCmd groups the cache subcommands.
type CacheCmd struct {
	Size  CacheSizeCmd  `cmd:"" help:"Print the number of cached pages"`
	Clear CacheClearCmd `cmd:"" help:"Remove every cached page"`
}

// CacheSizeCmd is the "cache size" subcommand.
type CacheSizeCmd struct{}

// CacheClearCmd is the "cache clear" subcommand.
type CacheClearCmd struct{}
