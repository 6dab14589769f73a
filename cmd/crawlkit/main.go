package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/crawlkit"
	"github.com/fwojciec/crawlkit/bigcache"
	"github.com/fwojciec/crawlkit/config"
	"github.com/fwojciec/crawlkit/crawl"
	"github.com/fwojciec/crawlkit/fs"
	"github.com/fwojciec/crawlkit/goquery"
	"github.com/fwojciec/crawlkit/htmltomarkdown"
	crawlhttp "github.com/fwojciec/crawlkit/http"
	"github.com/fwojciec/crawlkit/opengraph"
	crawlprom "github.com/fwojciec/crawlkit/prometheus"
	"github.com/fwojciec/crawlkit/readability"
	"github.com/fwojciec/crawlkit/rod"
	crawlslog "github.com/fwojciec/crawlkit/slog"
	"github.com/fwojciec/crawlkit/sqlite"
	"github.com/fwojciec/crawlkit/trafilatura"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"
	"google.golang.org/genai"
)

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := NewMain()
	err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	_ = m.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Lookuper reads CRAWLKIT_ environment variables. Defaults to the
	// process environment.
	Lookuper envconfig.Lookuper

	// Services for end-to-end testing. Nil values are built from config.
	Fetcher  crawlkit.Fetcher
	Sitemaps crawlkit.SitemapService

	// Registry collects metrics. Defaults to a fresh registry.
	Registry *prometheus.Registry

	closers []func() error
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{Lookuper: envconfig.OsLookuper()}
}

// Close releases everything Run opened, most recent first.
func (m *Main) Close() error {
	var errs []error
	for _, fn := range slices.Backward(m.closers) {
		errs = append(errs, fn())
	}
	m.closers = nil
	return errors.Join(errs...)
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("crawlkit"),
		kong.Description("Crawl web pages into cleaned HTML, markdown and extracted content."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'crawlkit --help' to see available commands")
	}
	if cmd := args[0]; cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadWith(ctx, cli.Config, m.lookuper())
	if err != nil {
		fmt.Fprintf(stderr, "error: %s\n", crawlkit.ErrorMessage(err))
		return err
	}
	logger, err := config.NewLogger(stderr, cfg.Log)
	if err != nil {
		return err
	}
	deps.Config = cfg
	deps.Logger = logger

	if err := m.wireMetrics(deps); err != nil {
		return err
	}
	if err := m.wireCache(deps); err != nil {
		fmt.Fprintf(stderr, "error: %s\n", crawlkit.ErrorMessage(err))
		return err
	}

	sitemaps := m.Sitemaps
	if sitemaps == nil {
		sitemaps = crawlhttp.NewSitemapService(nil)
	}
	deps.Sitemaps = crawlslog.NewLoggingSitemapService(sitemaps, logger)

	switch strings.Fields(kongCtx.Command())[0] {
	case "crawl":
		err = m.wireCrawler(deps)
	case "sitemap":
		if !cli.Sitemap.Preview {
			err = m.wireCrawler(deps)
		}
	}
	if err != nil {
		return err
	}

	return kongCtx.Run(deps)
}

func (m *Main) lookuper() envconfig.Lookuper {
	if m.Lookuper == nil {
		return envconfig.OsLookuper()
	}
	return m.Lookuper
}

// wireMetrics registers the crawl metrics and serves them when an address
// is configured.
func (m *Main) wireMetrics(deps *Dependencies) error {
	reg := m.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics, err := crawlprom.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	deps.Metrics = metrics

	addr := deps.Config.Metrics.Addr
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		deps.Logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("metrics server failed", "err", err)
		}
	}()
	m.closers = append(m.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return nil
}

// wireCache opens the configured cache store, if any.
func (m *Main) wireCache(deps *Dependencies) error {
	c := deps.Config.Cache
	var store crawlkit.CacheStore

	switch c.Store {
	case config.StoreNone:
		return nil
	case config.StoreMemory:
		s, err := bigcache.Open(deps.Ctx, bigcache.Config{TTL: c.TTL, MaxSizeMB: c.MaxSizeMB})
		if err != nil {
			return err
		}
		m.closers = append(m.closers, s.Close)
		store = s
	case config.StoreSQLite:
		db := sqlite.NewDB(c.Path)
		if err := db.Open(); err != nil {
			return fmt.Errorf("failed to open cache database at %q: %w", c.Path, err)
		}
		m.closers = append(m.closers, db.Close)
		s, err := sqlite.NewCacheStore(deps.Ctx, db, c.TTL)
		if err != nil {
			return err
		}
		if n, err := s.PurgeExpired(deps.Ctx); err != nil {
			deps.Logger.Warn("purging expired cache entries failed", "err", err)
		} else if n > 0 {
			deps.Logger.Debug("purged expired cache entries", "count", n)
		}
		store = s
	}

	store = crawlprom.NewInstrumentedCacheStore(store, deps.Metrics)
	deps.Cache = crawlslog.NewLoggingCacheStore(store, deps.Logger)
	return nil
}

// wireCrawler builds the fetch and processing chain used by crawl commands.
func (m *Main) wireCrawler(deps *Dependencies) error {
	cfg := deps.Config

	fetcher := m.Fetcher
	if fetcher == nil {
		f, err := newFetcher(cfg.Fetcher)
		if err != nil {
			fmt.Fprintln(deps.Stderr, "Hint: the browser fetcher needs Chrome or Chromium installed")
			return fmt.Errorf("failed to start fetcher: %w", err)
		}
		fetcher = f
	}
	m.closers = append(m.closers, fetcher.Close)
	fetcher = crawlprom.NewInstrumentedFetcher(fetcher, deps.Metrics)
	fetcher = crawlslog.NewLoggingFetcher(fetcher, deps.Logger)

	scraper := goquery.NewScraper()
	scraper.Metadata = opengraph.NewMetadataExtractor()

	limiter := crawl.NewDomainLimiter()
	limiter.BaseDelayMin = cfg.RateLimit.BaseDelayMin
	limiter.BaseDelayMax = cfg.RateLimit.BaseDelayMax
	limiter.MaxDelay = cfg.RateLimit.MaxDelay
	limiter.MaxRetries = cfg.RateLimit.MaxRetries
	limiter.SoftFailureCodes = cfg.RateLimit.SoftFailureCodes
	deps.RateLimiter = limiter

	deps.Memory = &crawl.RuntimeMemoryMonitor{Limit: uint64(cfg.Dispatch.MemoryLimitMB) << 20}

	deps.Runner = &crawl.Crawler{
		Fetcher:     fetcher,
		Scraper:     scraper,
		Markdown:    htmltomarkdown.NewGenerator(contentFilter(cfg.Crawl.ContentFilter)),
		Robots:      crawlslog.NewLoggingRobotsChecker(crawlhttp.NewRobotsChecker(nil), deps.Logger),
		Cache:       deps.Cache,
		RateLimiter: limiter,
		Logger:      deps.Logger,
	}

	deps.NewWriter = func(dir string) crawlkit.ResultWriter {
		return fs.NewResultWriter(dir)
	}

	if key := cfg.LLM.APIKey; key != "" {
		client, err := genai.NewClient(deps.Ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			fmt.Fprintln(deps.Stderr, "Hint: check CRAWLKIT_LLM_API_KEY is valid")
			return fmt.Errorf("failed to connect to Gemini API: %w", err)
		}
		deps.Models = client.Models
	}
	return nil
}

func newFetcher(c config.FetcherConfig) (crawlkit.Fetcher, error) {
	if c.Kind == config.FetcherBrowser {
		var opts []rod.ManagerOption
		if c.MaxPages > 0 {
			opts = append(opts, rod.WithMaxPages(c.MaxPages))
		}
		if c.BrowserBin != "" {
			opts = append(opts, rod.WithBrowserBin(c.BrowserBin))
		}
		return rod.NewFetcher(opts...)
	}
	return crawlhttp.NewFetcher(
		crawlhttp.WithTimeout(c.Timeout),
		crawlhttp.WithCircuitBreaker(c.BreakerFailures, c.BreakerTimeout),
	), nil
}

func contentFilter(kind string) crawlkit.ContentFilter {
	switch kind {
	case config.FilterTrafilatura:
		return trafilatura.NewFilter()
	case config.FilterReadability:
		return readability.NewFilter()
	}
	return nil
}
