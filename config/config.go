// Package config loads crawler settings from defaults, an optional YAML
// file and CRAWLKIT_-prefixed environment variables, in that order.
package config

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fwojciec/crawlkit"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CRAWLKIT_"

// Fetcher kinds.
const (
	FetcherHTTP    = "http"
	FetcherBrowser = "browser"
)

// Content filter kinds.
const (
	FilterNone        = "none"
	FilterTrafilatura = "trafilatura"
	FilterReadability = "readability"
)

// Cache store kinds.
const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type Config struct {
	Log       LogConfig       `yaml:"log"        env:", prefix=LOG_"`
	Crawl     CrawlConfig     `yaml:"crawl"      env:", prefix=CRAWL_"`
	Fetcher   FetcherConfig   `yaml:"fetcher"    env:", prefix=FETCHER_"`
	Cache     CacheConfig     `yaml:"cache"      env:", prefix=CACHE_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" env:", prefix=RATE_LIMIT_"`
	Dispatch  DispatchConfig  `yaml:"dispatch"   env:", prefix=DISPATCH_"`
	LLM       LLMConfig       `yaml:"llm"        env:", prefix=LLM_"`
	Metrics   MetricsConfig   `yaml:"metrics"    env:", prefix=METRICS_"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`

	// Format is text or json.
	Format string `yaml:"format" env:"FORMAT"`
}

type CrawlConfig struct {
	UserAgent           string        `yaml:"user_agent"            env:"USER_AGENT"`
	CheckRobotsTxt      bool          `yaml:"check_robots_txt"      env:"CHECK_ROBOTS_TXT"`
	WordCountThreshold  int           `yaml:"word_count_threshold"  env:"WORD_COUNT_THRESHOLD"`
	PageTimeout         time.Duration `yaml:"page_timeout"          env:"PAGE_TIMEOUT"`
	FingerprintCacheKey bool          `yaml:"fingerprint_cache_key" env:"FINGERPRINT_CACHE_KEY"`
	Verbose             bool          `yaml:"verbose"               env:"VERBOSE"`

	// ContentFilter prunes pages for fit markdown: trafilatura,
	// readability or none.
	ContentFilter string `yaml:"content_filter" env:"CONTENT_FILTER"`
}

type FetcherConfig struct {
	// Kind is http or browser.
	Kind            string        `yaml:"kind"             env:"KIND"`
	Timeout         time.Duration `yaml:"timeout"          env:"TIMEOUT"`
	BreakerFailures uint32        `yaml:"breaker_failures" env:"BREAKER_FAILURES"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"  env:"BREAKER_TIMEOUT"`

	// MaxPages recycles the browser after this many pages.
	MaxPages   int    `yaml:"max_pages"   env:"MAX_PAGES"`
	BrowserBin string `yaml:"browser_bin" env:"BROWSER_BIN"`
}

type CacheConfig struct {
	// Store is none, memory or sqlite.
	Store     string             `yaml:"store"       env:"STORE"`
	Path      string             `yaml:"path"        env:"PATH"`
	TTL       time.Duration      `yaml:"ttl"         env:"TTL"`
	MaxSizeMB int                `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	Mode      crawlkit.CacheMode `yaml:"mode"        env:"MODE"`

	// Legacy switches, collapsed into Mode by CacheMode.
	Bypass  bool `yaml:"bypass"   env:"BYPASS"`
	Disable bool `yaml:"disable"  env:"DISABLE"`
	NoRead  bool `yaml:"no_read"  env:"NO_READ"`
	NoWrite bool `yaml:"no_write" env:"NO_WRITE"`
}

// CacheMode returns the effective cache mode after applying legacy switches.
func (c CacheConfig) CacheMode() crawlkit.CacheMode {
	return crawlkit.LegacyCacheFlags{
		Bypass:  c.Bypass,
		Disable: c.Disable,
		NoRead:  c.NoRead,
		NoWrite: c.NoWrite,
	}.Resolve(c.Mode)
}

type RateLimitConfig struct {
	BaseDelayMin     time.Duration `yaml:"base_delay_min"     env:"BASE_DELAY_MIN"`
	BaseDelayMax     time.Duration `yaml:"base_delay_max"     env:"BASE_DELAY_MAX"`
	MaxDelay         time.Duration `yaml:"max_delay"          env:"MAX_DELAY"`
	MaxRetries       int           `yaml:"max_retries"        env:"MAX_RETRIES"`
	SoftFailureCodes []int         `yaml:"soft_failure_codes" env:"SOFT_FAILURE_CODES"`
}

type DispatchConfig struct {
	MinConcurrency   int           `yaml:"min_concurrency"   env:"MIN_CONCURRENCY"`
	MaxConcurrency   int           `yaml:"max_concurrency"   env:"MAX_CONCURRENCY"`
	MemoryThreshold  float64       `yaml:"memory_threshold"  env:"MEMORY_THRESHOLD"`
	RecoverThreshold float64       `yaml:"recover_threshold" env:"RECOVER_THRESHOLD"`
	CheckInterval    time.Duration `yaml:"check_interval"    env:"CHECK_INTERVAL"`
	MaxRetries       int           `yaml:"max_retries"       env:"MAX_RETRIES"`
	RetryDelay       time.Duration `yaml:"retry_delay"       env:"RETRY_DELAY"`

	// MemoryLimitMB is the budget memory pressure is measured against.
	// Zero uses GOMEMLIMIT.
	MemoryLimitMB int `yaml:"memory_limit_mb" env:"MEMORY_LIMIT_MB"`
}

type LLMConfig struct {
	APIKey      string `yaml:"-"            env:"API_KEY"`
	Model       string `yaml:"model"        env:"MODEL"`
	TokenBudget int    `yaml:"token_budget" env:"TOKEN_BUDGET"`
}

type MetricsConfig struct {
	// Addr serves /metrics while the binary runs. Empty disables it.
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Crawl: CrawlConfig{
			UserAgent:     crawlkit.DefaultUserAgent,
			PageTimeout:   crawlkit.DefaultPageTimeout,
			ContentFilter: FilterTrafilatura,
		},
		Fetcher: FetcherConfig{
			Kind:            FetcherHTTP,
			Timeout:         30 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
			MaxPages:        75,
		},
		Cache: CacheConfig{
			Store:     StoreMemory,
			Path:      "crawlkit.db",
			TTL:       24 * time.Hour,
			MaxSizeMB: 256,
			Mode:      crawlkit.CacheEnabled,
		},
		RateLimit: RateLimitConfig{
			BaseDelayMin:     time.Second,
			BaseDelayMax:     3 * time.Second,
			MaxDelay:         60 * time.Second,
			MaxRetries:       3,
			SoftFailureCodes: []int{429, 503},
		},
		Dispatch: DispatchConfig{
			MinConcurrency:   1,
			MaxConcurrency:   10,
			MemoryThreshold:  0.90,
			RecoverThreshold: 0.70,
			CheckInterval:    time.Second,
			MaxRetries:       3,
			RetryDelay:       time.Second,
		},
		LLM: LLMConfig{
			Model:       "gemini-2.5-flash",
			TokenBudget: 2048,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and then the process environment.
func Load(ctx context.Context, path string) (Config, error) {
	return LoadWith(ctx, path, envconfig.OsLookuper())
}

// LoadWith is Load reading environment variables from l.
func LoadWith(ctx context.Context, path string, l envconfig.Lookuper) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, crawlkit.Errorf(crawlkit.ENOTFOUND, "config file %s not found", path)
			}
			return Config{}, err
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, crawlkit.Errorf(crawlkit.EINVALID, "parsing %s: %v", path, err)
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           &cfg,
		Lookuper:         envconfig.PrefixLookuper(EnvPrefix, l),
		DefaultOverwrite: true,
	}); err != nil {
		return Config{}, crawlkit.Errorf(crawlkit.EINVALID, "reading environment: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate returns an EINVALID error describing the first invalid setting.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return crawlkit.Errorf(crawlkit.EINVALID, "log format must be text or json, got %q", c.Log.Format)
	}
	switch c.Fetcher.Kind {
	case FetcherHTTP, FetcherBrowser:
	default:
		return crawlkit.Errorf(crawlkit.EINVALID, "fetcher kind must be http or browser, got %q", c.Fetcher.Kind)
	}
	switch c.Crawl.ContentFilter {
	case FilterNone, FilterTrafilatura, FilterReadability:
	default:
		return crawlkit.Errorf(crawlkit.EINVALID, "content filter must be none, trafilatura or readability, got %q", c.Crawl.ContentFilter)
	}
	switch c.Cache.Store {
	case StoreNone, StoreMemory:
	case StoreSQLite:
		if c.Cache.Path == "" {
			return crawlkit.Errorf(crawlkit.EINVALID, "sqlite cache requires a path")
		}
	default:
		return crawlkit.Errorf(crawlkit.EINVALID, "cache store must be none, memory or sqlite, got %q", c.Cache.Store)
	}
	if _, err := crawlkit.ParseCacheMode(string(c.Cache.Mode)); err != nil {
		return err
	}
	if c.Cache.TTL < 0 {
		return crawlkit.Errorf(crawlkit.EINVALID, "cache ttl must not be negative")
	}
	if c.RateLimit.BaseDelayMin < 0 || c.RateLimit.BaseDelayMax < c.RateLimit.BaseDelayMin {
		return crawlkit.Errorf(crawlkit.EINVALID, "rate limit base delay range is invalid")
	}
	if c.RateLimit.MaxRetries < 0 {
		return crawlkit.Errorf(crawlkit.EINVALID, "rate limit retries must not be negative")
	}
	d := c.Dispatch
	if d.MinConcurrency < 1 || d.MaxConcurrency < d.MinConcurrency {
		return crawlkit.Errorf(crawlkit.EINVALID, "dispatch concurrency must satisfy 1 <= min <= max")
	}
	if d.RecoverThreshold <= 0 || d.MemoryThreshold <= d.RecoverThreshold {
		return crawlkit.Errorf(crawlkit.EINVALID, "dispatch thresholds must satisfy 0 < recover < memory")
	}
	if d.MaxRetries < 0 {
		return crawlkit.Errorf(crawlkit.EINVALID, "dispatch retries must not be negative")
	}
	return c.RunConfig().Validate()
}

// RunConfig returns the per-crawl defaults described by the configuration.
func (c Config) RunConfig() crawlkit.RunConfig {
	rc := crawlkit.DefaultRunConfig()
	rc.CacheMode = c.Cache.CacheMode()
	rc.UserAgent = c.Crawl.UserAgent
	rc.CheckRobotsTxt = c.Crawl.CheckRobotsTxt
	rc.WordCountThreshold = c.Crawl.WordCountThreshold
	rc.PageTimeout = c.Crawl.PageTimeout
	rc.FingerprintCacheKey = c.Crawl.FingerprintCacheKey
	rc.Verbose = c.Crawl.Verbose
	return rc
}

// ParseLevel maps a level name onto a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, crawlkit.Errorf(crawlkit.EINVALID, "unknown log level %q", s)
	}
	return l, nil
}

// NewLogger builds a text or JSON slog logger writing to w.
func NewLogger(w io.Writer, c LogConfig) (*slog.Logger, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
