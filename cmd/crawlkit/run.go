package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fwojciec/crawlkit"
	"github.com/fwojciec/crawlkit/chunk"
	"github.com/fwojciec/crawlkit/cosine"
	"github.com/fwojciec/crawlkit/crawl"
	"github.com/fwojciec/crawlkit/gemini"
	"github.com/fwojciec/crawlkit/goquery"
	"github.com/fwojciec/crawlkit/htmlquery"
	"gopkg.in/yaml.v3"
)

// Line is one JSON line printed per crawled URL.
type Line struct {
	TaskID     string                 `json:"taskId,omitempty"`
	URL        string                 `json:"url"`
	Status     crawlkit.OutcomeStatus `json:"status"`
	StatusCode int                    `json:"statusCode,omitempty"`
	ErrorCode  string                 `json:"errorCode,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Retries    int                    `json:"retries"`
	DurationMS int64                  `json:"durationMs"`
	CacheHit   bool                   `json:"cacheHit"`
	Title      string                 `json:"title,omitempty"`
	Links      int                    `json:"links"`
	Path       string                 `json:"path,omitempty"`

	Markdown         string `json:"markdown,omitempty"`
	ExtractedContent string `json:"extractedContent,omitempty"`
}

// runConfig builds the run configuration from the loaded config and flags.
func (f *RunFlags) runConfig(deps *Dependencies) (crawlkit.RunConfig, error) {
	cfg := deps.Config.RunConfig()

	if f.CacheMode != "" {
		mode, err := crawlkit.ParseCacheMode(f.CacheMode)
		if err != nil {
			return crawlkit.RunConfig{}, err
		}
		cfg.CacheMode = mode
	}
	cfg.BypassCache = f.BypassCache
	cfg.CSSSelector = f.CSS
	if f.WordThreshold >= 0 {
		cfg.WordCountThreshold = f.WordThreshold
	}
	cfg.Screenshot = f.Screenshot
	cfg.PDF = f.PDF
	cfg.CheckRobotsTxt = cfg.CheckRobotsTxt || f.Robots
	cfg.Stream = f.Stream

	if f.Chunking != "" {
		c, err := chunk.New(f.Chunking)
		if err != nil {
			return crawlkit.RunConfig{}, err
		}
		cfg.Chunking = c
	}

	strategy, err := f.extraction(deps)
	if err != nil {
		return crawlkit.RunConfig{}, err
	}
	cfg.Extraction = strategy

	return cfg, cfg.Validate()
}

func (f *RunFlags) extraction(deps *Dependencies) (crawlkit.ExtractionStrategy, error) {
	switch f.Extraction {
	case "", "none":
		return crawlkit.NoExtraction, nil
	case "css", "xpath":
		if f.Schema == "" {
			return nil, crawlkit.Errorf(crawlkit.EINVALID, "%s extraction requires --schema", f.Extraction)
		}
		schema, err := readSchema(f.Schema)
		if err != nil {
			return nil, err
		}
		if f.Extraction == "css" {
			return goquery.NewSchemaStrategy(schema)
		}
		return htmlquery.NewSchemaStrategy(schema)
	case "cosine":
		if strings.TrimSpace(f.Query) == "" {
			return nil, crawlkit.Errorf(crawlkit.EINVALID, "cosine extraction requires --query")
		}
		return cosine.NewStrategy(f.Query), nil
	case "llm":
		if deps.Models == nil {
			return nil, crawlkit.Errorf(crawlkit.EINVALID, "llm extraction requires CRAWLKIT_LLM_API_KEY")
		}
		if strings.TrimSpace(f.Instruction) == "" {
			return nil, crawlkit.Errorf(crawlkit.EINVALID, "llm extraction requires --instruction")
		}
		e := gemini.NewExtractor(deps.Models, f.Instruction)
		e.Model = deps.Config.LLM.Model
		e.TokenBudget = deps.Config.LLM.TokenBudget
		if counter, err := gemini.NewTokenCounter(e.Model); err == nil {
			e.Counter = counter
		} else {
			deps.Logger.Warn("token counter unavailable, estimating from words", "model", e.Model, "err", err)
		}
		return e, nil
	}
	return nil, crawlkit.Errorf(crawlkit.EINVALID, "unknown extraction strategy %q", f.Extraction)
}

// readSchema reads an extraction schema from a .json file or, for any
// other extension, YAML.
func readSchema(path string) (crawlkit.ExtractionSchema, error) {
	var schema crawlkit.ExtractionSchema
	data, err := os.ReadFile(path)
	if err != nil {
		return schema, err
	}
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, &schema)
	} else {
		err = yaml.Unmarshal(data, &schema)
	}
	if err != nil {
		return schema, crawlkit.Errorf(crawlkit.EINVALID, "parsing schema %s: %v", path, err)
	}
	return schema, nil
}

// newDispatcher returns a dispatcher configured from deps.
func newDispatcher(deps *Dependencies) *crawl.Dispatcher {
	c := deps.Config.Dispatch
	d := crawl.NewDispatcher(deps.Runner)
	d.RateLimiter = deps.RateLimiter
	d.Memory = deps.Memory
	d.MinConcurrency = c.MinConcurrency
	d.MaxConcurrency = c.MaxConcurrency
	d.MemoryThreshold = c.MemoryThreshold
	d.RecoverThreshold = c.RecoverThreshold
	d.CheckInterval = c.CheckInterval
	d.MaxRetries = c.MaxRetries
	d.RetryDelay = c.RetryDelay
	d.Logger = deps.Logger
	if deps.Metrics != nil {
		d.OnOutcome = deps.Metrics.ObserveOutcome
	}
	return d
}

// crawlURLs crawls urls and prints one JSON line per outcome. A single URL
// is run directly; more go through the dispatcher. It returns an error when
// any URL failed.
func crawlURLs(deps *Dependencies, urls []string, f *RunFlags) error {
	cfg, err := f.runConfig(deps)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", crawlkit.ErrorMessage(err))
		return err
	}

	var writer crawlkit.ResultWriter
	if f.OutDir != "" && deps.NewWriter != nil {
		writer = deps.NewWriter(f.OutDir)
	}

	p := &printer{deps: deps, writer: writer, content: f.Content}

	if len(urls) == 1 {
		result := deps.Runner.Run(deps.Ctx, crawlkit.CrawlRequest{URL: urls[0], Config: cfg})
		status := crawlkit.OutcomeSucceeded
		if !result.Success {
			status = crawlkit.OutcomeFailed
		}
		p.print(crawlkit.DispatchOutcome{
			URL:       urls[0],
			Result:    result,
			Status:    status,
			ErrorCode: result.ErrorCode,
			Error:     result.ErrorMessage,
		})
		return p.err()
	}

	d := newDispatcher(deps)
	if cfg.Stream {
		seq, err := d.Stream(deps.Ctx, urls, cfg)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", crawlkit.ErrorMessage(err))
			return err
		}
		for o := range seq {
			p.print(o)
		}
		return p.err()
	}

	outcomes, err := d.Run(deps.Ctx, urls, cfg)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", crawlkit.ErrorMessage(err))
		return err
	}
	for _, o := range outcomes {
		p.print(o)
	}
	return p.err()
}

type printer struct {
	deps    *Dependencies
	writer  crawlkit.ResultWriter
	content bool
	failed  int
}

func (p *printer) print(o crawlkit.DispatchOutcome) {
	line := Line{
		TaskID:     o.TaskID,
		URL:        o.URL,
		Status:     o.Status,
		ErrorCode:  o.ErrorCode,
		Error:      o.Error,
		Retries:    o.RetriesUsed,
		DurationMS: o.Duration().Milliseconds(),
	}
	if r := o.Result; r != nil {
		line.StatusCode = r.StatusCode
		line.CacheHit = r.CacheHit
		line.Title = r.Metadata["title"]
		line.Links = len(r.Links.Internal) + len(r.Links.External)
		if o.StartedAt.IsZero() {
			line.DurationMS = r.LoadTime.Milliseconds()
		}
		if p.content {
			line.Markdown = r.Markdown
			line.ExtractedContent = r.ExtractedContent
		}
		if p.writer != nil && r.Success && !strings.HasPrefix(r.URL, crawlkit.RawPrefix) {
			path, err := p.writer.WriteResult(p.deps.Ctx, r)
			if err != nil {
				p.deps.Logger.Warn("writing result failed", "url", r.URL, "err", err)
			}
			line.Path = path
		}
	}
	if o.Status != crawlkit.OutcomeSucceeded {
		p.failed++
	}

	data, err := json.Marshal(line)
	if err != nil {
		p.deps.Logger.Error("encoding outcome failed", "url", o.URL, "err", err)
		return
	}
	fmt.Fprintln(p.deps.Stdout, string(data))
}

func (p *printer) err() error {
	if p.failed == 0 {
		return nil
	}
	return crawlkit.Errorf(crawlkit.EUNAVAILABLE, "%d url(s) failed", p.failed)
}
