package crawl

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fwojciec/crawlkit"
	"github.com/fwojciec/crawlkit/chunk"
)

// process runs the content pipeline over fetched HTML: scrape, chunk,
// extract, then generate markdown. A scrape failure downgrades the result
// to a failed one that still reports the fetched HTML; extraction and
// markdown failures only degrade their own fields.
func (c *Crawler) process(ctx context.Context, req crawlkit.CrawlRequest, resp *crawlkit.FetchResponse) *crawlkit.CrawlResult {
	cfg := req.Config
	pageURL := resp.RedirectedURL
	if pageURL == "" && !req.IsRaw() {
		pageURL = req.URL
	}

	result := &crawlkit.CrawlResult{
		URL:             req.URL,
		RedirectedURL:   resp.RedirectedURL,
		StatusCode:      resp.StatusCode,
		HTML:            resp.HTML,
		ResponseHeaders: resp.Headers,
		Screenshot:      resp.Screenshot,
		PDF:             resp.PDF,
	}
	if result.RedirectedURL == "" {
		result.RedirectedURL = req.URL
	}

	if resp.HTML == "" {
		result.ErrorCode = crawlkit.EPIPELINE
		result.ErrorMessage = "fetched document is empty"
		return result
	}

	scraped, err := c.Scraper.Scrape(pageURL, resp.HTML, crawlkit.ScrapeOptions{
		CSSSelector:        cfg.CSSSelector,
		WordCountThreshold: cfg.WordCountThreshold,
	})
	if err != nil {
		result.ErrorCode = crawlkit.EPIPELINE
		result.ErrorMessage = "scrape: " + errorText(err)
		return result
	}
	result.CleanedHTML = scraped.CleanedHTML
	result.Links = scraped.Links
	result.Media = scraped.Media
	result.Metadata = scraped.Metadata

	result.ExtractedContent = c.extract(ctx, pageURL, cfg, scraped)

	md := c.generateMarkdown(scraped.CleanedHTML, pageURL)
	result.Markdown = md.Markdown
	result.FitMarkdown = md.FitMarkdown
	result.FitHTML = md.FitHTML

	result.Success = true
	return result
}

// extract runs the configured extraction strategy and serializes its output.
// Failures are logged and leave the extracted content empty.
func (c *Crawler) extract(ctx context.Context, url string, cfg crawlkit.RunConfig, scraped *crawlkit.ScrapeResult) string {
	strategy := cfg.Extraction
	if !crawlkit.ExtractionEnabled(strategy) {
		return ""
	}

	var chunks []string
	if strategy.InputFormat() == crawlkit.InputHTML {
		chunks = chunk.Identity{}.Chunk(scraped.CleanedHTML)
	} else {
		chunks = c.chunker(cfg).Chunk(scraped.Text)
	}

	v, err := strategy.Extract(ctx, url, chunks)
	if err != nil {
		c.logger().Warn("extraction failed", "url", url, "strategy", strategy.Name(), "err", err)
		return ""
	}
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger().Warn("extraction output not serializable", "url", url, "strategy", strategy.Name(), "err", err)
		return ""
	}
	return string(data)
}

// generateMarkdown converts cleaned HTML to markdown, falling back to the
// cleaned HTML itself when conversion fails.
func (c *Crawler) generateMarkdown(html, url string) *crawlkit.MarkdownResult {
	if c.Markdown == nil {
		return &crawlkit.MarkdownResult{Markdown: html}
	}
	md, err := c.Markdown.Generate(html, url)
	if err != nil || md == nil {
		c.logger().Warn("markdown generation failed", "url", url, "err", err)
		return &crawlkit.MarkdownResult{Markdown: html}
	}
	return md
}

func (c *Crawler) chunker(cfg crawlkit.RunConfig) crawlkit.Chunker {
	switch {
	case cfg.Chunking != nil:
		return cfg.Chunking
	case c.Chunker != nil:
		return c.Chunker
	}
	return chunk.Default()
}

// errorText returns the application message of err, or its full text for
// errors that carry no code.
func errorText(err error) string {
	var e *crawlkit.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
