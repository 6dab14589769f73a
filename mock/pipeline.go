package mock

import (
	"context"

	"github.com/fwojciec/crawlkit"
)

var _ crawlkit.Scraper = (*Scraper)(nil)

// Scraper is a mock implementation of crawlkit.Scraper.
type Scraper struct {
	ScrapeFn func(url, html string, opts crawlkit.ScrapeOptions) (*crawlkit.ScrapeResult, error)
}

func (s *Scraper) Scrape(url, html string, opts crawlkit.ScrapeOptions) (*crawlkit.ScrapeResult, error) {
	return s.ScrapeFn(url, html, opts)
}

var _ crawlkit.MetadataExtractor = (*MetadataExtractor)(nil)

// MetadataExtractor is a mock implementation of crawlkit.MetadataExtractor.
type MetadataExtractor struct {
	ExtractMetadataFn func(html string) (map[string]string, error)
}

func (m *MetadataExtractor) ExtractMetadata(html string) (map[string]string, error) {
	return m.ExtractMetadataFn(html)
}

var (
	_ crawlkit.Chunker       = (*Chunker)(nil)
	_ crawlkit.Fingerprinter = (*Chunker)(nil)
)

// Chunker is a mock implementation of crawlkit.Chunker and
// crawlkit.Fingerprinter. A nil FingerprintFn reports no fingerprint.
type Chunker struct {
	NameFn        func() string
	FingerprintFn func() string
	ChunkFn       func(content string) []string
}

func (c *Chunker) Name() string {
	return c.NameFn()
}

func (c *Chunker) Fingerprint() string {
	if c.FingerprintFn == nil {
		return ""
	}
	return c.FingerprintFn()
}

func (c *Chunker) Chunk(content string) []string {
	return c.ChunkFn(content)
}

var (
	_ crawlkit.ExtractionStrategy = (*ExtractionStrategy)(nil)
	_ crawlkit.Fingerprinter      = (*ExtractionStrategy)(nil)
)

// ExtractionStrategy is a mock implementation of crawlkit.ExtractionStrategy.
// A nil InputFormatFn reports crawlkit.InputText; a nil FingerprintFn
// reports no fingerprint.
type ExtractionStrategy struct {
	NameFn        func() string
	FingerprintFn func() string
	InputFormatFn func() crawlkit.InputFormat
	ExtractFn     func(ctx context.Context, url string, chunks []string) (any, error)
}

func (e *ExtractionStrategy) Name() string {
	return e.NameFn()
}

func (e *ExtractionStrategy) Fingerprint() string {
	if e.FingerprintFn == nil {
		return ""
	}
	return e.FingerprintFn()
}

func (e *ExtractionStrategy) InputFormat() crawlkit.InputFormat {
	if e.InputFormatFn == nil {
		return crawlkit.InputText
	}
	return e.InputFormatFn()
}

func (e *ExtractionStrategy) Extract(ctx context.Context, url string, chunks []string) (any, error) {
	return e.ExtractFn(ctx, url, chunks)
}

var _ crawlkit.MarkdownGenerator = (*MarkdownGenerator)(nil)

// MarkdownGenerator is a mock implementation of crawlkit.MarkdownGenerator.
type MarkdownGenerator struct {
	GenerateFn func(html, baseURL string) (*crawlkit.MarkdownResult, error)
}

func (g *MarkdownGenerator) Generate(html, baseURL string) (*crawlkit.MarkdownResult, error) {
	return g.GenerateFn(html, baseURL)
}

var _ crawlkit.ContentFilter = (*ContentFilter)(nil)

// ContentFilter is a mock implementation of crawlkit.ContentFilter.
type ContentFilter struct {
	FilterFn func(html, url string) (string, error)
}

func (f *ContentFilter) Filter(html, url string) (string, error) {
	return f.FilterFn(html, url)
}
