package crawlkit

import (
	"context"
	"fmt"
	"strings"
)

// ScrapeOptions controls the scrape stage.
type ScrapeOptions struct {
	CSSSelector        string
	WordCountThreshold int
}

// ScrapeResult holds the cleaned document and the references found in it.
type ScrapeResult struct {
	// CleanedHTML has scripting and styling removed and is restricted to
	// the CSS selector when one is set.
	CleanedHTML string

	// Text is the visible text of CleanedHTML with blocks separated by blank lines.
	Text string

	Links    Links
	Media    Media
	Metadata map[string]string
}

// Scraper cleans raw HTML and extracts links, media and metadata.
type Scraper interface {
	Scrape(url, html string, opts ScrapeOptions) (*ScrapeResult, error)
}

// MetadataExtractor reads page metadata such as title and description.
type MetadataExtractor interface {
	ExtractMetadata(html string) (map[string]string, error)
}

// Chunker splits content into an ordered sequence of segments.
// Empty content yields an empty sequence.
type Chunker interface {
	Name() string
	Chunk(content string) []string
}

// InputFormat is the kind of content an extraction strategy consumes.
type InputFormat int

const (
	// InputText strategies receive the configured chunker's output over the page text.
	InputText InputFormat = iota

	// InputHTML strategies receive the cleaned HTML as a single chunk.
	InputHTML
)

// ExtractionStrategy produces structured content from a page.
type ExtractionStrategy interface {
	Name() string
	InputFormat() InputFormat

	// Extract returns a value that is serialized to JSON into
	// CrawlResult.ExtractedContent.
	Extract(ctx context.Context, url string, chunks []string) (any, error)
}

// NoExtraction is the explicit no-op extraction strategy.
var NoExtraction ExtractionStrategy = noExtraction{}

type noExtraction struct{}

func (noExtraction) Name() string             { return "none" }
func (noExtraction) InputFormat() InputFormat { return InputText }
func (noExtraction) Extract(ctx context.Context, url string, chunks []string) (any, error) {
	return nil, nil
}

// Fingerprinter is implemented by chunkers and extraction strategies whose
// output depends on parameters beyond their name. Values with equal names and
// fingerprints must produce equal output for equal input.
type Fingerprinter interface {
	Fingerprint() string
}

// ExtractionEnabled reports whether s is a real extraction strategy.
func ExtractionEnabled(s ExtractionStrategy) bool {
	return s != nil && s.Name() != NoExtraction.Name()
}

// MarkdownResult holds generated markdown variants.
type MarkdownResult struct {
	Markdown string

	// FitMarkdown and FitHTML are set when a content filter pruned the page.
	FitMarkdown string
	FitHTML     string
}

// MarkdownGenerator converts cleaned HTML to markdown.
type MarkdownGenerator interface {
	Generate(html, baseURL string) (*MarkdownResult, error)
}

// ContentFilter prunes boilerplate from HTML, keeping the main content.
type ContentFilter interface {
	Filter(html, url string) (string, error)
}

// FieldType selects what a schema field reads from a matched element.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldAttribute FieldType = "attribute"
	FieldHTML      FieldType = "html"
)

// SchemaField describes one value read relative to a base element.
type SchemaField struct {
	Name      string    `json:"name" yaml:"name"`
	Selector  string    `json:"selector" yaml:"selector"`
	Type      FieldType `json:"type" yaml:"type"`
	Attribute string    `json:"attribute,omitempty" yaml:"attribute"`
}

// ExtractionSchema describes repeated records on a page. Selectors are CSS
// or XPath expressions depending on the strategy reading the schema.
type ExtractionSchema struct {
	Name         string        `json:"name" yaml:"name"`
	BaseSelector string        `json:"baseSelector" yaml:"base_selector"`
	Fields       []SchemaField `json:"fields" yaml:"fields"`
}

// Fingerprint returns a stable description of every selector in the schema.
func (s *ExtractionSchema) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q|%q", s.Name, s.BaseSelector)
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "|%q:%q:%q:%q", f.Name, f.Selector, f.Type, f.Attribute)
	}
	return b.String()
}

// Validate returns an error if the schema cannot be applied.
func (s *ExtractionSchema) Validate() error {
	if s.BaseSelector == "" {
		return Errorf(EINVALID, "schema base selector required")
	}
	if len(s.Fields) == 0 {
		return Errorf(EINVALID, "schema requires at least one field")
	}
	for _, f := range s.Fields {
		if f.Name == "" {
			return Errorf(EINVALID, "schema field name required")
		}
		switch f.Type {
		case "", FieldText, FieldHTML:
		case FieldAttribute:
			if f.Attribute == "" {
				return Errorf(EINVALID, "schema field %q requires an attribute", f.Name)
			}
		default:
			return Errorf(EINVALID, "schema field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}
