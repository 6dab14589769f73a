// Package goquery implements the scrape stage and CSS schema extraction
// using PuerkitoBio/goquery.
package goquery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/fwojciec/crawlkit"
)

var _ crawlkit.Scraper = (*Scraper)(nil)

// DefaultExcludedTags are removed from every document before scraping.
var DefaultExcludedTags = []string{"script", "style", "noscript", "iframe", "template", "svg"}

// textBlocks are the elements whose text becomes ScrapeResult.Text.
const textBlocks = "p, h1, h2, h3, h4, h5, h6, li, pre, blockquote, td, th, dt, dd, figcaption"

// Scraper cleans HTML and collects links, media and metadata.
type Scraper struct {
	// ExcludedTags are removed before anything else is read.
	ExcludedTags []string

	// Metadata reads page metadata. Nil falls back to <title> and <meta> tags.
	Metadata crawlkit.MetadataExtractor
}

// NewScraper returns a Scraper that removes DefaultExcludedTags.
func NewScraper() *Scraper {
	return &Scraper{ExcludedTags: DefaultExcludedTags}
}

// Scrape implements crawlkit.Scraper. It returns EINVALID when the CSS
// selector is malformed or matches nothing.
func (s *Scraper) Scrape(pageURL, html string, opts crawlkit.ScrapeOptions) (*crawlkit.ScrapeResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "failed to parse HTML: %v", err)
	}

	var base *url.URL
	if u, err := url.Parse(pageURL); err == nil && u.IsAbs() {
		base = u
	}

	metadata := s.metadata(doc, html)

	if len(s.ExcludedTags) > 0 {
		doc.Find(strings.Join(s.ExcludedTags, ", ")).Remove()
	}

	root, err := selectRoot(doc, opts.CSSSelector)
	if err != nil {
		return nil, err
	}

	if opts.WordCountThreshold > 0 {
		root.Find("p").Each(func(_ int, p *goquery.Selection) {
			if len(strings.Fields(p.Text())) < opts.WordCountThreshold {
				p.Remove()
			}
		})
	}

	cleaned, err := outerHTML(root, opts.CSSSelector != "")
	if err != nil {
		return nil, crawlkit.Errorf(crawlkit.EINTERNAL, "failed to render HTML: %v", err)
	}

	return &crawlkit.ScrapeResult{
		CleanedHTML: cleaned,
		Text:        blockText(root),
		Links:       extractLinks(root, base),
		Media:       extractMedia(root, base),
		Metadata:    metadata,
	}, nil
}

func (s *Scraper) metadata(doc *goquery.Document, html string) map[string]string {
	if s.Metadata != nil {
		if md, err := s.Metadata.ExtractMetadata(html); err == nil && len(md) > 0 {
			return md
		}
	}
	return documentMetadata(doc)
}

// selectRoot returns the body, or the elements matched by selector.
func selectRoot(doc *goquery.Document, selector string) (*goquery.Selection, error) {
	if selector == "" {
		if body := doc.Find("body"); body.Length() > 0 {
			return body, nil
		}
		return doc.Selection, nil
	}

	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "invalid css selector %q: %v", selector, err)
	}
	sel := doc.FindMatcher(m)
	if sel.Length() == 0 {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "css selector %q matched no elements", selector)
	}
	return sel, nil
}

// outerHTML renders matched elements in full, or the root's children when
// the root is the document body.
func outerHTML(sel *goquery.Selection, selected bool) (string, error) {
	if !selected {
		h, err := sel.Html()
		return strings.TrimSpace(h), err
	}
	var parts []string
	for _, n := range sel.EachIter() {
		h, err := goquery.OuterHtml(n)
		if err != nil {
			return "", err
		}
		parts = append(parts, h)
	}
	return strings.Join(parts, "\n"), nil
}

// blockText joins the text of outermost text blocks with blank lines. A
// root without block elements yields its whole text.
func blockText(root *goquery.Selection) string {
	var blocks []string
	root.Find(textBlocks).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(textBlocks).Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return strings.Join(strings.Fields(root.Text()), " ")
	}
	return strings.Join(blocks, "\n\n")
}

// documentMetadata reads the title and common <meta> fields.
func documentMetadata(doc *goquery.Document) map[string]string {
	md := make(map[string]string)
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		md["title"] = title
	}
	doc.Find("meta[name], meta[property]").Each(func(_ int, m *goquery.Selection) {
		key, ok := m.Attr("name")
		if !ok {
			key, _ = m.Attr("property")
		}
		key = strings.ToLower(strings.TrimSpace(key))
		switch {
		case key == "description", key == "keywords", key == "author", strings.HasPrefix(key, "og:"):
		default:
			return
		}
		if content, _ := m.Attr("content"); content != "" {
			if _, exists := md[key]; !exists {
				md[key] = strings.TrimSpace(content)
			}
		}
	})
	return md
}
