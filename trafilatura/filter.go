// Package trafilatura prunes boilerplate from pages using
// markusmobius/go-trafilatura.
package trafilatura

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/fwojciec/crawlkit"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
)

var _ crawlkit.ContentFilter = (*Filter)(nil)

// Filter keeps a page's main content, falling back to readability-style
// heuristics when trafilatura finds too little.
type Filter struct{}

// NewFilter returns a Filter.
func NewFilter() *Filter {
	return &Filter{}
}

// Filter returns the main content HTML of rawHTML.
func (f *Filter) Filter(rawHTML, pageURL string) (string, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return "", crawlkit.Errorf(crawlkit.EINVALID, "empty HTML input")
	}

	opts := trafilatura.Options{
		EnableFallback: true,
	}
	if u, err := url.Parse(pageURL); err == nil && u.IsAbs() {
		opts.OriginalURL = u
	}

	result, err := trafilatura.Extract(strings.NewReader(rawHTML), opts)
	if err != nil {
		return "", crawlkit.Errorf(crawlkit.EPIPELINE, "trafilatura: %v", err)
	}
	if result.ContentNode == nil {
		return "", nil
	}
	return renderNode(result.ContentNode)
}

// renderNode converts an html.Node to a string.
func renderNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}
