// Package readability prunes boilerplate from pages using
// go-shiori/go-readability.
package readability

import (
	"net/url"
	"strings"

	"github.com/fwojciec/crawlkit"
	"github.com/go-shiori/go-readability"
)

var _ crawlkit.ContentFilter = (*Filter)(nil)

// Filter keeps a page's main article content.
type Filter struct{}

// NewFilter returns a Filter.
func NewFilter() *Filter {
	return &Filter{}
}

// Filter returns the main content HTML of rawHTML. pageURL may be empty.
func (f *Filter) Filter(rawHTML, pageURL string) (string, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return "", crawlkit.Errorf(crawlkit.EINVALID, "empty HTML input")
	}

	var u *url.URL
	if pageURL != "" {
		parsed, err := url.Parse(pageURL)
		if err != nil {
			return "", crawlkit.Errorf(crawlkit.EINVALID, "invalid page url %q: %v", pageURL, err)
		}
		u = parsed
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err != nil {
		return "", crawlkit.Errorf(crawlkit.EPIPELINE, "readability: %v", err)
	}
	return article.Content, nil
}
