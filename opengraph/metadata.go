// Package opengraph reads page metadata from Open Graph and standard meta
// tags using dyatlov/go-opengraph.
package opengraph

import (
	"strings"

	"github.com/dyatlov/go-opengraph/opengraph"
	"github.com/fwojciec/crawlkit"
)

var _ crawlkit.MetadataExtractor = (*MetadataExtractor)(nil)

// MetadataExtractor implements crawlkit.MetadataExtractor.
type MetadataExtractor struct{}

// NewMetadataExtractor returns a MetadataExtractor.
func NewMetadataExtractor() *MetadataExtractor {
	return &MetadataExtractor{}
}

// ExtractMetadata returns the page's Open Graph fields keyed by their
// property names without the "og:" prefix. Empty fields are omitted.
func (e *MetadataExtractor) ExtractMetadata(html string) (map[string]string, error) {
	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(strings.NewReader(html)); err != nil {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "failed to parse open graph: %v", err)
	}

	md := make(map[string]string)
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			md[key] = value
		}
	}
	set("title", og.Title)
	set("description", og.Description)
	set("type", og.Type)
	set("url", og.URL)
	set("site_name", og.SiteName)
	set("locale", og.Locale)
	if len(og.Images) > 0 {
		set("image", og.Images[0].URL)
	}
	return md, nil
}
