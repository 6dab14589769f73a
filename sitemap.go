package crawlkit

import (
	"context"
	"regexp"
)

// SitemapService discovers the page URLs of a site so they can be crawled
// as one dispatcher batch.
type SitemapService interface {
	// DiscoverURLs returns the page URLs listed in the sitemaps of
	// baseURL's host, in listing order and without duplicates. Sitemap
	// directives in robots.txt are preferred over /sitemap.xml and
	// sitemap indexes are followed. A nil filter keeps every URL.
	DiscoverURLs(ctx context.Context, baseURL string, filter *URLFilter) ([]string, error)
}

// URLFilter selects which discovered URLs enter a batch.
type URLFilter struct {
	// Include, when non-empty, keeps only URLs matching one of its patterns.
	Include []*regexp.Regexp

	// Exclude drops URLs matching any of its patterns, after Include.
	Exclude []*regexp.Regexp

	// Limit caps the batch size. Zero means no cap.
	Limit int
}

// NewURLFilter compiles include and exclude patterns into a filter capped at
// limit URLs. It returns EINVALID naming the first malformed pattern.
func NewURLFilter(include, exclude []string, limit int) (*URLFilter, error) {
	if limit < 0 {
		return nil, Errorf(EINVALID, "url limit must not be negative, got %d", limit)
	}
	f := &URLFilter{Limit: limit}
	var err error
	if f.Include, err = compilePatterns("include", include); err != nil {
		return nil, err
	}
	if f.Exclude, err = compilePatterns("exclude", exclude); err != nil {
		return nil, err
	}
	return f, nil
}

func compilePatterns(kind string, patterns []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, Errorf(EINVALID, "invalid %s pattern %q: %v", kind, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Match reports whether url passes the include and exclude patterns.
// A nil filter matches everything.
func (f *URLFilter) Match(url string) bool {
	if f == nil {
		return true
	}
	if len(f.Include) > 0 && !matchAny(f.Include, url) {
		return false
	}
	return !matchAny(f.Exclude, url)
}

// Full reports whether a batch of n URLs has reached the limit.
func (f *URLFilter) Full(n int) bool {
	return f != nil && f.Limit > 0 && n >= f.Limit
}

// Batch returns the matching URLs of urls in order, without duplicates,
// truncated to the limit.
func (f *URLFilter) Batch(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	batch := []string{}
	for _, u := range urls {
		if f.Full(len(batch)) {
			break
		}
		if seen[u] || !f.Match(u) {
			continue
		}
		seen[u] = true
		batch = append(batch, u)
	}
	return batch
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
