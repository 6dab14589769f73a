package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"github.com/fwojciec/crawlkit"
	"github.com/temoto/robotstxt"
	"resty.dev/v3"
)

// maxSitemapDepth bounds how deep sitemap indexes are followed.
const maxSitemapDepth = 5

// Ensure SitemapService implements crawlkit.SitemapService.
var _ crawlkit.SitemapService = (*SitemapService)(nil)

// SitemapService discovers URLs from website sitemaps via HTTP.
type SitemapService struct {
	client *resty.Client
}

// NewSitemapService creates a new SitemapService with the given HTTP client.
// If client is nil, http.DefaultClient is used.
func NewSitemapService(client *http.Client) *SitemapService {
	if client == nil {
		client = http.DefaultClient
	}
	return &SitemapService{client: resty.NewWithClient(client)}
}

// DiscoverURLs finds all page URLs listed in a site's sitemaps, in the order
// they appear and without duplicates. Returns an empty slice (not nil) if no
// sitemaps are found.
//
// When baseURL has a non-root path (e.g., https://example.com/docs/),
// only URLs under that path are returned. Discovery stops fetching sitemaps
// once the filter's limit is reached.
func (s *SitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *crawlkit.URLFilter) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "invalid base url %q", baseURL)
	}
	root := &url.URL{Scheme: base.Scheme, Host: base.Host}

	sitemaps, err := s.findSitemaps(ctx, root)
	if err != nil {
		return nil, err
	}

	w := &sitemapWalk{
		svc:    s,
		seen:   make(map[string]bool),
		urls:   make(map[string]bool),
		prefix: pathPrefix(base.Path),
		filter: filter,
		found:  []string{},
	}
	for _, sm := range sitemaps {
		if filter.Full(len(w.found)) {
			break
		}
		if err := w.visit(ctx, sm, 0); err != nil {
			return nil, err
		}
	}
	return w.found, nil
}

// findSitemaps reads Sitemap directives from robots.txt and falls back to
// /sitemap.xml when there are none.
func (s *SitemapService) findSitemaps(ctx context.Context, root *url.URL) ([]string, error) {
	robotsURL := root.ResolveReference(&url.URL{Path: "/robots.txt"})
	resp, err := s.client.R().WithContext(ctx).Get(robotsURL.String())
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil && resp.StatusCode() == http.StatusOK {
		if data, err := robotstxt.FromBytes(resp.Bytes()); err == nil && len(data.Sitemaps) > 0 {
			return data.Sitemaps, nil
		}
	}

	fallback := root.ResolveReference(&url.URL{Path: "/sitemap.xml"})
	head, err := s.client.R().WithContext(ctx).Head(fallback.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	if head.StatusCode() != http.StatusOK {
		return nil, nil
	}
	return []string{fallback.String()}, nil
}

type sitemapWalk struct {
	svc    *SitemapService
	seen   map[string]bool
	urls   map[string]bool
	prefix string
	filter *crawlkit.URLFilter
	found  []string
}

// visit fetches one sitemap and records its URLs, following sitemap indexes.
func (w *sitemapWalk) visit(ctx context.Context, sitemapURL string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.seen[sitemapURL] || depth > maxSitemapDepth {
		return nil
	}
	w.seen[sitemapURL] = true

	resp, err := w.svc.client.R().WithContext(ctx).Get(sitemapURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return crawlkit.Errorf(crawlkit.EUNAVAILABLE, "fetching sitemap %s: %v", sitemapURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return crawlkit.Errorf(crawlkit.EUNAVAILABLE, "HTTP %d for %s", resp.StatusCode(), sitemapURL)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(resp.Bytes()); err != nil {
		return crawlkit.Errorf(crawlkit.EINVALID, "parsing sitemap %s: %v", sitemapURL, err)
	}
	root := doc.Root()
	if root == nil {
		return crawlkit.Errorf(crawlkit.EINVALID, "empty sitemap %s", sitemapURL)
	}

	if root.Tag == "sitemapindex" {
		for _, loc := range locs(root, "sitemap") {
			if w.filter.Full(len(w.found)) {
				return nil
			}
			if err := w.visit(ctx, loc, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, loc := range locs(root, "url") {
		if w.filter.Full(len(w.found)) {
			return nil
		}
		if w.urls[loc] || !matchesPathPrefix(loc, w.prefix) || !w.filter.Match(loc) {
			continue
		}
		w.urls[loc] = true
		w.found = append(w.found, loc)
	}
	return nil
}

// locs returns the trimmed, non-empty <loc> values of root's children.
func locs(root *etree.Element, tag string) []string {
	var out []string
	for _, el := range root.SelectElements(tag) {
		loc := el.SelectElement("loc")
		if loc == nil {
			continue
		}
		if v := strings.TrimSpace(loc.Text()); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// pathPrefix normalizes a base path to a directory prefix. The root path
// yields no prefix.
func pathPrefix(p string) string {
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// matchesPathPrefix reports whether rawURL lies under prefix, respecting
// path boundaries: /docs/ matches /docs and /docs/intro but not /documentation.
func matchesPathPrefix(rawURL, prefix string) bool {
	if prefix == "" {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Path+"/" == prefix || strings.HasPrefix(u.Path, prefix)
}
