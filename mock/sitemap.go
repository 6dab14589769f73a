package mock

import (
	"context"

	"github.com/fwojciec/crawlkit"
)

var _ crawlkit.SitemapService = (*SitemapService)(nil)

// SitemapService is a mock implementation of crawlkit.SitemapService. When
// DiscoverURLsFn is nil it serves URLs through the caller's filter, the way
// a real sitemap walk would.
type SitemapService struct {
	DiscoverURLsFn func(ctx context.Context, baseURL string, filter *crawlkit.URLFilter) ([]string, error)

	URLs []string
}

func (s *SitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *crawlkit.URLFilter) ([]string, error) {
	if s.DiscoverURLsFn == nil {
		return filter.Batch(s.URLs), nil
	}
	return s.DiscoverURLsFn(ctx, baseURL, filter)
}
