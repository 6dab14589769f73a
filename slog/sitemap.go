// Package slog provides log/slog decorators for crawlkit services. Each
// decorator logs one line per call with its duration and error.
package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/crawlkit"
)

var _ crawlkit.SitemapService = (*LoggingSitemapService)(nil)

// LoggingSitemapService logs each discovery with the filter that shaped the
// batch. Failures and empty batches are logged as warnings.
type LoggingSitemapService struct {
	next   crawlkit.SitemapService
	logger *slog.Logger
}

// NewLoggingSitemapService wraps next. A nil logger discards output.
func NewLoggingSitemapService(next crawlkit.SitemapService, logger *slog.Logger) *LoggingSitemapService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LoggingSitemapService{next: next, logger: logger}
}

func (s *LoggingSitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *crawlkit.URLFilter) (urls []string, err error) {
	defer func(begin time.Time) {
		level := slog.LevelInfo
		if err != nil || len(urls) == 0 {
			level = slog.LevelWarn
		}
		attrs := []any{
			"url", baseURL,
			"count", len(urls),
			"duration", time.Since(begin),
		}
		if filter != nil {
			attrs = append(attrs,
				"include", len(filter.Include),
				"exclude", len(filter.Exclude),
				"limit", filter.Limit,
				"truncated", filter.Full(len(urls)),
			)
		}
		if err != nil {
			attrs = append(attrs, "err", err)
		}
		s.logger.Log(ctx, level, "sitemap discovery", attrs...)
	}(time.Now())
	return s.next.DiscoverURLs(ctx, baseURL, filter)
}
