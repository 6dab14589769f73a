package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/crawlkit"
)

// Ensure LoggingCacheStore implements crawlkit.CacheStore.
var _ crawlkit.CacheStore = (*LoggingCacheStore)(nil)

// LoggingCacheStore wraps a CacheStore with debug logging.
type LoggingCacheStore struct {
	next   crawlkit.CacheStore
	logger *slog.Logger
}

// NewLoggingCacheStore creates a new LoggingCacheStore.
func NewLoggingCacheStore(next crawlkit.CacheStore, logger *slog.Logger) *LoggingCacheStore {
	return &LoggingCacheStore{next: next, logger: logger}
}

func (s *LoggingCacheStore) Get(ctx context.Context, key string) (entry *crawlkit.CacheEntry, err error) {
	defer func(begin time.Time) {
		s.logger.Debug("cache get",
			"key", key,
			"hit", entry != nil,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Get(ctx, key)
}

func (s *LoggingCacheStore) Set(ctx context.Context, key string, entry *crawlkit.CacheEntry) (err error) {
	defer func(begin time.Time) {
		var size int
		if entry != nil {
			size = len(entry.HTML)
		}
		s.logger.Debug("cache set",
			"key", key,
			"bytes", size,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Set(ctx, key, entry)
}

func (s *LoggingCacheStore) Delete(ctx context.Context, key string) (err error) {
	defer func(begin time.Time) {
		s.logger.Debug("cache delete", "key", key, "duration", time.Since(begin), "err", err)
	}(time.Now())
	return s.next.Delete(ctx, key)
}

func (s *LoggingCacheStore) Clear(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		s.logger.Info("cache clear", "duration", time.Since(begin), "err", err)
	}(time.Now())
	return s.next.Clear(ctx)
}

func (s *LoggingCacheStore) Len(ctx context.Context) (int, error) {
	return s.next.Len(ctx)
}
