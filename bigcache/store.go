// Package bigcache provides an in-memory cache store backed by
// allegro/bigcache.
package bigcache

import (
	"context"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/fwojciec/crawlkit"
)

// DefaultTTL is used when a Store is opened with a non-positive TTL.
const DefaultTTL = 24 * time.Hour

var _ crawlkit.CacheStore = (*Store)(nil)

// Store is a crawlkit.CacheStore held in process memory. Entries are
// evicted once older than the TTL.
type Store struct {
	cache *bigcache.BigCache
	ttl   time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Config sizes a Store.
type Config struct {
	TTL time.Duration

	// MaxSizeMB caps memory used by entries. Zero means unbounded.
	MaxSizeMB int
}

// Open returns a Store. ctx bounds the background cleanup goroutine; Close
// stops it as well.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache, err := bigcache.New(ctx, bigcache.Config{
		Shards:             256,
		LifeWindow:         ttl,
		CleanWindow:        max(ttl/2, time.Second),
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       64 * 1024,
		HardMaxCacheSize:   cfg.MaxSizeMB,
	})
	if err != nil {
		return nil, crawlkit.Errorf(crawlkit.EINVALID, "bigcache: %v", err)
	}
	return &Store{cache: cache, ttl: ttl}, nil
}

// Close releases the cache.
func (s *Store) Close() error {
	return s.cache.Close()
}

func (s *Store) Get(_ context.Context, key string) (*crawlkit.CacheEntry, error) {
	data, err := s.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	entry, err := crawlkit.UnmarshalCacheEntry(data)
	if err != nil {
		_ = s.cache.Delete(key)
		return nil, err
	}
	if entry.Expired(s.now(), s.ttl) {
		_ = s.cache.Delete(key)
		return nil, nil
	}
	return entry, nil
}

func (s *Store) Set(_ context.Context, key string, entry *crawlkit.CacheEntry) error {
	data, err := crawlkit.MarshalCacheEntry(entry)
	if err != nil {
		return err
	}
	return s.cache.Set(key, data)
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := s.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	return s.cache.Reset()
}

func (s *Store) Len(_ context.Context) (int, error) {
	return s.cache.Len(), nil
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
