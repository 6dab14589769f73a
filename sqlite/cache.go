package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fwojciec/crawlkit"
	"github.com/fwojciec/crawlkit/bloom"
)

// Bloom filter sizing for cache keys.
const (
	bloomCapacity = 100_000
	bloomFPRate   = 0.01
)

var _ crawlkit.CacheStore = (*CacheStore)(nil)

// CacheStore implements crawlkit.CacheStore using SQLite. A Bloom filter of
// stored keys answers most misses without a query.
type CacheStore struct {
	db     *DB
	ttl    time.Duration
	filter *bloom.Filter

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewCacheStore returns a CacheStore over an open DB. Entries older than
// ttl read as absent; a non-positive ttl keeps entries forever. Existing
// keys are loaded into the negative-lookup filter.
func NewCacheStore(ctx context.Context, db *DB, ttl time.Duration) (*CacheStore, error) {
	s := &CacheStore{
		db:     db,
		ttl:    ttl,
		filter: bloom.NewFilter(bloomCapacity, bloomFPRate),
	}

	rows, err := db.QueryContext(ctx, `SELECT key FROM cache_entries`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		s.filter.Add(key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get retrieves an entry by key. Expired entries are deleted and reported
// as absent.
func (s *CacheStore) Get(ctx context.Context, key string) (*crawlkit.CacheEntry, error) {
	if !s.filter.Test(key) {
		return nil, nil
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM cache_entries WHERE key = ?
	`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entry, err := crawlkit.UnmarshalCacheEntry(data)
	if err != nil {
		return nil, err
	}
	if entry.Expired(s.now(), s.ttl) {
		if err := s.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return entry, nil
}

// Set stores an entry, replacing any previous entry under key.
func (s *CacheStore) Set(ctx context.Context, key string, entry *crawlkit.CacheEntry) error {
	data, err := crawlkit.MarshalCacheEntry(entry)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, url, data, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			url = excluded.url,
			data = excluded.data,
			created_at = excluded.created_at
	`, key, entry.URL, data, entry.CreatedAt.UnixNano())
	if err != nil {
		return err
	}
	s.filter.Add(key)
	return nil
}

// Delete removes the entry stored under key.
func (s *CacheStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// Clear removes every entry.
func (s *CacheStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return err
	}
	s.filter.Reset()
	return nil
}

// Len returns the number of unexpired entries.
func (s *CacheStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cache_entries WHERE created_at > ?
	`, s.cutoff()).Scan(&n)
	return n, err
}

// PurgeExpired deletes every expired entry and returns how many were removed.
func (s *CacheStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE created_at <= ?`, s.cutoff())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// cutoff returns the creation time, in unix nanoseconds, at or before which
// an entry is expired.
func (s *CacheStore) cutoff() int64 {
	if s.ttl <= 0 {
		return -1 << 63
	}
	return s.now().Add(-s.ttl).UnixNano()
}

func (s *CacheStore) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
