package mock

import (
	"context"

	"github.com/fwojciec/crawlkit"
)

var _ crawlkit.CacheStore = (*CacheStore)(nil)

// CacheStore is a mock implementation of crawlkit.CacheStore.
type CacheStore struct {
	GetFn    func(ctx context.Context, key string) (*crawlkit.CacheEntry, error)
	SetFn    func(ctx context.Context, key string, entry *crawlkit.CacheEntry) error
	DeleteFn func(ctx context.Context, key string) error
	ClearFn  func(ctx context.Context) error
	LenFn    func(ctx context.Context) (int, error)
}

func (s *CacheStore) Get(ctx context.Context, key string) (*crawlkit.CacheEntry, error) {
	return s.GetFn(ctx, key)
}

func (s *CacheStore) Set(ctx context.Context, key string, entry *crawlkit.CacheEntry) error {
	return s.SetFn(ctx, key, entry)
}

func (s *CacheStore) Delete(ctx context.Context, key string) error {
	return s.DeleteFn(ctx, key)
}

func (s *CacheStore) Clear(ctx context.Context) error {
	return s.ClearFn(ctx)
}

func (s *CacheStore) Len(ctx context.Context) (int, error) {
	return s.LenFn(ctx)
}
