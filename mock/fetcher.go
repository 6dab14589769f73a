package mock

import (
	"context"

	"github.com/fwojciec/crawlkit"
)

var _ crawlkit.Fetcher = (*Fetcher)(nil)

// Fetcher is a mock implementation of crawlkit.Fetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, url string, cfg crawlkit.RunConfig) (*crawlkit.FetchResponse, error)
	CloseFn func() error
}

func (f *Fetcher) Fetch(ctx context.Context, url string, cfg crawlkit.RunConfig) (*crawlkit.FetchResponse, error) {
	return f.FetchFn(ctx, url, cfg)
}

func (f *Fetcher) Close() error {
	return f.CloseFn()
}

var _ crawlkit.RobotsChecker = (*RobotsChecker)(nil)

// RobotsChecker is a mock implementation of crawlkit.RobotsChecker.
type RobotsChecker struct {
	CanFetchFn func(ctx context.Context, url, userAgent string) (bool, error)
}

func (r *RobotsChecker) CanFetch(ctx context.Context, url, userAgent string) (bool, error) {
	return r.CanFetchFn(ctx, url, userAgent)
}
