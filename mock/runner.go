package mock

import (
	"context"

	"github.com/fwojciec/crawlkit"
)

// Runner is a mock of the single-URL runner the dispatcher drives.
type Runner struct {
	RunFn func(ctx context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult
}

func (r *Runner) Run(ctx context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult {
	return r.RunFn(ctx, req)
}
