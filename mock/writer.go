package mock

import (
	"context"

	"github.com/fwojciec/crawlkit"
)

var _ crawlkit.ResultWriter = (*ResultWriter)(nil)

// ResultWriter is a mock implementation of crawlkit.ResultWriter.
type ResultWriter struct {
	WriteResultFn func(ctx context.Context, r *crawlkit.CrawlResult) (string, error)
}

func (w *ResultWriter) WriteResult(ctx context.Context, r *crawlkit.CrawlResult) (string, error) {
	return w.WriteResultFn(ctx, r)
}
