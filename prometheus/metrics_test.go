package prometheus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fwojciec/crawlkit"
	"github.com/fwojciec/crawlkit/mock"
	crawlprom "github.com/fwojciec/crawlkit/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetrics(t *testing.T) *crawlprom.Metrics {
	t.Helper()
	m, err := crawlprom.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	t.Run("rejects double registration", func(t *testing.T) {
		t.Parallel()

		reg := prometheus.NewRegistry()
		_, err := crawlprom.NewMetrics(reg)
		require.NoError(t, err)

		_, err = crawlprom.NewMetrics(reg)
		require.Error(t, err)
	})
}

func TestInstrumentedFetcher(t *testing.T) {
	t.Parallel()

	t.Run("counts fetches by status class", func(t *testing.T) {
		t.Parallel()

		m := newMetrics(t)
		status := 200
		inner := &mock.Fetcher{
			FetchFn: func(ctx context.Context, url string, cfg crawlkit.RunConfig) (*crawlkit.FetchResponse, error) {
				if status == 0 {
					return nil, errors.New("refused")
				}
				return &crawlkit.FetchResponse{StatusCode: status}, nil
			},
		}
		f := crawlprom.NewInstrumentedFetcher(inner, m)
		ctx := context.Background()

		_, _ = f.Fetch(ctx, "https://example.com", crawlkit.RunConfig{})
		_, _ = f.Fetch(ctx, "https://example.com", crawlkit.RunConfig{})
		status = 429
		_, _ = f.Fetch(ctx, "https://example.com", crawlkit.RunConfig{})
		status = 0
		_, _ = f.Fetch(ctx, "https://example.com", crawlkit.RunConfig{})

		assert.Equal(t, 2.0, testutil.ToFloat64(m.Fetches.WithLabelValues("2xx")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues("4xx")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues("error")))
		assert.Equal(t, 3, testutil.CollectAndCount(m.FetchDuration))
	})
}

func TestInstrumentedCacheStore(t *testing.T) {
	t.Parallel()

	t.Run("counts hits, misses and errors", func(t *testing.T) {
		t.Parallel()

		m := newMetrics(t)
		inner := &mock.CacheStore{
			GetFn: func(ctx context.Context, key string) (*crawlkit.CacheEntry, error) {
				switch key {
				case "hit":
					return &crawlkit.CacheEntry{Key: key}, nil
				case "broken":
					return nil, errors.New("corrupt")
				}
				return nil, nil
			},
			LenFn: func(ctx context.Context) (int, error) { return 1, nil },
		}
		s := crawlprom.NewInstrumentedCacheStore(inner, m)
		ctx := context.Background()

		for _, key := range []string{"hit", "hit", "miss", "broken"} {
			_, _ = s.Get(ctx, key)
		}
		n, err := s.Len(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("error")))
	})
}

func TestMetrics_ObserveOutcome(t *testing.T) {
	t.Parallel()

	m := newMetrics(t)
	m.ObserveOutcome(crawlkit.DispatchOutcome{Status: crawlkit.OutcomeSucceeded, RetriesUsed: 2, MemoryPressure: 0.4})
	m.ObserveOutcome(crawlkit.DispatchOutcome{Status: crawlkit.OutcomeFailed, MemoryPressure: 0.5})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutcomeRetries))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.MemoryPressure))
}
