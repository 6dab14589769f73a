// Package prometheus exposes crawl metrics through prometheus/client_golang.
package prometheus

import (
	"context"
	"strconv"
	"time"

	"github.com/fwojciec/crawlkit"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "crawlkit"

// Metrics holds the collectors registered for a crawler process.
type Metrics struct {
	Fetches        *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	CacheLookups   *prometheus.CounterVec
	Outcomes       *prometheus.CounterVec
	OutcomeRetries prometheus.Counter
	MemoryPressure prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetches_total",
			Help:      "Fetch attempts by response status class.",
		}, []string{"status"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Fetch latency by response status class.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"status"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result.",
		}, []string{"result"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_outcomes_total",
			Help:      "Dispatched URLs by final status.",
		}, []string{"status"}),
		OutcomeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_retries_total",
			Help:      "Retries spent by dispatched URLs.",
		}),
		MemoryPressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_pressure_ratio",
			Help:      "Last memory pressure reading reported by the dispatcher.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.Fetches, m.FetchDuration, m.CacheLookups, m.Outcomes, m.OutcomeRetries, m.MemoryPressure,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveOutcome records a dispatch outcome. It matches the dispatcher's
// OnOutcome hook.
func (m *Metrics) ObserveOutcome(o crawlkit.DispatchOutcome) {
	m.Outcomes.WithLabelValues(string(o.Status)).Inc()
	m.OutcomeRetries.Add(float64(o.RetriesUsed))
	m.MemoryPressure.Set(o.MemoryPressure)
}

// statusClass buckets an HTTP status into 2xx..5xx, or "error" when no
// response was received.
func statusClass(resp *crawlkit.FetchResponse, err error) string {
	if err != nil || resp == nil || resp.StatusCode < 100 || resp.StatusCode > 599 {
		return "error"
	}
	return strconv.Itoa(resp.StatusCode/100) + "xx"
}

// Ensure InstrumentedFetcher implements crawlkit.Fetcher.
var _ crawlkit.Fetcher = (*InstrumentedFetcher)(nil)

// InstrumentedFetcher counts and times fetches.
type InstrumentedFetcher struct {
	next    crawlkit.Fetcher
	metrics *Metrics
}

// NewInstrumentedFetcher wraps next.
func NewInstrumentedFetcher(next crawlkit.Fetcher, m *Metrics) *InstrumentedFetcher {
	return &InstrumentedFetcher{next: next, metrics: m}
}

func (f *InstrumentedFetcher) Fetch(ctx context.Context, url string, cfg crawlkit.RunConfig) (*crawlkit.FetchResponse, error) {
	begin := time.Now()
	resp, err := f.next.Fetch(ctx, url, cfg)
	class := statusClass(resp, err)
	f.metrics.Fetches.WithLabelValues(class).Inc()
	f.metrics.FetchDuration.WithLabelValues(class).Observe(time.Since(begin).Seconds())
	return resp, err
}

func (f *InstrumentedFetcher) Close() error {
	return f.next.Close()
}

// Ensure InstrumentedCacheStore implements crawlkit.CacheStore.
var _ crawlkit.CacheStore = (*InstrumentedCacheStore)(nil)

// InstrumentedCacheStore counts cache hits, misses and read errors.
type InstrumentedCacheStore struct {
	crawlkit.CacheStore
	metrics *Metrics
}

// NewInstrumentedCacheStore wraps next.
func NewInstrumentedCacheStore(next crawlkit.CacheStore, m *Metrics) *InstrumentedCacheStore {
	return &InstrumentedCacheStore{CacheStore: next, metrics: m}
}

func (s *InstrumentedCacheStore) Get(ctx context.Context, key string) (*crawlkit.CacheEntry, error) {
	entry, err := s.CacheStore.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.CacheLookups.WithLabelValues("error").Inc()
	case entry == nil:
		s.metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
	}
	return entry, err
}
