package crawl

import (
	"context"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/fwojciec/crawlkit"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Dispatcher defaults.
const (
	DefaultMinConcurrency   = 1
	DefaultMaxConcurrency   = 10
	DefaultMemoryThreshold  = 0.90
	DefaultRecoverThreshold = 0.70
	DefaultCheckInterval    = time.Second
	DefaultRetryDelay       = time.Second
	DefaultMaxRetryDelay    = 30 * time.Second
)

// Runner crawls a single request.
type Runner interface {
	Run(ctx context.Context, req crawlkit.CrawlRequest) *crawlkit.CrawlResult
}

var _ Runner = (*Crawler)(nil)

// Dispatcher runs many URLs through a Runner under a concurrency limit that
// adapts to memory pressure. Every submitted URL produces exactly one
// outcome; one URL's failure never aborts the others.
type Dispatcher struct {
	Runner Runner

	// RateLimiter, when set, orders pending URLs so domains that are ready
	// now are scheduled before domains still backing off.
	RateLimiter crawlkit.DomainLimiter

	// Memory is sampled every CheckInterval. Nil keeps the limit at the ceiling.
	Memory crawlkit.MemoryMonitor

	MinConcurrency   int
	MaxConcurrency   int
	MemoryThreshold  float64
	RecoverThreshold float64
	CheckInterval    time.Duration

	// MaxRetries bounds retries of transient failures per URL.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// OnOutcome, if set, is called once per outcome as it is produced.
	OnOutcome func(crawlkit.DispatchOutcome)

	Logger *slog.Logger
}

// NewDispatcher returns a Dispatcher over runner with default limits.
func NewDispatcher(runner Runner) *Dispatcher {
	return &Dispatcher{
		Runner:           runner,
		MinConcurrency:   DefaultMinConcurrency,
		MaxConcurrency:   DefaultMaxConcurrency,
		MemoryThreshold:  DefaultMemoryThreshold,
		RecoverThreshold: DefaultRecoverThreshold,
		CheckInterval:    DefaultCheckInterval,
		MaxRetries:       DefaultMaxRetries,
		RetryDelay:       DefaultRetryDelay,
		MaxRetryDelay:    DefaultMaxRetryDelay,
	}
}

// Run crawls every URL and returns their outcomes in submission order.
// It returns an error only when the batch cannot be scheduled.
func (d *Dispatcher) Run(ctx context.Context, urls []string, cfg crawlkit.RunConfig) ([]crawlkit.DispatchOutcome, error) {
	if err := d.validate(cfg); err != nil {
		return nil, err
	}

	outcomes := make([]crawlkit.DispatchOutcome, len(urls))
	for o := range d.dispatch(ctx, urls, cfg) {
		outcomes[o.position] = o.outcome
	}
	return outcomes, nil
}

// Stream returns a sequence that crawls every URL and yields outcomes in
// completion order. Each iteration starts a fresh batch; stopping early
// cancels the batch's remaining work.
func (d *Dispatcher) Stream(ctx context.Context, urls []string, cfg crawlkit.RunConfig) (iter.Seq[crawlkit.DispatchOutcome], error) {
	if err := d.validate(cfg); err != nil {
		return nil, err
	}

	return func(yield func(crawlkit.DispatchOutcome) bool) {
		ctx, cancel := context.WithCancel(ctx)
		ch := d.dispatch(ctx, urls, cfg)
		defer func() {
			cancel()
			for range ch {
			}
		}()

		for o := range ch {
			if !yield(o.outcome) {
				return
			}
		}
	}, nil
}

func (d *Dispatcher) validate(cfg crawlkit.RunConfig) error {
	if d.Runner == nil {
		return crawlkit.Errorf(crawlkit.EINVALID, "dispatcher requires a runner")
	}
	if d.MinConcurrency > d.MaxConcurrency && d.MaxConcurrency > 0 {
		return crawlkit.Errorf(crawlkit.EINVALID, "min concurrency %d exceeds max concurrency %d", d.MinConcurrency, d.MaxConcurrency)
	}
	if d.MaxRetries < 0 {
		return crawlkit.Errorf(crawlkit.EINVALID, "max retries must not be negative")
	}
	return cfg.Validate()
}

// indexedOutcome pairs an outcome with its submission position.
type indexedOutcome struct {
	position int
	outcome  crawlkit.DispatchOutcome
}

// dispatch schedules every URL and returns a channel that receives one
// outcome per URL and is closed once all have been produced.
func (d *Dispatcher) dispatch(ctx context.Context, urls []string, cfg crawlkit.RunConfig) <-chan indexedOutcome {
	out := make(chan indexedOutcome, len(urls))
	gate := newConcurrencyGate(d.ceiling(), d.floor())
	queue := newTaskQueue(urls, d.RateLimiter)

	emit := func(position int, o crawlkit.DispatchOutcome) {
		if d.OnOutcome != nil {
			d.OnOutcome(o)
		}
		out <- indexedOutcome{position: position, outcome: o}
	}

	go func() {
		defer close(out)

		monitorCtx, stopMonitor := context.WithCancel(ctx)
		var monitor errgroup.Group
		if d.Memory != nil {
			monitor.Go(func() error {
				d.monitor(monitorCtx, gate)
				return nil
			})
		}

		var g errgroup.Group
		for queue.len() > 0 && ctx.Err() == nil {
			if err := gate.acquire(ctx); err != nil {
				break
			}
			if ctx.Err() != nil {
				gate.release()
				break
			}
			t := queue.next(time.Now())
			g.Go(func() error {
				defer gate.release()
				emit(t.position, d.runTask(ctx, t.url, cfg))
				return nil
			})
		}

		// Tasks never started after cancellation still get an outcome.
		for queue.len() > 0 {
			t := queue.next(time.Now())
			emit(t.position, canceledOutcome(t.url))
		}

		_ = g.Wait()
		stopMonitor()
		_ = monitor.Wait()
		gate.wait()
	}()

	return out
}

// runTask crawls one URL, retrying transient failures with backoff.
func (d *Dispatcher) runTask(ctx context.Context, url string, cfg crawlkit.RunConfig) crawlkit.DispatchOutcome {
	o := crawlkit.DispatchOutcome{
		TaskID:    uuid.NewString(),
		URL:       url,
		StartedAt: time.Now(),
	}

	var result *crawlkit.CrawlResult
	var attempts int
	_ = retry.Do(
		func() error {
			attempts++
			result = d.Runner.Run(ctx, crawlkit.CrawlRequest{URL: url, Config: cfg})
			if result.Success {
				return nil
			}
			err := crawlkit.Errorf(result.ErrorCode, "%s", result.ErrorMessage)
			if !crawlkit.IsRetryable(result.ErrorCode) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(d.MaxRetries)+1),
		retry.Delay(d.RetryDelay),
		retry.MaxDelay(d.MaxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			d.logger().Info("retrying", "url", url, "attempt", n+1, "err", err)
		}),
	)

	o.EndedAt = time.Now()
	o.Result = result
	o.RetriesUsed = max(attempts-1, 0)
	if d.Memory != nil {
		o.MemoryPressure = d.Memory.MemoryPressure()
	}

	switch {
	case result != nil && result.Success:
		o.Status = crawlkit.OutcomeSucceeded
	case ctx.Err() != nil:
		o.Status = crawlkit.OutcomeCanceled
		o.ErrorCode = crawlkit.ECANCELED
		o.Error = "batch canceled"
		if result != nil && result.ErrorMessage != "" {
			o.Error = result.ErrorMessage
		}
	case result == nil:
		o.Status = crawlkit.OutcomeFailed
		o.ErrorCode = crawlkit.EINTERNAL
		o.Error = "crawl produced no result"
	default:
		o.Status = crawlkit.OutcomeFailed
		o.ErrorCode = result.ErrorCode
		o.Error = result.ErrorMessage
	}
	return o
}

// monitor adjusts the gate's limit from memory pressure samples.
func (d *Dispatcher) monitor(ctx context.Context, gate *concurrencyGate) {
	interval := d.CheckInterval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pressure := d.Memory.MemoryPressure()
		switch {
		case pressure >= d.MemoryThreshold:
			if gate.shrink(ctx) {
				d.logger().Warn("memory pressure, lowering concurrency", "pressure", pressure, "limit", gate.limit())
			}
		case pressure <= d.RecoverThreshold:
			if gate.grow() {
				d.logger().Info("memory recovered, raising concurrency", "pressure", pressure, "limit", gate.limit())
			}
		}
	}
}

func (d *Dispatcher) ceiling() int {
	return max(d.MaxConcurrency, 1)
}

func (d *Dispatcher) floor() int {
	return min(max(d.MinConcurrency, 1), d.ceiling())
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

func canceledOutcome(url string) crawlkit.DispatchOutcome {
	now := time.Now()
	return crawlkit.DispatchOutcome{
		TaskID:    uuid.NewString(),
		URL:       url,
		Status:    crawlkit.OutcomeCanceled,
		ErrorCode: crawlkit.ECANCELED,
		Error:     "batch canceled before the task started",
		StartedAt: now,
		EndedAt:   now,
	}
}

type task struct {
	position int
	url      string
	domain   string
}

// taskQueue holds URLs not yet started.
type taskQueue struct {
	pending []task
	limiter crawlkit.DomainLimiter
}

func newTaskQueue(urls []string, limiter crawlkit.DomainLimiter) *taskQueue {
	q := &taskQueue{limiter: limiter, pending: make([]task, len(urls))}
	for i, u := range urls {
		q.pending[i] = task{
			position: i,
			url:      u,
			domain:   crawlkit.CrawlRequest{URL: u}.Domain(),
		}
	}
	return q
}

func (q *taskQueue) len() int {
	return len(q.pending)
}

// next removes and returns the first task whose domain is ready at now, or
// the task whose domain becomes ready soonest. Without a limiter tasks come
// out in submission order.
func (q *taskQueue) next(now time.Time) task {
	best := 0
	if q.limiter != nil {
		bestAt := q.readyAt(q.pending[0])
		for i := 1; i < len(q.pending) && bestAt.After(now); i++ {
			if at := q.readyAt(q.pending[i]); at.Before(bestAt) {
				best, bestAt = i, at
			}
		}
	}
	t := q.pending[best]
	q.pending = slices.Delete(q.pending, best, best+1)
	return t
}

func (q *taskQueue) readyAt(t task) time.Time {
	if t.domain == "" {
		return time.Time{}
	}
	state, ok := q.limiter.State(t.domain)
	if !ok {
		return time.Time{}
	}
	return state.ReadyAt()
}
