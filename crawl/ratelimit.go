package crawl

import (
	"context"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/fwojciec/crawlkit"
	"golang.org/x/time/rate"
)

var _ crawlkit.DomainLimiter = (*DomainLimiter)(nil)

// Rate limiter defaults.
const (
	DefaultBaseDelayMin = 1 * time.Second
	DefaultBaseDelayMax = 3 * time.Second
	DefaultMaxDelay     = 60 * time.Second
	DefaultMaxRetries   = 3
)

// DefaultSoftFailureCodes returns the status codes that trigger a backoff.
func DefaultSoftFailureCodes() []int {
	return []int{http.StatusTooManyRequests, http.StatusServiceUnavailable}
}

// DomainLimiter paces fetches per domain. Each domain owns a token bucket
// with a burst of 1 whose refill interval is the domain's current delay, so
// fetches to one domain start at least one delay apart while different
// domains proceed independently.
type DomainLimiter struct {
	// BaseDelayMin and BaseDelayMax bound the delay a domain starts with.
	// A random delay within the range is picked on first contact.
	BaseDelayMin time.Duration
	BaseDelayMax time.Duration

	// MaxDelay caps the delay reached by backing off.
	MaxDelay time.Duration

	// MaxRetries is the number of consecutive soft failures a domain may
	// accumulate before OnSoftFailure reports exhaustion.
	MaxRetries int

	// SoftFailureCodes lists the status codes that trigger a backoff.
	SoftFailureCodes []int

	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64

	mu      sync.Mutex
	domains map[string]*domainState
}

type domainState struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	delay       time.Duration
	failures    int
	lastAttempt time.Time
}

// NewDomainLimiter returns a DomainLimiter with the default delays and retry limit.
func NewDomainLimiter() *DomainLimiter {
	return &DomainLimiter{
		BaseDelayMin:     DefaultBaseDelayMin,
		BaseDelayMax:     DefaultBaseDelayMax,
		MaxDelay:         DefaultMaxDelay,
		MaxRetries:       DefaultMaxRetries,
		SoftFailureCodes: DefaultSoftFailureCodes(),
	}
}

// Acquire blocks until a fetch to the domain may start.
// Returns an error if the context is canceled before the wait completes.
func (d *DomainLimiter) Acquire(ctx context.Context, domain string) error {
	st := d.state(domain)
	if err := st.limiter.Wait(ctx); err != nil {
		return err
	}

	st.mu.Lock()
	st.lastAttempt = time.Now()
	st.mu.Unlock()
	return nil
}

// OnSuccess resets the failure count and decays the delay toward the base range.
func (d *DomainLimiter) OnSuccess(domain string) {
	st := d.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.failures = 0
	decayed := max(d.baseDelay(), time.Duration(float64(st.delay)*0.75))
	if decayed != st.delay {
		st.setDelay(decayed)
	}
}

// OnSoftFailure doubles the domain's delay up to MaxDelay. It returns false,
// leaving the delay unchanged, once the domain has failed more than
// MaxRetries times in a row.
func (d *DomainLimiter) OnSoftFailure(domain string, statusCode int) bool {
	st := d.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.failures++
	if st.failures > d.MaxRetries {
		return false
	}
	next := st.delay * 2
	if next == 0 {
		next = d.baseDelay()
	}
	if d.MaxDelay > 0 {
		next = min(next, d.MaxDelay)
	}
	st.setDelay(next)
	return true
}

// IsSoftFailure reports whether statusCode triggers a backoff.
func (d *DomainLimiter) IsSoftFailure(statusCode int) bool {
	return slices.Contains(d.SoftFailureCodes, statusCode)
}

// State returns the pacing state of a domain that has been seen.
func (d *DomainLimiter) State(domain string) (crawlkit.RateLimiterState, bool) {
	d.mu.Lock()
	st, ok := d.domains[domain]
	d.mu.Unlock()
	if !ok {
		return crawlkit.RateLimiterState{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return crawlkit.RateLimiterState{
		CurrentDelay:        st.delay,
		ConsecutiveFailures: st.failures,
		LastAttemptAt:       st.lastAttempt,
	}, true
}

// state returns the domain's state, creating it on first contact. The map
// lock is held only for the lookup; each domain's state has its own lock.
func (d *DomainLimiter) state(domain string) *domainState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.domains == nil {
		d.domains = make(map[string]*domainState)
	}
	st, ok := d.domains[domain]
	if !ok {
		delay := d.baseDelay()
		st = &domainState{
			limiter: rate.NewLimiter(every(delay), 1),
			delay:   delay,
		}
		d.domains[domain] = st
	}
	return st
}

func (d *DomainLimiter) baseDelay() time.Duration {
	lo, hi := d.BaseDelayMin, d.BaseDelayMax
	if hi <= lo {
		return lo
	}
	r := d.Rand
	if r == nil {
		r = rand.Float64
	}
	return lo + time.Duration(r()*float64(hi-lo))
}

// setDelay changes the refill interval as of the last attempt, so the next
// token arrives one new delay after that attempt. Callers hold st.mu.
func (st *domainState) setDelay(delay time.Duration) {
	st.delay = delay
	at := st.lastAttempt
	if at.IsZero() {
		at = time.Now()
	}
	st.limiter.SetLimitAt(at, every(delay))
}

func every(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}
