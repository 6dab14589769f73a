package mock

import (
	"context"

	"github.com/fwojciec/crawlkit"
)

var _ crawlkit.DomainLimiter = (*DomainLimiter)(nil)

// DomainLimiter is a mock implementation of crawlkit.DomainLimiter.
type DomainLimiter struct {
	AcquireFn       func(ctx context.Context, domain string) error
	OnSuccessFn     func(domain string)
	OnSoftFailureFn func(domain string, statusCode int) bool
	IsSoftFailureFn func(statusCode int) bool
	StateFn         func(domain string) (crawlkit.RateLimiterState, bool)
}

func (d *DomainLimiter) Acquire(ctx context.Context, domain string) error {
	return d.AcquireFn(ctx, domain)
}

func (d *DomainLimiter) OnSuccess(domain string) {
	d.OnSuccessFn(domain)
}

func (d *DomainLimiter) OnSoftFailure(domain string, statusCode int) bool {
	return d.OnSoftFailureFn(domain, statusCode)
}

func (d *DomainLimiter) IsSoftFailure(statusCode int) bool {
	return d.IsSoftFailureFn(statusCode)
}

func (d *DomainLimiter) State(domain string) (crawlkit.RateLimiterState, bool) {
	return d.StateFn(domain)
}

var _ crawlkit.MemoryMonitor = (*MemoryMonitor)(nil)

// MemoryMonitor is a mock implementation of crawlkit.MemoryMonitor.
type MemoryMonitor struct {
	MemoryPressureFn func() float64
}

func (m *MemoryMonitor) MemoryPressure() float64 {
	return m.MemoryPressureFn()
}
