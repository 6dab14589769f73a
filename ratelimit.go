package crawlkit

import (
	"context"
	"time"
)

// RateLimiterState is the pacing state of one domain.
type RateLimiterState struct {
	CurrentDelay        time.Duration
	ConsecutiveFailures int
	LastAttemptAt       time.Time
}

// ReadyAt returns the earliest time the next fetch may start.
func (s RateLimiterState) ReadyAt() time.Time {
	if s.LastAttemptAt.IsZero() {
		return time.Time{}
	}
	return s.LastAttemptAt.Add(s.CurrentDelay)
}

// DomainLimiter paces fetches per domain and backs off on soft failures.
type DomainLimiter interface {
	// Acquire blocks until a fetch to domain may start. Returns an error if
	// the context is canceled before the wait completes.
	Acquire(ctx context.Context, domain string) error

	// OnSuccess resets the domain's failure count and decays its delay.
	OnSuccess(domain string)

	// OnSoftFailure backs the domain off. It returns false once the
	// domain's retries are exhausted.
	OnSoftFailure(domain string, statusCode int) bool

	// IsSoftFailure reports whether statusCode triggers a backoff.
	IsSoftFailure(statusCode int) bool

	// State returns the domain's pacing state, if the domain has been seen.
	State(domain string) (RateLimiterState, bool)
}
