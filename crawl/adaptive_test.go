package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/fwojciec/crawlkit"
	"github.com/fwojciec/crawlkit/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyGate(t *testing.T) {
	t.Parallel()

	t.Run("shrinks toward the floor and grows back", func(t *testing.T) {
		t.Parallel()

		g := newConcurrencyGate(3, 1)
		assert.Equal(t, 3, g.limit())

		assert.True(t, g.shrink(context.Background()))
		assert.True(t, g.shrink(context.Background()))
		assert.False(t, g.shrink(context.Background()), "limit is at the floor")
		g.wait()
		assert.Equal(t, 1, g.limit())

		assert.True(t, g.grow())
		assert.True(t, g.grow())
		assert.False(t, g.grow(), "limit is at the ceiling")
		assert.Equal(t, 3, g.limit())
	})

	t.Run("shrinking a busy pool takes effect when a task finishes", func(t *testing.T) {
		t.Parallel()

		g := newConcurrencyGate(3, 1)
		for range 3 {
			require.NoError(t, g.acquire(context.Background()))
		}

		require.True(t, g.shrink(context.Background()))
		assert.Equal(t, 2, g.limit())

		g.release()
		g.wait()
		assert.False(t, g.sem.TryAcquire(1), "freed permit went to the gate")

		g.release()
		assert.True(t, g.sem.TryAcquire(1))
	})

	t.Run("canceling a pending shrink restores the limit", func(t *testing.T) {
		t.Parallel()

		g := newConcurrencyGate(2, 1)
		for range 2 {
			require.NoError(t, g.acquire(context.Background()))
		}
		ctx, cancel := context.WithCancel(context.Background())

		require.True(t, g.shrink(ctx))
		cancel()
		g.wait()

		assert.Equal(t, 2, g.limit())
	})
}

func TestTaskQueue_Next(t *testing.T) {
	t.Parallel()

	t.Run("keeps submission order without a limiter", func(t *testing.T) {
		t.Parallel()

		q := newTaskQueue([]string{"https://a.example.com", "https://b.example.com"}, nil)

		assert.Equal(t, 0, q.next(time.Now()).position)
		assert.Equal(t, 1, q.next(time.Now()).position)
		assert.Zero(t, q.len())
	})

	t.Run("prefers domains that are ready now", func(t *testing.T) {
		t.Parallel()

		now := time.Now()
		limiter := &mock.DomainLimiter{
			StateFn: func(domain string) (crawlkit.RateLimiterState, bool) {
				if domain == "slow.example.com" {
					return crawlkit.RateLimiterState{LastAttemptAt: now, CurrentDelay: time.Hour}, true
				}
				return crawlkit.RateLimiterState{}, false
			},
		}
		q := newTaskQueue([]string{"https://slow.example.com/1", "https://fast.example.com/1"}, limiter)

		assert.Equal(t, "https://fast.example.com/1", q.next(now).url)
		assert.Equal(t, "https://slow.example.com/1", q.next(now).url)
	})

	t.Run("picks the soonest ready domain when none is ready", func(t *testing.T) {
		t.Parallel()

		now := time.Now()
		delays := map[string]time.Duration{
			"a.example.com": time.Hour,
			"b.example.com": time.Minute,
		}
		limiter := &mock.DomainLimiter{
			StateFn: func(domain string) (crawlkit.RateLimiterState, bool) {
				return crawlkit.RateLimiterState{LastAttemptAt: now, CurrentDelay: delays[domain]}, true
			},
		}
		q := newTaskQueue([]string{"https://a.example.com", "https://b.example.com"}, limiter)

		assert.Equal(t, "https://b.example.com", q.next(now).url)
	})
}
