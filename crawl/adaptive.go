package crawl

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// concurrencyGate bounds in-flight tasks. It owns a semaphore sized at the
// ceiling; lowering the limit parks permits with the gate itself, raising it
// hands them back. The limit never drops below the floor.
type concurrencyGate struct {
	sem     *semaphore.Weighted
	ceiling int64
	floor   int64

	mu      sync.Mutex
	held    int64
	pending int64
	wg      sync.WaitGroup
}

func newConcurrencyGate(ceiling, floor int) *concurrencyGate {
	return &concurrencyGate{
		sem:     semaphore.NewWeighted(int64(ceiling)),
		ceiling: int64(ceiling),
		floor:   int64(floor),
	}
}

func (g *concurrencyGate) acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *concurrencyGate) release() {
	g.sem.Release(1)
}

// shrink lowers the limit by one. The permit is taken in the background so
// a fully busy pool shrinks as soon as a task finishes; ctx ends the wait.
func (g *concurrencyGate) shrink(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ceiling-g.held-g.pending <= g.floor {
		return false
	}
	g.pending++
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		err := g.sem.Acquire(ctx, 1)

		g.mu.Lock()
		defer g.mu.Unlock()
		g.pending--
		if err == nil {
			g.held++
		}
	}()
	return true
}

// grow raises the limit by one if it is below the ceiling.
func (g *concurrencyGate) grow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held == 0 {
		return false
	}
	g.held--
	g.sem.Release(1)
	return true
}

// limit returns the current target limit.
func (g *concurrencyGate) limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.ceiling - g.held - g.pending)
}

// wait blocks until background shrinks have settled.
func (g *concurrencyGate) wait() {
	g.wg.Wait()
}
