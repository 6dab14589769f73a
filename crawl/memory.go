package crawl

import (
	"math"
	"runtime/debug"
	"runtime/metrics"

	"github.com/fwojciec/crawlkit"
)

var _ crawlkit.MemoryMonitor = (*RuntimeMemoryMonitor)(nil)

const (
	metricTotal    = "/memory/classes/total:bytes"
	metricReleased = "/memory/classes/heap/released:bytes"
)

// RuntimeMemoryMonitor reports the memory mapped by the Go runtime as a
// fraction of a byte limit.
type RuntimeMemoryMonitor struct {
	// Limit is the byte budget. Zero uses the runtime's soft memory limit
	// (GOMEMLIMIT); without either the pressure is always zero.
	Limit uint64
}

// MemoryPressure returns used bytes divided by the limit.
func (m *RuntimeMemoryMonitor) MemoryPressure() float64 {
	limit := m.Limit
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l != math.MaxInt64 {
			limit = uint64(l)
		}
	}
	if limit == 0 {
		return 0
	}

	samples := []metrics.Sample{{Name: metricTotal}, {Name: metricReleased}}
	metrics.Read(samples)
	used := samples[0].Value.Uint64() - samples[1].Value.Uint64()
	return float64(used) / float64(limit)
}
