package crawl_test

import (
	"testing"

	"github.com/fwojciec/crawlkit/crawl"
	"github.com/stretchr/testify/assert"
)

func TestRuntimeMemoryMonitor(t *testing.T) {
	t.Parallel()

	t.Run("reports a fraction of the configured limit", func(t *testing.T) {
		t.Parallel()

		m := &crawl.RuntimeMemoryMonitor{Limit: 1 << 50}

		p := m.MemoryPressure()

		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 0.01)
	})

	t.Run("small limits read as high pressure", func(t *testing.T) {
		t.Parallel()

		m := &crawl.RuntimeMemoryMonitor{Limit: 1024}

		assert.Greater(t, m.MemoryPressure(), 1.0)
	})
}
