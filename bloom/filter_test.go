package bloom_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fwojciec/crawlkit/bloom"
	"github.com/stretchr/testify/assert"
)

func TestFilter(t *testing.T) {
	t.Parallel()

	t.Run("reports added keys", func(t *testing.T) {
		t.Parallel()

		f := bloom.NewFilter(1000, 0.01)

		assert.False(t, f.Test("https://example.com/page1"))
		f.Add("https://example.com/page1")
		assert.True(t, f.Test("https://example.com/page1"))
		assert.False(t, f.Test("https://example.com/page2"))
	})

	t.Run("estimates its size", func(t *testing.T) {
		t.Parallel()

		f := bloom.NewFilter(1000, 0.01)
		assert.Equal(t, uint(0), f.EstimatedCount())

		for i := range 3 {
			f.Add(fmt.Sprintf("https://example.com/page%d", i))
		}

		count := f.EstimatedCount()
		assert.GreaterOrEqual(t, count, uint(2))
		assert.LessOrEqual(t, count, uint(4))
	})

	t.Run("forgets keys on reset", func(t *testing.T) {
		t.Parallel()

		f := bloom.NewFilter(100, 0.01)
		f.Add("k")

		f.Reset()

		assert.False(t, f.Test("k"))
	})

	t.Run("is safe for concurrent use", func(t *testing.T) {
		t.Parallel()

		f := bloom.NewFilter(10000, 0.01)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range 100 {
					key := fmt.Sprintf("k-%d-%d", i, j)
					f.Add(key)
					assert.True(t, f.Test(key))
				}
			}()
		}
		wg.Wait()
	})
}
