package bloom_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fwojciec/sigmatch/bloom"
	"github.com/stretchr/testify/assert"
)

func TestFilter_TestAndAdd(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	// Pair not yet added should return false
	assert.False(t, f.TestAndAdd("src-1", "https://example.com/a"))

	// Second sighting should return true
	assert.True(t, f.TestAndAdd("src-1", "https://example.com/a"))
	assert.Equal(t, uint(1), f.EstimatedCount())
}

func TestFilter_KeysOnSourceAndURL(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)
	f.TestAndAdd("src-1", "https://example.com/a")

	assert.False(t, f.TestAndAdd("src-2", "https://example.com/a"))
	assert.False(t, f.TestAndAdd("src-1", "https://example.com/b"))
	assert.False(t, f.TestAndAdd("src-1h", "ttps://example.com/a"), "pair boundary is part of the key")
}

func TestFilter_EstimatedCount(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	// Empty filter should have count near 0
	assert.Equal(t, uint(0), f.EstimatedCount())

	f.TestAndAdd("s", "https://example.com/page1")
	f.TestAndAdd("s", "https://example.com/page2")
	f.TestAndAdd("s", "https://example.com/page3")

	// Estimated count should be approximately 3
	count := f.EstimatedCount()
	assert.True(t, count >= 2 && count <= 4, "expected count near 3, got %d", count)
}

func TestFilter_ConcurrentUse(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(10000, 0.001)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				f.TestAndAdd(fmt.Sprintf("src-%d", w), fmt.Sprintf("https://example.com/%d", i))
			}
		}()
	}
	wg.Wait()

	for w := range 8 {
		for i := range 100 {
			assert.True(t, f.TestAndAdd(fmt.Sprintf("src-%d", w), fmt.Sprintf("https://example.com/%d", i)))
		}
	}
}
