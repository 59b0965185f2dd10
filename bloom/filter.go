// Package bloom provides in-run article deduplication using Bloom filters.
package bloom

import (
	"encoding/binary"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/sigmatch"
)

// Ensure Filter implements sigmatch.SeenFilter.
var _ sigmatch.SeenFilter = (*Filter)(nil)

// Filter wraps a Bloom filter keyed on (source ID, URL). It is safe for
// concurrent use by discovery workers.
type Filter struct {
	mu sync.Mutex
	f  *bloom.BloomFilter
}

// NewFilter creates a new Bloom filter sized for n expected items
// with the given false positive rate.
func NewFilter(n uint, fpRate float64) *Filter {
	return &Filter{
		f: bloom.NewWithEstimates(n, fpRate),
	}
}

// TestAndAdd records the pair and reports whether it might have been seen
// before. False positives are possible; false negatives are not.
func (f *Filter) TestAndAdd(sourceID, url string) bool {
	k := key(sourceID, url)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.TestAndAdd(k[:])
}

// EstimatedCount returns the approximate number of items in the filter.
func (f *Filter) EstimatedCount() uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint(f.f.ApproximatedSize())
}

// key digests the pair to a fixed 8 bytes so long URLs cost the same to
// probe as short ones. The separator cannot appear in a UUID.
func key(sourceID, url string) [8]byte {
	d := xxhash.New()
	_, _ = d.WriteString(sourceID)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(url)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], d.Sum64())
	return b
}
