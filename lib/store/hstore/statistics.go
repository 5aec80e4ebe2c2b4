package hstore

import "math/bits"

// --------------------------------------------------------------------------
// Value Size Histogram
// --------------------------------------------------------------------------

// sizeHistogramBuckets bounds the tracked range: the last bucket absorbs
// everything from 1GB up, far beyond any value hstore realistically holds.
const sizeHistogramBuckets = 31

// sizeHistogram tracks the distribution of value sizes written to a store
// in power-of-two buckets: bucket 0 counts empty values, bucket i counts
// sizes in [2^(i-1), 2^i). Byte-slice payloads cluster heavily in the low
// buckets, so 32 counters cover the whole range with enough resolution for
// the median/average estimate GetStoreInfo reports.
//
// Thread-safety: none of its own; hstore mutates it under the store lock
// only.
type sizeHistogram struct {
	buckets [sizeHistogramBuckets + 1]uint64
	count   uint64
	sum     uint64
}

// add records one written value size.
func (h *sizeHistogram) add(size int) {
	idx := bits.Len64(uint64(size))
	if idx > sizeHistogramBuckets {
		idx = sizeHistogramBuckets
	}
	h.buckets[idx]++
	h.count++
	h.sum += uint64(size)
}

// samples returns the number of sizes recorded so far.
func (h *sizeHistogram) samples() uint64 {
	return h.count
}

// average returns the exact mean of all recorded sizes.
func (h *sizeHistogram) average() int {
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// median estimates the median size as the midpoint of the bucket the
// middle sample falls into; with power-of-two buckets the estimate is off
// by at most a factor of two, which is plenty for a memory estimate.
func (h *sizeHistogram) median() int {
	if h.count == 0 {
		return 0
	}
	remaining := h.count / 2
	for idx, n := range h.buckets {
		if n > remaining {
			switch idx {
			case 0:
				return 0
			case 1:
				return 1
			default:
				// midpoint of [2^(idx-1), 2^idx)
				return 3 << (idx - 2)
			}
		}
		remaining -= n
	}
	// All buckets consumed; fall back to the mean.
	return int(h.sum / h.count)
}
