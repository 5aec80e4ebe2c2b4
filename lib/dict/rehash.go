package dict

import "time"

// --------------------------------------------------------------------------
// Incremental Rehashing
// --------------------------------------------------------------------------

// rehashBucket moves every entry in tables[0][idx] to its destination
// bucket in tables[1]. Keys and values are never touched; only the entry
// records are re-linked.
func (d *Dict) rehashBucket(idx uint64) {
	de := d.tables[0][idx]
	for de != nil {
		next := entryNext(de)
		key := Key(de)

		var h uint64
		if d.sizeExp[1] > d.sizeExp[0] {
			h = d.typ.Hash(key) & htMask(d.sizeExp[1])
		} else {
			// Shrinking: the new mask is a prefix of the old one, so the
			// destination index is the current index under the smaller
			// mask. No re-hash needed.
			h = idx & htMask(d.sizeExp[1])
		}
		if d.typ.NoValue {
			if d.typ.BareKeys && d.tables[1][h] == nil {
				// The destination bucket is empty: collapse the entry to a
				// bare key, reclaiming the allocated record if any.
				de = key
			} else if entryIsBareKey(de) {
				// A bare key moving into an occupied bucket needs a record
				// to carry the chain link.
				de = newEntryNoValue(key, d.tables[1][h])
			} else {
				entrySetNext(de, d.tables[1][h])
			}
		} else {
			entrySetNext(de, d.tables[1][h])
		}
		d.tables[1][h] = de
		d.used[0]--
		d.used[1]++
		de = next
	}
	d.tables[0][idx] = nil
}

// checkRehashingCompleted promotes tables[1] once the source table has
// drained. Returns true when the rehash finished.
func (d *Dict) checkRehashingCompleted() bool {
	if d.used[0] != 0 {
		return false
	}
	if d.typ.RehashingCompleted != nil {
		d.typ.RehashingCompleted(d)
	}
	d.tables[0] = d.tables[1]
	d.used[0] = d.used[1]
	d.sizeExp[0] = d.sizeExp[1]
	d.resetTable(1)
	d.rehashIdx = -1
	return true
}

// rehashAllowedByState applies the process-wide resize policy: under
// ResizeForbid no migration runs at all, under ResizeAvoid a grow runs only
// once the new table is at least forceResizeRatio times larger, and a
// shrink only once the old table is at least minFill*forceResizeRatio
// times larger.
func (d *Dict) rehashAllowedByState() bool {
	if resizeState == ResizeForbid || !d.IsRehashing() {
		return false
	}
	if resizeState == ResizeAvoid {
		s0 := htSize(d.sizeExp[0])
		s1 := htSize(d.sizeExp[1])
		if (s1 > s0 && s1 < forceResizeRatio*s0) ||
			(s1 < s0 && s0 < minFill*forceResizeRatio*s1) {
			return false
		}
	}
	return true
}

// Rehash performs at most n bucket migrations and reports whether entries
// remain to migrate. Since a step moves one non-empty bucket, up to 10*n
// empty buckets are skipped before yielding, keeping a single call bounded
// on sparse tables. It returns false without migrating anything when no
// rehash is running, rehashing is paused, or the global resize state
// blocks it.
func (d *Dict) Rehash(n int) bool {
	emptyVisits := n * 10
	if d.pauseRehash > 0 || !d.rehashAllowedByState() {
		return false
	}

	for n > 0 && d.used[0] != 0 {
		n--
		for d.tables[0][d.rehashIdx] == nil {
			d.rehashIdx++
			emptyVisits--
			if emptyVisits == 0 {
				return true
			}
		}
		d.rehashBucket(uint64(d.rehashIdx))
		d.rehashIdx++
	}

	return !d.checkRehashingCompleted()
}

// RehashDuration migrates buckets in batches of 100 until the time budget
// elapses. It returns 100 for every batch after which migration work
// remained; the batch that completes the rehash is not counted, so 0 means
// nothing is left to migrate (or rehashing is paused or blocked). The
// budget is checked between batches only; a bucket is never migrated
// partially.
func (d *Dict) RehashDuration(budget time.Duration) int {
	if d.pauseRehash > 0 {
		return 0
	}
	start := time.Now()
	rehashes := 0
	for d.Rehash(100) {
		rehashes += 100
		if time.Since(start) >= budget {
			break
		}
	}
	return rehashes
}

// rehashStep migrates a single bucket unless rehashing is paused. Lookup
// and update operations call this so a table migrates while it is in
// active use.
func (d *Dict) rehashStep() {
	if d.pauseRehash == 0 {
		d.Rehash(1)
	}
}

// bucketRehash migrates exactly the bucket at idx, which the calling
// operation has just located anyway, so the migration works on a line
// already in cache. Returns whether a migration ran.
func (d *Dict) bucketRehash(idx uint64) bool {
	if d.pauseRehash != 0 {
		return false
	}
	if !d.rehashAllowedByState() {
		return false
	}
	d.rehashBucket(idx)
	d.checkRehashingCompleted()
	return true
}

// PauseRehashing suspends all migration work. Operations keep searching
// both tables correctly while paused. Pauses nest; iterators and scans use
// this to keep the two tables stable underneath them.
func (d *Dict) PauseRehashing() { d.pauseRehash++ }

// ResumeRehashing re-enables migration after PauseRehashing.
func (d *Dict) ResumeRehashing() { d.pauseRehash-- }

// RehashingInfo returns the source and destination table sizes of the
// rehash in progress. Panics when no rehash is running.
func (d *Dict) RehashingInfo() (fromSize, toSize uint64) {
	if !d.IsRehashing() {
		panic("dict: RehashingInfo outside of rehashing")
	}
	return htSize(d.sizeExp[0]), htSize(d.sizeExp[1])
}
