package dict

import "math/bits"

// --------------------------------------------------------------------------
// Stateless Scan
// --------------------------------------------------------------------------

// ScanFunc receives each entry emitted by a scan step. The callback may
// not mutate the dict (rehashing is paused during the step, but buckets
// could still be reordered by mutations between the callback's own calls).
type ScanFunc func(e Entry)

// DefragFunctions let ScanDefrag relocate the allocations behind the
// entries it visits. Key and Value return the moved allocation, or nil to
// keep the original. With Entries set, the entry records themselves are
// reallocated and the bucket links patched transparently. Embedded entries
// hold their key bytes inline, so the result of Key is ignored for them.
type DefragFunctions struct {
	Entries bool
	Key     func(key any) any
	Value   func(val any) any
}

// Scan iterates the dict in steps. Start with cursor 0; each call emits
// every entry of one bucket (and, during rehashing, its expansions in the
// larger table) and returns the cursor for the next call. A returned
// cursor of 0 means the scan is complete.
//
// The cursor advances by incrementing the reversed bucket index, i.e. the
// iteration proceeds from the high bits of the index. This guarantees that
// every key present in the dict for the whole duration of the scan is
// emitted at least once, even if the table is resized between calls; keys
// may however be emitted more than once.
func (d *Dict) Scan(cursor uint64, fn ScanFunc) uint64 {
	return d.ScanDefrag(cursor, fn, nil)
}

// ScanDefrag is Scan with an optional defragmentation pass: the
// allocations of visited entries are handed to defrag's hooks and bucket
// links are patched to any replacement allocations.
func (d *Dict) ScanDefrag(cursor uint64, fn ScanFunc, defrag *DefragFunctions) uint64 {
	if d.Size() == 0 {
		return 0
	}

	// Guard against a callback that re-enters the dict with a Find or
	// alike: the two tables must not shift under the scan step.
	d.PauseRehashing()
	defer d.ResumeRehashing()

	if !d.IsRehashing() {
		m0 := htMask(d.sizeExp[0])

		if defrag != nil {
			d.defragBucket(&d.tables[0][cursor&m0], defrag)
		}
		de := d.tables[0][cursor&m0]
		for de != nil {
			next := entryNext(de)
			fn(de)
			de = next
		}

		// Set the unmasked bits so incrementing the reversed cursor
		// operates on the masked bits only.
		cursor |= ^m0
		cursor = bits.Reverse64(cursor)
		cursor++
		cursor = bits.Reverse64(cursor)
		return cursor
	}

	// Two live tables: always walk the smaller one first, then every
	// bucket of the larger table that expands the same cursor.
	htidx0, htidx1 := 0, 1
	if htSize(d.sizeExp[htidx0]) > htSize(d.sizeExp[htidx1]) {
		htidx0, htidx1 = 1, 0
	}
	m0 := htMask(d.sizeExp[htidx0])
	m1 := htMask(d.sizeExp[htidx1])

	if defrag != nil {
		d.defragBucket(&d.tables[htidx0][cursor&m0], defrag)
	}
	de := d.tables[htidx0][cursor&m0]
	for de != nil {
		next := entryNext(de)
		fn(de)
		de = next
	}

	for {
		if defrag != nil {
			d.defragBucket(&d.tables[htidx1][cursor&m1], defrag)
		}
		de := d.tables[htidx1][cursor&m1]
		for de != nil {
			next := entryNext(de)
			fn(de)
			de = next
		}

		cursor |= ^m1
		cursor = bits.Reverse64(cursor)
		cursor++
		cursor = bits.Reverse64(cursor)

		if cursor&(m0^m1) == 0 {
			break
		}
	}
	return cursor
}

// defragBucket runs the defrag hooks over one bucket chain, patching the
// chain links to relocated entry records.
func (d *Dict) defragBucket(bucketref *Entry, fns *DefragFunctions) {
	for bucketref != nil && *bucketref != nil {
		de := *bucketref
		var newKey, newVal any
		if fns.Key != nil {
			newKey = fns.Key(Key(de))
		}
		if fns.Value != nil && !d.typ.NoValue && !entryIsBareKey(de) {
			newVal = fns.Value(Value(de))
		}

		var newde Entry
		switch entry := de.(type) {
		case *entryNoValue:
			if fns.Entries {
				moved := *entry
				entry = &moved
				newde = entry
			}
			if newKey != nil {
				entry.key = newKey
			}
		case *entryEmbedded:
			if fns.Entries {
				moved := *entry
				moved.keyBuf = append([]byte(nil), entry.keyBuf...)
				entry = &moved
				newde = entry
			}
			if newVal != nil {
				entry.v = newVal
			}
		case *entryNormal:
			if fns.Entries {
				moved := *entry
				entry = &moved
				newde = entry
			}
			if newKey != nil {
				entry.key = newKey
			}
			if newVal != nil {
				entry.v = newVal
			}
		default:
			// A bare key has no record to move; only the key itself may
			// have been relocated.
			if newKey != nil {
				assertStorableBareKey(newKey)
				*bucketref = newKey
			}
		}
		if newde != nil {
			*bucketref = newde
		}
		bucketref = entryNextRef(*bucketref)
	}
}
