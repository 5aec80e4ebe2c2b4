package dict

import "unsafe"

// --------------------------------------------------------------------------
// Fingerprint
// --------------------------------------------------------------------------

// Fingerprint condenses the dict's structural state (table addresses,
// exponents and used counters) into a 64 bit value. Unsafe iterators
// record it on the first Next and verify it on Release to trap forbidden
// mutation during iteration.
func (d *Dict) Fingerprint() uint64 {
	integers := [6]uint64{
		uint64(uintptr(unsafe.Pointer(unsafe.SliceData(d.tables[0])))),
		uint64(d.sizeExp[0]),
		d.used[0],
		uint64(uintptr(unsafe.Pointer(unsafe.SliceData(d.tables[1])))),
		uint64(d.sizeExp[1]),
		d.used[1],
	}

	// Hash the integers by folding each one into the running hash, so the
	// same set of values in a different order yields a different result.
	// The mixing step is Tomas Wang's 64 bit integer hash.
	var hash uint64
	for _, v := range integers {
		hash += v
		hash = ^hash + (hash << 21)
		hash ^= hash >> 24
		hash = (hash + (hash << 3)) + (hash << 8)
		hash ^= hash >> 14
		hash = (hash + (hash << 2)) + (hash << 4)
		hash ^= hash >> 28
		hash += hash << 31
	}
	return hash
}

// --------------------------------------------------------------------------
// Iterators
// --------------------------------------------------------------------------

// Iterator walks all entries of a dict. A safe iterator pauses rehashing
// for its lifetime, so the dict may be mutated while iterating (the entry
// just returned may be deleted). An unsafe iterator tolerates no mutation
// at all: it fingerprints the dict on the first Next and panics on Release
// if the fingerprint no longer matches.
//
// The zero value is not usable; call Init or InitSafe, or use the Dict
// constructors NewIterator and NewSafeIterator.
type Iterator struct {
	d           *Dict
	table       int
	index       int64
	safe        bool
	entry       Entry
	nextEntry   Entry
	fingerprint uint64
}

// NewIterator returns an unsafe iterator over d.
func (d *Dict) NewIterator() *Iterator {
	it := &Iterator{}
	it.Init(d)
	return it
}

// NewSafeIterator returns a safe iterator over d.
func (d *Dict) NewSafeIterator() *Iterator {
	it := &Iterator{}
	it.InitSafe(d)
	return it
}

// Init prepares a stack-allocated unsafe iterator.
func (it *Iterator) Init(d *Dict) {
	*it = Iterator{d: d, index: -1}
}

// InitSafe prepares a stack-allocated safe iterator.
func (it *Iterator) InitSafe(d *Dict) {
	it.Init(d)
	it.safe = true
}

// Next returns the next entry, or nil when the iteration is exhausted.
// The caller may delete the returned entry before the next call; the
// iterator caches its successor beforehand.
func (it *Iterator) Next() Entry {
	for {
		if it.entry == nil {
			if it.index == -1 && it.table == 0 {
				// First call: freeze the dict's shape one way or the
				// other.
				if it.safe {
					it.d.PauseRehashing()
				} else {
					it.fingerprint = it.d.Fingerprint()
				}
				// Buckets below the rehash cursor are already drained.
				if it.d.IsRehashing() {
					it.index = it.d.rehashIdx - 1
				}
			}
			it.index++
			if it.index >= int64(htSize(it.d.sizeExp[it.table])) {
				if it.d.IsRehashing() && it.table == 0 {
					it.table++
					it.index = 0
				} else {
					return nil
				}
			}
			it.entry = it.d.tables[it.table][it.index]
		} else {
			it.entry = it.nextEntry
		}
		if it.entry != nil {
			it.nextEntry = entryNext(it.entry)
			return it.entry
		}
	}
}

// Release ends the iteration: a safe iterator resumes rehashing, an unsafe
// one verifies the fingerprint and panics if the dict was mutated.
func (it *Iterator) Release() {
	if it.index == -1 && it.table == 0 {
		return // Next was never called
	}
	if it.safe {
		it.d.ResumeRehashing()
		if it.d.pauseRehash < 0 {
			panic("dict: iterator released more than once")
		}
	} else if it.fingerprint != it.d.Fingerprint() {
		panic("dict: dict mutated during unsafe iteration")
	}
}
