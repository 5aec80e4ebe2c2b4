package dict

import "math/rand/v2"

// --------------------------------------------------------------------------
// Random Sampling
// --------------------------------------------------------------------------

// RandomEntry returns a uniformly chosen bucket's entry, or nil for an
// empty dict. Entries in longer chains are slightly favoured because the
// bucket is drawn first and the chain position second; callers that need a
// fair distribution use FairRandomEntry.
func (d *Dict) RandomEntry() Entry {
	if d.Size() == 0 {
		return nil
	}
	if d.IsRehashing() {
		d.rehashStep()
	}

	var he Entry
	if d.IsRehashing() {
		s0 := htSize(d.sizeExp[0])
		for he == nil {
			// Buckets below the rehash cursor are empty by invariant, so
			// draw from the combined address space past it.
			h := uint64(d.rehashIdx) + rand.Uint64N(d.Buckets()-uint64(d.rehashIdx))
			if h >= s0 {
				he = d.tables[1][h-s0]
			} else {
				he = d.tables[0][h]
			}
		}
	} else {
		m := htMask(d.sizeExp[0])
		for he == nil {
			he = d.tables[0][rand.Uint64()&m]
		}
	}

	// The bucket holds a chain; count it and pick a uniform position.
	listlen := 0
	for cur := he; cur != nil; cur = entryNext(cur) {
		listlen++
	}
	for listele := rand.IntN(listlen); listele > 0; listele-- {
		he = entryNext(he)
	}
	return he
}

// SomeEntries samples up to count entries from random locations and
// returns them. It makes an effort to return count distinct entries but
// guarantees neither that many nor their distinctness; the point is to
// sample a batch far faster than repeated RandomEntry calls. Long chains
// are reservoir-sampled so their tails are reachable too. While rehashing,
// both tables are walked with the same index, so the sample is not
// uniform when the two table sizes differ.
func (d *Dict) SomeEntries(count uint64) []Entry {
	if size := d.Size(); size < count {
		count = size
	}
	if count == 0 {
		return nil
	}
	maxSteps := count * 10

	// Do rehashing work proportional to the requested sample size.
	for j := uint64(0); j < count && d.IsRehashing(); j++ {
		d.rehashStep()
	}

	tables := 1
	if d.IsRehashing() {
		tables = 2
	}
	maxSizeMask := htMask(d.sizeExp[0])
	if tables > 1 && maxSizeMask < htMask(d.sizeExp[1]) {
		maxSizeMask = htMask(d.sizeExp[1])
	}

	des := make([]Entry, count)
	var stored uint64

	// Start at a random point inside the larger table and advance
	// linearly through both.
	i := rand.Uint64() & maxSizeMask
	var emptyLen uint64 // contiguous empty buckets seen so far
	for stored < count && maxSteps > 0 {
		maxSteps--
		for j := 0; j < tables; j++ {
			if tables == 2 && j == 0 && int64(i) < d.rehashIdx {
				// Nothing lives below the cursor in either table; if the
				// index is also out of range for the smaller new table,
				// jump straight to the cursor (shrinking case).
				if i >= htSize(d.sizeExp[1]) {
					i = uint64(d.rehashIdx)
				} else {
					continue
				}
			}
			if i >= htSize(d.sizeExp[j]) {
				continue // out of range for this table
			}
			he := d.tables[j][i]

			if he == nil {
				emptyLen++
				if emptyLen >= 5 && emptyLen > count {
					// A run of empty buckets; re-seed the walk elsewhere.
					i = rand.Uint64() & maxSizeMask
					emptyLen = 0
				}
				continue
			}
			emptyLen = 0
			for he != nil {
				// Reservoir sampling: the first count entries fill the
				// result, later ones replace a random slot with
				// probability count/(stored+1), so the tail of a long
				// chain is as likely to be kept as its head.
				if stored < count {
					des[stored] = he
				} else if r := rand.Uint64N(stored + 1); r < count {
					des[r] = he
				}
				he = entryNext(he)
				stored++
			}
			if stored >= count {
				return des
			}
		}
		i = (i + 1) & maxSizeMask
	}

	return des[:stored]
}

// fairSampleSize is how many entries FairRandomEntry draws before picking
// one: large enough to smooth over chain length differences, small enough
// to stay cheap.
const fairSampleSize = 15

// FairRandomEntry returns a random entry with a distribution much closer
// to uniform than RandomEntry: it samples a linear range of buckets and
// picks uniformly from the collected entries, smoothing away the bias
// towards long chains.
func (d *Dict) FairRandomEntry() Entry {
	entries := d.SomeEntries(fairSampleSize)
	// An unlucky run can come back empty even for a non-empty dict; fall
	// back to the biased pick, which always yields an entry if one exists.
	if len(entries) == 0 {
		return d.RandomEntry()
	}
	return entries[rand.IntN(len(entries))]
}
