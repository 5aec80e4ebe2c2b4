package dict

import (
	"errors"
	"math/bits"
)

// --------------------------------------------------------------------------
// Global Resize State
// --------------------------------------------------------------------------

// ResizeState controls automatic resizing and rehash progress for every
// dict in the process. A host embedding many dicts sets it to ResizeAvoid
// (or ResizeForbid) while memory must not be shuffled around, e.g. while a
// copy-on-write child is writing a snapshot.
type ResizeState int

const (
	// ResizeEnabled allows all automatic resizing.
	ResizeEnabled ResizeState = iota
	// ResizeAvoid suppresses resizing and rehashing unless the table is
	// badly out of shape (see forceResizeRatio).
	ResizeAvoid
	// ResizeForbid disables automatic resizing and rehashing entirely.
	ResizeForbid
)

var resizeState = ResizeEnabled

// SetResizeState sets the process-wide resize policy.
func SetResizeState(state ResizeState) { resizeState = state }

// GetResizeState returns the process-wide resize policy.
func GetResizeState() ResizeState { return resizeState }

const (
	// forceResizeRatio is the load factor beyond which even ResizeAvoid
	// gives in and lets a table grow (and, combined with minFill, shrink).
	forceResizeRatio = 4

	// minFill bounds shrinking: a table shrinks when at most one slot in
	// minFill is used.
	minFill = 8
)

// ErrResizeTooLarge is returned by TryExpand when the requested size can
// not be represented as a bucket array.
var ErrResizeTooLarge = errors.New("dict: requested table size overflows")

// --------------------------------------------------------------------------
// Resizing
// --------------------------------------------------------------------------

// nextExp returns the exponent of the smallest power of two table that
// holds size elements, never below the initial size.
func nextExp(size uint64) int8 {
	if size <= initialSize {
		return initialExp
	}
	if size >= 1<<63 {
		return 63
	}
	return int8(bits.Len64(size - 1))
}

// resizeAllowed consults the type's ResizeAllowed gate for a resize to the
// table size that fits size elements.
func (d *Dict) resizeAllowed(size uint64) bool {
	if d.typ.ResizeAllowed == nil {
		return true
	}
	bytes := htSize(nextExp(size)) * bucketSlotBytes
	fill := float64(d.used[0]) / float64(htSize(d.sizeExp[0]))
	return d.typ.ResizeAllowed(bytes, fill)
}

// resize replaces the bucket array with one sized for size elements and
// starts the migration. It reports whether a resize was performed; a
// resize to the current exponent or an unrepresentable size is skipped.
func (d *Dict) resize(size uint64) (bool, error) {
	// A second migration can not start while one is running.
	if d.IsRehashing() {
		panic("dict: resize during rehash")
	}

	newExp := nextExp(size)
	newSize := htSize(newExp)
	// Detect overflows: the new table must hold size elements and its
	// slot count must be addressable.
	if newSize < size || newSize > (1<<48) {
		return false, ErrResizeTooLarge
	}
	if newExp == d.sizeExp[0] {
		return false, nil
	}

	newTable := make([]Entry, newSize)

	// Install the new array as the rehash target even on first allocation,
	// so the started notification fires uniformly; an empty source table
	// is then promoted immediately.
	d.sizeExp[1] = newExp
	d.used[1] = 0
	d.tables[1] = newTable
	d.rehashIdx = 0
	if d.typ.RehashingStarted != nil {
		d.typ.RehashingStarted(d)
	}

	if d.tables[0] == nil || d.used[0] == 0 {
		if d.typ.RehashingCompleted != nil {
			d.typ.RehashingCompleted(d)
		}
		d.sizeExp[0] = newExp
		d.used[0] = 0
		d.tables[0] = newTable
		d.resetTable(1)
		d.rehashIdx = -1
		return true, nil
	}

	if d.typ.NoIncrementalRehash {
		// Migrate everything right away for types that can not tolerate
		// two live tables. A paused or state-blocked rehash is left to
		// later steps.
		for d.Rehash(1000) {
		}
	}
	return true, nil
}

// Expand grows the dict so the bucket array holds at least size elements.
// It reports whether a resize was performed; shrinking requests, ongoing
// rehashes and no-op sizes are skipped.
func (d *Dict) Expand(size uint64) bool {
	if d.IsRehashing() || d.used[0] > size || htSize(d.sizeExp[0]) >= size {
		return false
	}
	ok, _ := d.resize(size)
	return ok
}

// TryExpand is Expand for sizes that may be unrepresentable: it reports
// ErrResizeTooLarge instead of skipping silently, leaving the dict
// unchanged. (Go allocations abort the process on exhaustion, so unlike a
// fallible allocator this guards only requests that could never succeed.)
func (d *Dict) TryExpand(size uint64) error {
	if d.IsRehashing() || d.used[0] > size || htSize(d.sizeExp[0]) >= size {
		return nil
	}
	_, err := d.resize(size)
	return err
}

// Shrink reduces the dict's bucket array to the smallest size holding size
// elements. It reports whether a resize was performed.
func (d *Dict) Shrink(size uint64) bool {
	if d.IsRehashing() || d.used[0] > size || htSize(d.sizeExp[0]) <= size {
		return false
	}
	ok, _ := d.resize(size)
	return ok
}

// --------------------------------------------------------------------------
// Automatic Resize Policy
// --------------------------------------------------------------------------

// expandIfNeeded grows the table when the load factor reaches 1 (or
// forceResizeRatio when resizing should be avoided). An empty dict expands
// to the initial size. Returns true when a rehash is already running, the
// first table was allocated, or the load factor reached the threshold
// (whether or not ResizeAllowed vetoed the expand); false otherwise.
func (d *Dict) expandIfNeeded() bool {
	if d.IsRehashing() {
		return true
	}

	if htSize(d.sizeExp[0]) == 0 {
		d.Expand(initialSize)
		return true
	}

	if (resizeState == ResizeEnabled && d.used[0] >= htSize(d.sizeExp[0])) ||
		(resizeState != ResizeForbid && d.used[0] >= forceResizeRatio*htSize(d.sizeExp[0])) {
		if d.resizeAllowed(d.used[0] + 1) {
			d.Expand(d.used[0] + 1)
		}
		return true
	}
	return false
}

// shrinkIfNeeded gives memory back when at most one slot in minFill is
// used (one in minFill*forceResizeRatio when resizing should be avoided),
// never below the initial size.
func (d *Dict) shrinkIfNeeded() bool {
	if d.IsRehashing() {
		return true
	}

	if htSize(d.sizeExp[0]) <= initialSize {
		return true
	}

	if (resizeState == ResizeEnabled && d.used[0]*minFill <= htSize(d.sizeExp[0])) ||
		(resizeState != ResizeForbid && d.used[0]*minFill*forceResizeRatio <= htSize(d.sizeExp[0])) {
		if d.resizeAllowed(d.used[0]) {
			d.Shrink(d.used[0])
		}
		return true
	}
	return false
}

func (d *Dict) expandIfAutoResizeAllowed() {
	if d.pauseAutoResize > 0 {
		return
	}
	d.expandIfNeeded()
}

func (d *Dict) shrinkIfAutoResizeAllowed() {
	if d.pauseAutoResize > 0 {
		return
	}
	d.shrinkIfNeeded()
}

// PauseAutoResize suspends automatic grow and shrink checks. Explicit
// Expand and Shrink calls still work. Pauses nest.
func (d *Dict) PauseAutoResize() { d.pauseAutoResize++ }

// ResumeAutoResize re-enables automatic resizing after PauseAutoResize.
func (d *Dict) ResumeAutoResize() { d.pauseAutoResize-- }
