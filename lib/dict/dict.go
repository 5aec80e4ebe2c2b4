package dict

import "fmt"

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// InitialSize is the number of bucket slots in the smallest table ever
// allocated. Tables never shrink below it.
const InitialSize = 1 << initialExp

const (
	// initialExp is the exponent of the smallest bucket array.
	initialExp  = 2
	initialSize = InitialSize

	// absentExp marks a bucket array that has not been allocated.
	absentExp = -1

	// emptyCallbackInterval is how many buckets Empty clears between
	// invocations of its progress callback.
	emptyCallbackInterval = 65536
)

// --------------------------------------------------------------------------
// Type Descriptor
// --------------------------------------------------------------------------

// Type is the capability descriptor that makes a Dict generic over key and
// value domains. Hash and Compare are required; everything else is
// optional. A single Type value is typically shared by all dicts of one
// kind and must not be mutated after the first New call that uses it.
type Type struct {
	// Hash computes the 64 bit hash of a key. Required.
	Hash func(key any) uint64

	// Compare reports whether two keys are equal. Required. For
	// EmbeddedEntry types the second argument may be the []byte form of
	// an embedded key.
	Compare func(a, b any) bool

	// KeyDup, when set, clones a key on insertion; the dict then owns the
	// clone. Forbidden for EmbeddedEntry types.
	KeyDup func(key any) any

	// KeyDestructor and ValDestructor release keys and values owned by the
	// dict when entries are destroyed.
	KeyDestructor func(key any)
	ValDestructor func(val any)

	// EmbedKey encodes a key into buf and returns the number of bytes
	// written plus the header length preceding the key proper. Called with
	// a nil buf it returns the required buffer size. Required iff
	// EmbeddedEntry is set.
	EmbedKey func(buf []byte, key any) (n int, headerLen uint8)

	// ResizeAllowed, when set, is consulted before each automatic grow or
	// shrink with the bucket array size in bytes about to be allocated and
	// the current fill factor. Returning false vetoes the resize. The first
	// table allocation and explicit Expand, TryExpand and Shrink calls do
	// not consult it.
	ResizeAllowed func(bytes uint64, fillFactor float64) bool

	// RehashingStarted and RehashingCompleted are invoked when an
	// incremental rehash begins and ends.
	RehashingStarted   func(d *Dict)
	RehashingCompleted func(d *Dict)

	// MetadataBytes reserves a fixed-size byte region owned by the caller
	// that trails the dict. Sized once at construction (d is nil then).
	MetadataBytes func(d *Dict) int

	// NoValue declares that entries carry no value slot.
	NoValue bool

	// BareKeys allows storing a key directly in a bucket slot without an
	// allocated entry record. Only meaningful together with NoValue; the
	// caller promises its keys are never values of the dict's internal
	// entry types (true for any ordinary key type).
	BareKeys bool

	// EmbeddedEntry selects the entry layout with the key bytes inline.
	EmbeddedEntry bool

	// NoIncrementalRehash forces a full-table migration at resize time
	// instead of amortising it over subsequent operations.
	NoIncrementalRehash bool
}

func validateType(typ *Type) {
	if typ.Hash == nil || typ.Compare == nil {
		panic("dict: Type.Hash and Type.Compare are required")
	}
	if typ.EmbeddedEntry {
		if typ.EmbedKey == nil {
			panic("dict: EmbeddedEntry requires EmbedKey")
		}
		if typ.KeyDup != nil || typ.KeyDestructor != nil {
			panic("dict: EmbeddedEntry forbids KeyDup and KeyDestructor")
		}
	} else if typ.EmbedKey != nil {
		panic("dict: EmbedKey requires EmbeddedEntry")
	}
	if typ.BareKeys && !typ.NoValue {
		panic("dict: BareKeys is only meaningful with NoValue")
	}
}

// --------------------------------------------------------------------------
// Dict
// --------------------------------------------------------------------------

// Dict is an in-memory associative container with incremental rehashing:
// growth and shrink are amortised across many small operations so no single
// call pauses for table-sized work.
//
// Thread-safety: a Dict is single-owner. Mutating it from multiple
// goroutines without external synchronisation is undefined; the pause
// mechanisms only coordinate re-entrant use on one goroutine.
type Dict struct {
	typ *Type

	// tables[0] is the active bucket array; tables[1] exists only while a
	// rehash migrates entries into it.
	tables  [2][]Entry
	used    [2]uint64
	sizeExp [2]int8

	// rehashIdx is the next index in tables[0] left to migrate, or -1 when
	// no rehash is in progress. Every bucket below it is empty.
	rehashIdx int64

	pauseRehash     int
	pauseAutoResize int

	metadata []byte
}

// New creates an empty dict for the given type descriptor. The first bucket
// array is allocated lazily on first insert.
func New(typ *Type) *Dict {
	validateType(typ)
	d := &Dict{typ: typ, rehashIdx: -1}
	d.resetTable(0)
	d.resetTable(1)
	if typ.MetadataBytes != nil {
		if n := typ.MetadataBytes(nil); n > 0 {
			d.metadata = make([]byte, n)
		}
	}
	return d
}

// NewPresized creates a dict whose first bucket array is already large
// enough for size elements, avoiding rehashes during a bulk load.
func NewPresized(typ *Type, size uint64) *Dict {
	d := New(typ)
	d.Expand(size)
	return d
}

func (d *Dict) resetTable(htidx int) {
	d.tables[htidx] = nil
	d.sizeExp[htidx] = absentExp
	d.used[htidx] = 0
}

// Metadata returns the caller-owned byte region reserved at construction
// via Type.MetadataBytes, or nil.
func (d *Dict) Metadata() []byte { return d.metadata }

// Type returns the dict's type descriptor.
func (d *Dict) Type() *Type { return d.typ }

// Size returns the number of entries in the dict.
func (d *Dict) Size() uint64 { return d.used[0] + d.used[1] }

// Buckets returns the total number of bucket slots over both tables.
func (d *Dict) Buckets() uint64 { return htSize(d.sizeExp[0]) + htSize(d.sizeExp[1]) }

// IsRehashing reports whether an incremental rehash is in progress.
func (d *Dict) IsRehashing() bool { return d.rehashIdx != -1 }

// Hash computes the hash of key under the dict's type descriptor.
func (d *Dict) Hash(key any) uint64 { return d.typ.Hash(key) }

func htSize(exp int8) uint64 {
	if exp <= absentExp {
		return 0
	}
	return 1 << uint(exp)
}

func htMask(exp int8) uint64 {
	if exp <= absentExp {
		return 0
	}
	return (1 << uint(exp)) - 1
}

// --------------------------------------------------------------------------
// Lookup
// --------------------------------------------------------------------------

// Find returns the entry holding key, or nil.
func (d *Dict) Find(key any) Entry {
	if d.Size() == 0 {
		return nil
	}

	h := d.typ.Hash(key)
	idx := h & htMask(d.sizeExp[0])

	if d.IsRehashing() {
		if int64(idx) >= d.rehashIdx && d.tables[0][idx] != nil {
			// The looked-up bucket is still unmigrated and about to be
			// touched anyway, so migrate exactly that one.
			d.bucketRehash(idx)
		} else {
			d.rehashStep()
		}
	}

	for table := 0; table <= 1; table++ {
		if table == 0 && int64(idx) < d.rehashIdx {
			continue // buckets below the cursor are guaranteed empty
		}
		idx = h & htMask(d.sizeExp[table])
		for he := d.tables[table][idx]; he != nil; he = entryNext(he) {
			if d.typ.Compare(key, Key(he)) {
				return he
			}
		}
		if !d.IsRehashing() {
			return nil
		}
	}
	return nil
}

// FetchValue returns the value stored under key, or nil if the key is
// absent.
func (d *Dict) FetchValue(key any) any {
	he := d.Find(key)
	if he == nil {
		return nil
	}
	return Value(he)
}

// --------------------------------------------------------------------------
// Insertion
// --------------------------------------------------------------------------

// Position identifies the bucket slot where a subsequent InsertAtPosition
// must link a new entry. It stays valid only until the next mutating
// operation on the dict.
type Position struct {
	table int
	index uint64
}

// FindPositionForInsert searches for key and, when absent, returns the
// position where it must be inserted. When the key exists, the returned
// position is nil and existing holds its entry. During rehashing the
// position always refers to the table receiving inserts.
func (d *Dict) FindPositionForInsert(key any) (pos *Position, existing Entry) {
	h := d.typ.Hash(key)
	idx := h & htMask(d.sizeExp[0])

	if d.IsRehashing() {
		if int64(idx) >= d.rehashIdx && d.tables[0][idx] != nil {
			d.bucketRehash(idx)
		} else {
			d.rehashStep()
		}
	}

	// The table may need to grow before the key goes in.
	d.expandIfAutoResizeAllowed()

	for table := 0; table <= 1; table++ {
		if table == 0 && int64(idx) < d.rehashIdx {
			continue
		}
		idx = h & htMask(d.sizeExp[table])
		for he := d.tables[table][idx]; he != nil; he = entryNext(he) {
			if d.typ.Compare(key, Key(he)) {
				return nil, he
			}
		}
		if !d.IsRehashing() {
			break
		}
	}

	htidx := 0
	if d.IsRehashing() {
		htidx = 1
	}
	idx = h & htMask(d.sizeExp[htidx])
	return &Position{table: htidx, index: idx}, nil
}

// InsertAtPosition links a new entry for key at a position previously
// returned by FindPositionForInsert and returns it. The physical entry
// variant is chosen per the type descriptor. New entries go to the head of
// the chain: recently added entries tend to be accessed more often.
func (d *Dict) InsertAtPosition(key any, pos *Position) Entry {
	htidx := 0
	if d.IsRehashing() {
		htidx = 1
	}
	if pos.table != htidx || pos.index > htMask(d.sizeExp[htidx]) {
		panic("dict: insert position does not belong to the receiving table")
	}
	bucket := &d.tables[htidx][pos.index]

	var entry Entry
	switch {
	case d.typ.NoValue:
		if d.typ.BareKeys && *bucket == nil {
			// The slot is empty, so the key itself can serve as the entry.
			assertStorableBareKey(key)
			entry = key
		} else {
			entry = newEntryNoValue(key, *bucket)
		}
	case d.typ.EmbeddedEntry:
		entry = newEntryEmbedded(key, *bucket, d.typ)
	default:
		entry = newEntryNormal(key, *bucket)
	}
	*bucket = entry
	d.used[htidx]++
	return entry
}

// AddRaw inserts key and returns the new entry with added=true, leaving the
// value slot for the caller to fill. If the key already exists, the
// existing entry is returned with added=false and nothing changes.
//
// Key ownership follows the type descriptor: with KeyDup set the key is
// cloned and the dict owns the clone, with EmbeddedEntry the key bytes are
// copied into the entry, otherwise the dict assumes ownership of key as
// passed.
func (d *Dict) AddRaw(key any) (entry Entry, added bool) {
	pos, existing := d.FindPositionForInsert(key)
	if pos == nil {
		return existing, false
	}
	if d.typ.KeyDup != nil {
		key = d.typ.KeyDup(key)
	}
	return d.InsertAtPosition(key, pos), true
}

// Add inserts a key/value pair. It returns false (and leaves the dict
// untouched) when the key already exists.
func (d *Dict) Add(key, val any) bool {
	entry, added := d.AddRaw(key)
	if !added {
		return false
	}
	if !d.typ.NoValue {
		SetValue(entry, val)
	}
	return true
}

// AddOrFind inserts key if absent and returns its entry either way.
func (d *Dict) AddOrFind(key any) Entry {
	entry, _ := d.AddRaw(key)
	return entry
}

// Replace stores val under key, overwriting any previous value. It returns
// true if the key was added from scratch, false if an existing value was
// replaced. The old value is destroyed only after the new one is in place,
// so replacing a value with itself is safe for reference-counted values.
func (d *Dict) Replace(key, val any) bool {
	entry, added := d.AddRaw(key)
	if added {
		SetValue(entry, val)
		return true
	}
	oldVal := Value(entry)
	SetValue(entry, val)
	if d.typ.ValDestructor != nil {
		d.typ.ValDestructor(oldVal)
	}
	return false
}

// SetKey overwrites the key of an entry, cloning it first when the type has
// KeyDup. The previous key is not destroyed; the caller keeps ownership of
// it. Panics for entry variants whose key can not be replaced in place.
func (d *Dict) SetKey(e Entry, key any) {
	if d.typ.KeyDup != nil {
		key = d.typ.KeyDup(key)
	}
	switch de := e.(type) {
	case *entryNormal:
		de.key = key
	case *entryNoValue:
		de.key = key
	default:
		panic(fmt.Sprintf("dict: entry variant %T does not support SetKey", e))
	}
}

// --------------------------------------------------------------------------
// Deletion
// --------------------------------------------------------------------------

// genericDelete searches for key, unlinks its entry from the chain and
// returns it. With free set the entry is destroyed before returning.
func (d *Dict) genericDelete(key any, free bool) Entry {
	if d.Size() == 0 {
		return nil
	}

	h := d.typ.Hash(key)
	idx := h & htMask(d.sizeExp[0])

	if d.IsRehashing() {
		if int64(idx) >= d.rehashIdx && d.tables[0][idx] != nil {
			d.bucketRehash(idx)
		} else {
			d.rehashStep()
		}
	}

	for table := 0; table <= 1; table++ {
		if table == 0 && int64(idx) < d.rehashIdx {
			continue
		}
		idx = h & htMask(d.sizeExp[table])
		var prev Entry
		for he := d.tables[table][idx]; he != nil; he = entryNext(he) {
			if d.typ.Compare(key, Key(he)) {
				if prev != nil {
					entrySetNext(prev, entryNext(he))
				} else {
					d.tables[table][idx] = entryNext(he)
				}
				if free {
					d.FreeUnlinkedEntry(he)
				}
				d.used[table]--
				d.shrinkIfAutoResizeAllowed()
				return he
			}
			prev = he
		}
		if !d.IsRehashing() {
			break
		}
	}
	return nil
}

// Delete removes key from the dict, destroying its entry. It returns false
// if the key was absent; that is not an error.
func (d *Dict) Delete(key any) bool {
	return d.genericDelete(key, true) != nil
}

// Unlink removes the entry for key from the table without destroying it and
// returns it, or nil if the key is absent. The caller must eventually pass
// the entry to FreeUnlinkedEntry. This allows using an entry's contents
// after removal without a second lookup.
func (d *Dict) Unlink(key any) Entry {
	return d.genericDelete(key, false)
}

// FreeUnlinkedEntry destroys an entry previously returned by Unlink,
// running the key and value destructors. Calling it with nil is a no-op.
func (d *Dict) FreeUnlinkedEntry(e Entry) {
	if e == nil {
		return
	}
	if d.typ.KeyDestructor != nil {
		d.typ.KeyDestructor(Key(e))
	}
	if d.typ.ValDestructor != nil && !d.typ.NoValue {
		d.typ.ValDestructor(Value(e))
	}
}

// TwoPhaseUnlinkFind locates the entry for key and returns it together with
// a mutable reference to the link that points at it and the index of its
// host table. Rehashing is paused until the matching TwoPhaseUnlinkFree
// call, so the reference stays valid while the caller inspects the entry
// and decides whether to delete it. Returns (nil, nil, 0) when the key is
// absent.
func (d *Dict) TwoPhaseUnlinkFind(key any) (Entry, *Entry, int) {
	if d.Size() == 0 {
		return nil, nil, 0
	}
	if d.IsRehashing() {
		d.rehashStep()
	}
	h := d.typ.Hash(key)

	for table := 0; table <= 1; table++ {
		idx := h & htMask(d.sizeExp[table])
		if table == 0 && int64(idx) < d.rehashIdx {
			continue
		}
		ref := &d.tables[table][idx]
		for ref != nil && *ref != nil {
			if d.typ.Compare(key, Key(*ref)) {
				d.PauseRehashing()
				return *ref, ref, table
			}
			ref = entryNextRef(*ref)
		}
		if !d.IsRehashing() {
			return nil, nil, 0
		}
	}
	return nil, nil, 0
}

// TwoPhaseUnlinkFree completes a TwoPhaseUnlinkFind: it unlinks and
// destroys the entry and resumes rehashing. Safe to call with a nil entry.
func (d *Dict) TwoPhaseUnlinkFree(e Entry, plink *Entry, tableIndex int) {
	if e == nil {
		return
	}
	d.used[tableIndex]--
	*plink = entryNext(e)
	d.FreeUnlinkedEntry(e)
	d.shrinkIfAutoResizeAllowed()
	d.ResumeRehashing()
}

// --------------------------------------------------------------------------
// Clearing
// --------------------------------------------------------------------------

// clearTable destroys every entry in one table and resets it. The callback,
// if non-nil, is invoked periodically so long-running clears of huge tables
// can report progress.
func (d *Dict) clearTable(htidx int, callback func(*Dict)) {
	for i := uint64(0); i < htSize(d.sizeExp[htidx]) && d.used[htidx] > 0; i++ {
		if callback != nil && i&(emptyCallbackInterval-1) == 0 {
			callback(d)
		}
		he := d.tables[htidx][i]
		for he != nil {
			next := entryNext(he)
			d.FreeUnlinkedEntry(he)
			d.used[htidx]--
			he = next
		}
	}
	d.resetTable(htidx)
}

// Empty removes all entries, keeping the dict usable. A monitoring type
// that saw a rehash start is sent a completion notification first.
func (d *Dict) Empty(callback func(*Dict)) {
	if d.IsRehashing() && d.typ.RehashingCompleted != nil {
		d.typ.RehashingCompleted(d)
	}
	d.clearTable(0, callback)
	d.clearTable(1, callback)
	d.rehashIdx = -1
	d.pauseRehash = 0
	d.pauseAutoResize = 0
}

// Release destroys all entries and drops the bucket arrays. The dict must
// not be used afterwards.
func (d *Dict) Release() {
	if d.IsRehashing() && d.typ.RehashingCompleted != nil {
		d.typ.RehashingCompleted(d)
	}
	d.clearTable(0, nil)
	d.clearTable(1, nil)
	d.rehashIdx = -1
}
