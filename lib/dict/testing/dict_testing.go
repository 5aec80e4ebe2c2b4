package testing

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/ValentinKolb/iDict/lib/dict"
)

// DictFactory is a function that creates a fresh dict for one sub-test.
// The suite requires types that accept string keys; Compare must also
// accept the stored key form (a []byte for embedded types).
type DictFactory func() *dict.Dict

// RunDictTests runs a comprehensive test suite for a dict type
// configuration. Value-related tests are skipped for NoValue types.
func RunDictTests(t *testing.T, name string, factory DictFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Add&Find", func(t *testing.T) {
			testAddFind(t, factory())
		})

		t.Run("Replace", func(t *testing.T) {
			testReplace(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("AddOrFind", func(t *testing.T) {
			testAddOrFind(t, factory())
		})

		t.Run("Unlink&Free", func(t *testing.T) {
			testUnlinkFree(t, factory())
		})

		t.Run("Growth", func(t *testing.T) {
			testGrowth(t, factory())
		})

		t.Run("Shrink", func(t *testing.T) {
			testShrink(t, factory())
		})

		t.Run("ScanCompleteness", func(t *testing.T) {
			testScanCompleteness(t, factory())
		})

		t.Run("ScanAcrossResize", func(t *testing.T) {
			testScanAcrossResize(t, factory())
		})

		t.Run("Iterator", func(t *testing.T) {
			testIterator(t, factory())
		})

		t.Run("Fingerprint", func(t *testing.T) {
			testFingerprint(t, factory())
		})

		t.Run("RandomSampling", func(t *testing.T) {
			testRandomSampling(t, factory())
		})

		t.Run("Empty", func(t *testing.T) {
			testEmpty(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Standard type configurations
// --------------------------------------------------------------------------

// StringType returns a descriptor for string keys and arbitrary values,
// the configuration most consumers start from.
func StringType() *dict.Type {
	return &dict.Type{
		Hash: func(key any) uint64 {
			return dict.GenHashString(key.(string))
		},
		Compare: func(a, b any) bool {
			return a.(string) == b.(string)
		},
	}
}

// StringSetType returns a descriptor for a set of string keys: no values,
// and single keys stored directly in the bucket slots.
func StringSetType() *dict.Type {
	typ := StringType()
	typ.NoValue = true
	typ.BareKeys = true
	return typ
}

// EmbeddedStringType returns a descriptor storing string keys inline in
// the entry record, prefixed by a one byte length header.
func EmbeddedStringType() *dict.Type {
	return &dict.Type{
		Hash: func(key any) uint64 {
			return dict.GenHash(keyBytes(key))
		},
		Compare: func(a, b any) bool {
			return string(keyBytes(a)) == string(keyBytes(b))
		},
		EmbedKey: func(buf []byte, key any) (int, uint8) {
			k := keyBytes(key)
			if len(k) > 255 {
				panic("embedded key longer than 255 bytes")
			}
			if buf == nil {
				return 1 + len(k), 0
			}
			buf[0] = uint8(len(k))
			copy(buf[1:], k)
			return 1 + len(k), 1
		},
		EmbeddedEntry: true,
	}
}

// keyBytes normalizes the two key forms an embedded type sees: the string
// the caller passes in and the []byte slice of the inline buffer.
func keyBytes(key any) []byte {
	switch k := key.(type) {
	case string:
		return []byte(k)
	case []byte:
		return k
	default:
		panic(fmt.Sprintf("unsupported key type %T", key))
	}
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// requireValues skips the test for set-like configurations without values.
func requireValues(t testing.TB, d *dict.Dict) {
	if d.Type().NoValue {
		t.Skip()
	}
}

// entryKeyString returns the entry's key as a string, regardless of
// whether it is stored as a string or as embedded bytes.
func entryKeyString(e dict.Entry) string {
	return string(keyBytes(dict.Key(e)))
}

// addValue stores a key with a derived value (or just the key for NoValue
// configurations).
func addValue(t *testing.T, d *dict.Dict, key string) {
	var ok bool
	if d.Type().NoValue {
		ok = d.Add(key, nil)
	} else {
		ok = d.Add(key, "val-"+key)
	}
	if !ok {
		t.Fatalf("Add(%q) reported existing key on fresh insert", key)
	}
}

// uintKey derives a compact distinct key from an index.
func uintKey(i int) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(i))
	return string(b[:])
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testAddFind(t *testing.T, d *dict.Dict) {
	if got := d.Size(); got != 0 {
		t.Fatalf("fresh dict has size %d", got)
	}
	if d.Find("missing") != nil {
		t.Errorf("Find on empty dict returned an entry")
	}

	// The very first insert allocates the initial table (unless the dict
	// was created pre-sized).
	lazy := d.Buckets() == 0
	addValue(t, d, "first")
	if got := d.Size(); got != 1 {
		t.Errorf("size after first insert = %d, want 1", got)
	}
	if got := d.Buckets(); lazy && got != dict.InitialSize {
		t.Errorf("buckets after first insert = %d, want %d", got, dict.InitialSize)
	}
	if e := d.Find("first"); e == nil {
		t.Fatalf("Find did not return the inserted key")
	} else if entryKeyString(e) != "first" {
		t.Errorf("Find returned entry for key %q", entryKeyString(e))
	}

	const numKeys = 1000
	for i := 0; i < numKeys; i++ {
		addValue(t, d, fmt.Sprintf("key-%d", i))
	}
	if got := d.Size(); got != numKeys+1 {
		t.Errorf("size = %d, want %d", got, numKeys+1)
	}
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("key-%d", i)
		e := d.Find(key)
		if e == nil {
			t.Fatalf("key %q not found after insert", key)
		}
		if !d.Type().NoValue {
			if got := dict.Value(e).(string); got != "val-"+key {
				t.Errorf("value for %q = %q, want %q", key, got, "val-"+key)
			}
		}
	}
	if d.Find("never-inserted") != nil {
		t.Errorf("Find returned an entry for an absent key")
	}
}

func testReplace(t *testing.T, d *dict.Dict) {
	requireValues(t, d)

	if added := d.Replace("key", "v1"); !added {
		t.Errorf("Replace on fresh key reported an overwrite")
	}
	if got := d.FetchValue("key"); got != "v1" {
		t.Errorf("FetchValue = %v, want v1", got)
	}

	if added := d.Replace("key", "v2"); added {
		t.Errorf("Replace on existing key reported a fresh add")
	}
	if got := d.FetchValue("key"); got != "v2" {
		t.Errorf("FetchValue = %v, want v2", got)
	}

	// Replacing with the same value must be idempotent.
	d.Replace("key", "v2")
	if got := d.FetchValue("key"); got != "v2" {
		t.Errorf("FetchValue after idempotent replace = %v, want v2", got)
	}
	if got := d.Size(); got != 1 {
		t.Errorf("size = %d, want 1", got)
	}

	// A failing Add leaves the stored value untouched, making
	// Add(k,v1);Add(k,v2) equivalent to Replace(k,v1) here.
	if d.Add("key", "v3") {
		t.Errorf("Add succeeded for an existing key")
	}
	if got := d.FetchValue("key"); got != "v2" {
		t.Errorf("failed Add modified the value: got %v", got)
	}
}

func testDelete(t *testing.T, d *dict.Dict) {
	addValue(t, d, "doomed")
	addValue(t, d, "survivor")

	if !d.Delete("doomed") {
		t.Errorf("Delete of an existing key reported absence")
	}
	if d.Find("doomed") != nil {
		t.Errorf("deleted key still findable")
	}
	if d.Find("survivor") == nil {
		t.Errorf("Delete removed the wrong key")
	}
	if got := d.Size(); got != 1 {
		t.Errorf("size after delete = %d, want 1", got)
	}

	// Deleting an unknown key is a distinct non-error outcome.
	if d.Delete("doomed") {
		t.Errorf("second Delete of the same key reported success")
	}
}

func testAddOrFind(t *testing.T, d *dict.Dict) {
	e1 := d.AddOrFind("key")
	if e1 == nil {
		t.Fatalf("AddOrFind returned nil on fresh key")
	}
	e2 := d.AddOrFind("key")
	if e2 != e1 {
		t.Errorf("AddOrFind returned a different entry for an existing key")
	}
	if got := d.Size(); got != 1 {
		t.Errorf("size = %d, want 1", got)
	}
}

func testUnlinkFree(t *testing.T, d *dict.Dict) {
	addValue(t, d, "key")

	e := d.Unlink("key")
	if e == nil {
		t.Fatalf("Unlink did not return the entry")
	}
	// The entry stays usable between unlink and free.
	if got := entryKeyString(e); got != "key" {
		t.Errorf("unlinked entry has key %q", got)
	}
	if d.Find("key") != nil {
		t.Errorf("unlinked key still findable")
	}
	if got := d.Size(); got != 0 {
		t.Errorf("size after unlink = %d, want 0", got)
	}
	d.FreeUnlinkedEntry(e)

	if d.Unlink("key") != nil {
		t.Errorf("Unlink of an absent key returned an entry")
	}
}

func testGrowth(t *testing.T, d *dict.Dict) {
	addValue(t, d, uintKey(0))
	for d.Rehash(100) {
	}
	capacity := int(d.Buckets())

	// Crossing the current capacity starts a grow; enough follow-up
	// operations complete the migration and double the table.
	for i := 1; i <= capacity; i++ {
		addValue(t, d, uintKey(i))
	}
	for d.Rehash(100) {
	}
	if d.IsRehashing() {
		t.Errorf("rehash still in progress after draining")
	}
	if got := d.Buckets(); got != 2*uint64(capacity) {
		t.Errorf("buckets after growth = %d, want %d", got, 2*capacity)
	}
	for i := 0; i <= capacity; i++ {
		if d.Find(uintKey(i)) == nil {
			t.Errorf("key %d lost during growth", i)
		}
	}
}

func testShrink(t *testing.T, d *dict.Dict) {
	const numKeys = 256
	for i := 0; i < numKeys; i++ {
		addValue(t, d, uintKey(i))
	}
	for d.Rehash(100) {
	}
	grown := d.Buckets()

	// Removing 7/8 of the keys drops the load factor below the shrink
	// threshold.
	for i := 0; i < numKeys-numKeys/8; i++ {
		d.Delete(uintKey(i))
	}
	for d.Rehash(100) {
	}
	if got := d.Buckets(); got >= grown {
		t.Errorf("buckets after shrink = %d, not below %d", got, grown)
	}
	if got := d.Buckets(); got < dict.InitialSize {
		t.Errorf("table shrank below the initial size: %d", got)
	}
	for i := numKeys - numKeys/8; i < numKeys; i++ {
		if d.Find(uintKey(i)) == nil {
			t.Errorf("key %d lost during shrink", i)
		}
	}
}

func testScanCompleteness(t *testing.T, d *dict.Dict) {
	const numKeys = 500
	for i := 0; i < numKeys; i++ {
		addValue(t, d, fmt.Sprintf("key-%d", i))
	}

	// Without mutation, a full scan visits every key exactly once.
	seen := make(map[string]int)
	var cursor uint64
	for {
		cursor = d.Scan(cursor, func(e dict.Entry) {
			seen[entryKeyString(e)]++
		})
		if cursor == 0 {
			break
		}
	}
	if len(seen) != numKeys {
		t.Errorf("scan visited %d distinct keys, want %d", len(seen), numKeys)
	}
	for key, n := range seen {
		if n != 1 {
			t.Errorf("key %q visited %d times", key, n)
		}
	}
}

func testScanAcrossResize(t *testing.T, d *dict.Dict) {
	const numKeys = 128
	for i := 0; i < numKeys; i++ {
		addValue(t, d, fmt.Sprintf("key-%d", i))
	}
	for d.Rehash(1000) {
	}

	seen := make(map[string]bool)
	var cursor uint64
	steps := 0
	for {
		cursor = d.Scan(cursor, func(e dict.Entry) {
			seen[entryKeyString(e)] = true
		})
		if cursor == 0 {
			break
		}
		steps++
		if steps == 4 {
			// Grow the table mid-scan; keys present throughout must still
			// all be emitted at least once.
			d.Expand(uint64(8 * numKeys))
			for d.Rehash(1000) {
			}
		}
	}
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("key-%d", i)
		if !seen[key] {
			t.Errorf("key %q missed by scan across a resize", key)
		}
	}
}

func testIterator(t *testing.T, d *dict.Dict) {
	const numKeys = 300
	for i := 0; i < numKeys; i++ {
		addValue(t, d, fmt.Sprintf("key-%d", i))
	}

	// Unsafe iteration without mutation.
	seen := make(map[string]bool)
	it := d.NewIterator()
	for e := it.Next(); e != nil; e = it.Next() {
		seen[entryKeyString(e)] = true
	}
	it.Release()
	if len(seen) != numKeys {
		t.Errorf("iterator visited %d keys, want %d", len(seen), numKeys)
	}

	// Safe iteration may delete the entry just returned.
	it = d.NewSafeIterator()
	deleted := 0
	for e := it.Next(); e != nil; e = it.Next() {
		d.Delete(entryKeyString(e))
		deleted++
	}
	it.Release()
	if deleted != numKeys {
		t.Errorf("safe iterator visited %d keys while deleting, want %d", deleted, numKeys)
	}
	if got := d.Size(); got != 0 {
		t.Errorf("size after deleting during iteration = %d, want 0", got)
	}
}

func testFingerprint(t *testing.T, d *dict.Dict) {
	addValue(t, d, "key-a")
	fp := d.Fingerprint()

	// Pure reads keep the fingerprint stable.
	d.Find("key-a")
	d.Find("missing")
	if got := d.Fingerprint(); got != fp {
		t.Errorf("fingerprint changed across pure reads")
	}

	// Any structural change moves it.
	addValue(t, d, "key-b")
	if got := d.Fingerprint(); got == fp {
		t.Errorf("fingerprint unchanged after insert")
	}

	// Insert-then-delete restores size and fingerprint when no resize
	// intervened. Automatic resizing is paused so the delete can not shrink
	// a sparse (e.g. pre-sized) table in between.
	fp = d.Fingerprint()
	d.PauseAutoResize()
	addValue(t, d, "transient")
	d.Delete("transient")
	d.ResumeAutoResize()
	if got := d.Fingerprint(); got != fp {
		t.Errorf("fingerprint not restored after insert+delete")
	}
}

func testRandomSampling(t *testing.T, d *dict.Dict) {
	if d.RandomEntry() != nil {
		t.Errorf("RandomEntry on empty dict returned an entry")
	}
	if got := d.SomeEntries(10); len(got) != 0 {
		t.Errorf("SomeEntries on empty dict returned %d entries", len(got))
	}

	const numKeys = 100
	present := make(map[string]bool)
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("key-%d", i)
		addValue(t, d, key)
		present[key] = true
	}

	for i := 0; i < 50; i++ {
		e := d.RandomEntry()
		if e == nil || !present[entryKeyString(e)] {
			t.Fatalf("RandomEntry returned an invalid entry")
		}
		e = d.FairRandomEntry()
		if e == nil || !present[entryKeyString(e)] {
			t.Fatalf("FairRandomEntry returned an invalid entry")
		}
	}

	samples := d.SomeEntries(20)
	if len(samples) == 0 || len(samples) > 20 {
		t.Errorf("SomeEntries returned %d entries, want 1..20", len(samples))
	}
	for _, e := range samples {
		if !present[entryKeyString(e)] {
			t.Errorf("SomeEntries returned an absent key")
		}
	}

	// Requesting more than the dict holds caps at the size.
	small := d.SomeEntries(10 * numKeys)
	if len(small) > numKeys {
		t.Errorf("SomeEntries returned %d entries from a dict of %d", len(small), numKeys)
	}
}

func testEmpty(t *testing.T, d *dict.Dict) {
	for i := 0; i < 100; i++ {
		addValue(t, d, fmt.Sprintf("key-%d", i))
	}

	calls := 0
	d.Empty(func(*dict.Dict) { calls++ })
	if got := d.Size(); got != 0 {
		t.Errorf("size after Empty = %d, want 0", got)
	}
	if calls == 0 {
		t.Errorf("Empty never invoked the progress callback")
	}

	// The dict stays usable.
	addValue(t, d, "again")
	if d.Find("again") == nil {
		t.Errorf("dict unusable after Empty")
	}
}
