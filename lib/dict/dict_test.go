package dict

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// stringType returns the plain string-keyed descriptor used by most tests.
func stringType() *Type {
	return &Type{
		Hash:    func(key any) uint64 { return GenHashString(key.(string)) },
		Compare: func(a, b any) bool { return a.(string) == b.(string) },
	}
}

func setType() *Type {
	typ := stringType()
	typ.NoValue = true
	typ.BareKeys = true
	return typ
}

func embeddedType() *Type {
	return &Type{
		Hash: func(key any) uint64 { return GenHash(toBytes(key)) },
		Compare: func(a, b any) bool {
			return string(toBytes(a)) == string(toBytes(b))
		},
		EmbedKey: func(buf []byte, key any) (int, uint8) {
			k := toBytes(key)
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

func toBytes(key any) []byte {
	switch k := key.(type) {
	case string:
		return []byte(k)
	case []byte:
		return k
	}
	panic("unsupported key type")
}

// sameBucketKeys returns n string keys hashing to the same bucket index
// under the given mask.
func sameBucketKeys(t testing.TB, typ *Type, mask uint64, n int) []string {
	t.Helper()
	want := typ.Hash("anchor") & mask
	keys := []string{"anchor"}
	for i := 0; len(keys) < n; i++ {
		k := fmt.Sprintf("probe-%d", i)
		if typ.Hash(k)&mask == want {
			keys = append(keys, k)
		}
	}
	return keys
}

func TestTypeValidation(t *testing.T) {
	require.Panics(t, func() { New(&Type{}) })
	require.Panics(t, func() {
		New(&Type{Hash: stringType().Hash, Compare: stringType().Compare, EmbeddedEntry: true})
	})
	require.Panics(t, func() {
		typ := embeddedType()
		typ.KeyDup = func(k any) any { return k }
		New(typ)
	})
	require.Panics(t, func() {
		typ := stringType()
		typ.BareKeys = true
		New(typ)
	})
	require.Panics(t, func() {
		typ := stringType()
		typ.EmbedKey = embeddedType().EmbedKey
		New(typ)
	})
}

func TestLazyFirstAllocation(t *testing.T) {
	d := New(stringType())
	require.EqualValues(t, 0, d.Buckets())

	require.True(t, d.Add("k", "v"))
	require.EqualValues(t, InitialSize, d.Buckets())
	require.EqualValues(t, 1, d.Size())
}

func TestUsedCountersMatchSize(t *testing.T) {
	d := New(stringType())
	for i := 0; i < 500; i++ {
		require.True(t, d.Add(fmt.Sprintf("k-%d", i), i))
	}
	for i := 0; i < 250; i++ {
		require.True(t, d.Delete(fmt.Sprintf("k-%d", i)))
	}
	// The invariant size == used[0]+used[1] holds at every quiescent
	// point, also mid-rehash.
	require.EqualValues(t, 250, d.used[0]+d.used[1])
	require.EqualValues(t, 250, d.Size())
}

func TestBucketIndexInvariant(t *testing.T) {
	d := New(stringType())
	for i := 0; i < 300; i++ {
		d.Add(fmt.Sprintf("k-%d", i), i)
	}
	for htidx := 0; htidx <= 1; htidx++ {
		mask := htMask(d.sizeExp[htidx])
		for idx, he := range d.tables[htidx] {
			for ; he != nil; he = entryNext(he) {
				require.EqualValues(t, uint64(idx), d.typ.Hash(Key(he))&mask,
					"entry hosted in a bucket that does not match its hash")
			}
		}
	}
}

func TestChainOrderIsInsertionMostRecentFirst(t *testing.T) {
	typ := stringType()
	d := New(typ)
	d.PauseAutoResize() // keep a single small table so keys collide
	defer d.ResumeAutoResize()
	d.Expand(InitialSize)

	keys := sameBucketKeys(t, typ, htMask(d.sizeExp[0]), 3)
	for _, k := range keys {
		d.Add(k, k)
	}
	idx := typ.Hash(keys[0]) & htMask(d.sizeExp[0])
	var got []string
	for he := d.tables[0][idx]; he != nil; he = entryNext(he) {
		got = append(got, Key(he).(string))
	}
	require.Equal(t, []string{keys[2], keys[1], keys[0]}, got)
}

func TestBareKeyVariants(t *testing.T) {
	typ := setType()
	d := New(typ)
	d.PauseAutoResize()
	defer d.ResumeAutoResize()
	d.Expand(InitialSize)

	keys := sameBucketKeys(t, typ, htMask(d.sizeExp[0]), 2)

	// The first key of a bucket is stored directly in the slot.
	require.True(t, d.Add(keys[0], nil))
	idx := typ.Hash(keys[0]) & htMask(d.sizeExp[0])
	slot := d.tables[0][idx]
	require.True(t, entryIsBareKey(slot))
	require.Equal(t, keys[0], slot.(string))
	require.EqualValues(t, 0, EntryMemUsage(slot))

	// A colliding second key forces an allocated no-value entry whose
	// next link carries the previously bare first key.
	require.True(t, d.Add(keys[1], nil))
	slot = d.tables[0][idx]
	nv, ok := slot.(*entryNoValue)
	require.True(t, ok)
	require.Equal(t, keys[1], nv.key)
	require.Equal(t, keys[0], nv.next)
	require.Nil(t, entryNext(nv.next))

	require.NotNil(t, d.Find(keys[0]))
	require.NotNil(t, d.Find(keys[1]))
}

func TestEmbeddedEntryStoresKeyInline(t *testing.T) {
	d := New(embeddedType())
	require.True(t, d.Add("inline-key", "value"))

	e := d.Find("inline-key")
	require.NotNil(t, e)
	emb, ok := e.(*entryEmbedded)
	require.True(t, ok)
	require.EqualValues(t, 1, emb.keyHeader)
	require.Equal(t, []byte("inline-key"), Key(e))
	require.Equal(t, "value", Value(e))
	require.Equal(t, embeddedEntryBytes+uint64(cap(emb.keyBuf)), EntryMemUsage(e))
}

func TestValueAccessors(t *testing.T) {
	d := New(stringType())

	e, added := d.AddRaw("scalar")
	require.True(t, added)

	SetSignedValue(e, -7)
	require.EqualValues(t, -7, SignedValue(e))
	require.EqualValues(t, -4, IncrSignedValue(e, 3))
	require.EqualValues(t, -4, SignedValue(e))

	SetUnsignedValue(e, 10)
	require.EqualValues(t, 12, IncrUnsignedValue(e, 2))

	SetFloatValue(e, 1.5)
	require.InDelta(t, 3.0, IncrFloatValue(e, 1.5), 1e-9)

	// Scalar accessors reject a mismatched stored kind.
	require.Panics(t, func() { SignedValue(e) })

	SetValue(e, "ptr")
	require.Equal(t, "ptr", Value(e))
}

func TestValueAccessPanicsForValuelessVariants(t *testing.T) {
	d := New(setType())
	d.Add("bare", nil)
	e := d.Find("bare")
	require.NotNil(t, e)
	require.Panics(t, func() { Value(e) })
	require.Panics(t, func() { SetValue(e, 1) })
}

func TestKeyOwnership(t *testing.T) {
	var destroyedKeys, destroyedVals []any
	typ := stringType()
	typ.KeyDup = func(k any) any { return "dup:" + k.(string) }
	typ.KeyDestructor = func(k any) { destroyedKeys = append(destroyedKeys, k) }
	typ.ValDestructor = func(v any) { destroyedVals = append(destroyedVals, v) }
	// Compare must tolerate the cloned form on the stored side.
	typ.Compare = func(a, b any) bool {
		trim := func(s string) string {
			if len(s) > 4 && s[:4] == "dup:" {
				return s[4:]
			}
			return s
		}
		return trim(a.(string)) == trim(b.(string))
	}

	d := New(typ)
	require.True(t, d.Add("k", "v1"))
	e := d.Find("k")
	require.Equal(t, "dup:k", Key(e))

	// Replace destroys the old value after storing the new one.
	require.False(t, d.Replace("k", "v2"))
	require.Equal(t, []any{"v1"}, destroyedVals)

	require.True(t, d.Delete("k"))
	require.Equal(t, []any{"dup:k"}, destroyedKeys)
	require.Equal(t, []any{"v1", "v2"}, destroyedVals)
}

func TestSetKey(t *testing.T) {
	d := New(stringType())
	d.Add("old", "v")
	e := d.Find("old")
	d.SetKey(e, "old") // same key content; entry stays findable
	require.NotNil(t, d.Find("old"))

	emb := New(embeddedType())
	emb.Add("k", "v")
	require.Panics(t, func() { emb.SetKey(emb.Find("k"), "other") })
}

func TestFindPositionForInsert(t *testing.T) {
	d := New(stringType())

	pos, existing := d.FindPositionForInsert("k")
	require.Nil(t, existing)
	require.NotNil(t, pos)
	e := d.InsertAtPosition("k", pos)
	SetValue(e, "v")
	require.Equal(t, "v", d.FetchValue("k"))

	pos, existing = d.FindPositionForInsert("k")
	require.Nil(t, pos)
	require.NotNil(t, existing)

	// A stale position aimed at the wrong table is a caller bug.
	pos, _ = d.FindPositionForInsert("k2")
	d.Expand(1024) // starts a rehash; inserts now go to the new table
	require.True(t, d.IsRehashing())
	require.Panics(t, func() { d.InsertAtPosition("k2", pos) })
}

func TestTwoPhaseUnlink(t *testing.T) {
	d := New(stringType())
	for i := 0; i < 100; i++ {
		d.Add(fmt.Sprintf("k-%d", i), i)
	}

	e, plink, table := d.TwoPhaseUnlinkFind("k-42")
	require.NotNil(t, e)
	require.NotNil(t, plink)
	require.Equal(t, 42, Value(e))
	// Rehashing is paused between find and free.
	require.Equal(t, 1, d.pauseRehash)

	d.TwoPhaseUnlinkFree(e, plink, table)
	require.Equal(t, 0, d.pauseRehash)
	require.Nil(t, d.Find("k-42"))
	require.EqualValues(t, 99, d.Size())

	e, plink, _ = d.TwoPhaseUnlinkFind("missing")
	require.Nil(t, e)
	require.Nil(t, plink)
	require.Equal(t, 0, d.pauseRehash)

	// Unlink then free is observably the same as delete.
	before := d.Size()
	he := d.Unlink("k-43")
	require.NotNil(t, he)
	d.FreeUnlinkedEntry(he)
	require.Equal(t, before-1, d.Size())
}

func TestMetadataRegion(t *testing.T) {
	typ := stringType()
	typ.MetadataBytes = func(*Dict) int { return 32 }
	d := New(typ)
	require.Len(t, d.Metadata(), 32)
	for _, b := range d.Metadata() {
		require.Zero(t, b)
	}
	d.Metadata()[0] = 0xAB
	require.EqualValues(t, 0xAB, d.Metadata()[0])

	require.Nil(t, New(stringType()).Metadata())
}

func TestMemUsage(t *testing.T) {
	d := New(stringType())
	require.EqualValues(t, 0, d.MemUsage())
	for i := 0; i < 10; i++ {
		d.Add(fmt.Sprintf("k-%d", i), i)
	}
	require.Equal(t, d.Size()*normalEntryBytes+d.Buckets()*bucketSlotBytes, d.MemUsage())
}

func TestStatsMessage(t *testing.T) {
	d := New(stringType())
	main, rehashing := d.Stats(true)
	require.Nil(t, rehashing)
	require.Contains(t, main.Message(true), "No stats available")

	for i := 0; i < 64; i++ {
		d.Add(fmt.Sprintf("k-%d", i), i)
	}
	for d.Rehash(100) {
	}
	main, _ = d.Stats(true)
	require.EqualValues(t, 64, main.Used)
	require.EqualValues(t, main.TotalChainLen, main.Used)
	msg := d.StatsMessage(true)
	require.Contains(t, msg, "main hash table")
	require.Contains(t, msg, "Chain length distribution")
}

func TestHashSeed(t *testing.T) {
	orig := HashSeed()
	defer SetHashSeed(orig)

	seed := make([]byte, 16)
	for i := range seed {
		seed[i] = byte(i)
	}
	SetHashSeed(seed)
	require.Equal(t, seed, HashSeed())
	h1 := GenHash([]byte("key"))

	seed[0] ^= 0xFF
	SetHashSeed(seed)
	require.NotEqual(t, h1, GenHash([]byte("key")))

	require.Panics(t, func() { SetHashSeed([]byte("short")) })

	require.Equal(t, GenCaseHash([]byte("MiXeD-Key")), GenCaseHash([]byte("mixed-key")))
	require.Equal(t, GenHashString("abc"), GenHash([]byte("abc")))
}

func TestEmptyResetsPauses(t *testing.T) {
	d := New(stringType())
	for i := 0; i < 100; i++ {
		d.Add(fmt.Sprintf("k-%d", i), i)
	}
	d.PauseRehashing()
	d.PauseAutoResize()
	d.Empty(nil)
	require.EqualValues(t, 0, d.Size())
	require.Equal(t, 0, d.pauseRehash)
	require.Equal(t, 0, d.pauseAutoResize)
	require.False(t, d.IsRehashing())
}

func TestRelease(t *testing.T) {
	var destroyed int
	typ := stringType()
	typ.ValDestructor = func(any) { destroyed++ }
	d := New(typ)
	for i := 0; i < 50; i++ {
		d.Add(fmt.Sprintf("k-%d", i), i)
	}
	d.Release()
	require.Equal(t, 50, destroyed)
	require.EqualValues(t, 0, d.Buckets())
}
