package dict

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fillRehashing returns a dict with numKeys entries and a grow-rehash in
// progress, with all automatic stepping suppressed so tests control the
// migration themselves.
func fillRehashing(t *testing.T, typ *Type, numKeys int) *Dict {
	t.Helper()
	d := New(typ)
	d.PauseAutoResize()
	d.Expand(uint64(numKeys))
	for i := 0; i < numKeys; i++ {
		if typ.NoValue {
			require.True(t, d.Add(fmt.Sprintf("k-%d", i), nil))
		} else {
			require.True(t, d.Add(fmt.Sprintf("k-%d", i), i))
		}
	}
	d.ResumeAutoResize()
	require.True(t, d.Expand(uint64(4*numKeys)))
	require.True(t, d.IsRehashing())
	return d
}

func TestRehashCursorInvariant(t *testing.T) {
	d := fillRehashing(t, stringType(), 256)

	for d.IsRehashing() {
		d.Rehash(2)
		// Every bucket below the cursor is empty at all times.
		for i := int64(0); d.IsRehashing() && i < d.rehashIdx; i++ {
			require.Nil(t, d.tables[0][i], "bucket %d below cursor not drained", i)
		}
		require.EqualValues(t, 256, d.Size())
	}

	require.Equal(t, int64(-1), d.rehashIdx)
	require.Nil(t, d.tables[1])
	require.EqualValues(t, -1, d.sizeExp[1])
	for i := 0; i < 256; i++ {
		require.NotNil(t, d.Find(fmt.Sprintf("k-%d", i)))
	}
}

func TestRehashEmptyBucketBudget(t *testing.T) {
	// A sparse source table must not be scanned end-to-end in one step:
	// after 10*n empty buckets the call yields even without migrating.
	d := New(stringType())
	d.PauseAutoResize()
	d.Expand(1 << 12)
	d.Add("lonely", 1)
	d.ResumeAutoResize()

	// Force a shrink rehash over the almost-empty table.
	require.True(t, d.Shrink(1))
	require.True(t, d.IsRehashing())

	before := d.rehashIdx
	stillGoing := d.Rehash(1)
	advanced := d.rehashIdx - before
	if stillGoing {
		require.LessOrEqual(t, advanced, int64(10))
	}
	for d.Rehash(100) {
	}
	require.NotNil(t, d.Find("lonely"))
}

func TestPauseRehashingBlocksSteps(t *testing.T) {
	d := fillRehashing(t, stringType(), 128)

	d.PauseRehashing()
	idx := d.rehashIdx
	used0 := d.used[0]
	for i := 0; i < 64; i++ {
		require.NotNil(t, d.Find(fmt.Sprintf("k-%d", i)))
	}
	require.Equal(t, idx, d.rehashIdx, "lookup migrated buckets while paused")
	require.Equal(t, used0, d.used[0])

	d.ResumeRehashing()
	d.Find("k-0")
	require.NotEqual(t, used0, d.used[0], "no migration after resume")
}

func TestResizeStateGating(t *testing.T) {
	defer SetResizeState(ResizeEnabled)

	d := fillRehashing(t, stringType(), 128)

	SetResizeState(ResizeForbid)
	require.False(t, d.Rehash(100))
	require.EqualValues(t, 128, d.Size())

	// The expansion was 4x, which meets the force ratio, so ResizeAvoid
	// lets it proceed.
	SetResizeState(ResizeAvoid)
	require.True(t, d.Rehash(1) || !d.IsRehashing())

	SetResizeState(ResizeEnabled)
	for d.Rehash(100) {
	}
	require.False(t, d.IsRehashing())
}

func TestResizeAvoidBlocksSmallGrowth(t *testing.T) {
	defer SetResizeState(ResizeEnabled)

	d := New(stringType())
	d.PauseAutoResize()
	d.Expand(128)
	for i := 0; i < 64; i++ {
		d.Add(fmt.Sprintf("k-%d", i), i)
	}
	d.ResumeAutoResize()
	require.True(t, d.Expand(256)) // 2x growth: below the force ratio
	require.True(t, d.IsRehashing())

	SetResizeState(ResizeAvoid)
	require.False(t, d.Rehash(100), "2x growth migrated under ResizeAvoid")
	require.True(t, d.IsRehashing())
}

func TestExpandThresholdsUnderAvoid(t *testing.T) {
	defer SetResizeState(ResizeEnabled)
	SetResizeState(ResizeAvoid)

	d := New(stringType())
	// Under ResizeAvoid the table tolerates a load factor up to the force
	// ratio before growing.
	for i := 0; i < InitialSize*forceResizeRatio; i++ {
		d.Add(fmt.Sprintf("k-%d", i), i)
	}
	require.EqualValues(t, InitialSize, d.Buckets())

	d.Add("tipping-point", 1)
	require.Greater(t, d.Buckets(), uint64(InitialSize))
}

func TestResizeAllowedVeto(t *testing.T) {
	allowed := false
	typ := stringType()
	typ.ResizeAllowed = func(bytes uint64, fill float64) bool { return allowed }
	d := New(typ)

	// With the gate closed the table stays at the initial size no matter
	// the load factor; operations stay correct, chains just grow.
	const numKeys = InitialSize * 10
	for i := 0; i < numKeys; i++ {
		require.True(t, d.Add(fmt.Sprintf("k-%d", i), i))
	}
	require.EqualValues(t, InitialSize, d.Buckets())
	for i := 0; i < numKeys; i++ {
		require.NotNil(t, d.Find(fmt.Sprintf("k-%d", i)))
	}

	// Opening the gate lets the next insert trigger the expand.
	allowed = true
	d.Add("one-more", 1)
	require.Greater(t, d.Buckets(), uint64(InitialSize))
}

func TestRehashNotifications(t *testing.T) {
	var started, completed int
	typ := stringType()
	typ.RehashingStarted = func(*Dict) { started++ }
	typ.RehashingCompleted = func(*Dict) { completed++ }

	d := New(typ)
	// The lazy first allocation fires both notifications at once.
	d.Add("k", 1)
	require.Equal(t, 1, started)
	require.Equal(t, 1, completed)

	for i := 0; i < 100; i++ {
		d.Add(fmt.Sprintf("k-%d", i), i)
	}
	for d.Rehash(100) {
	}
	require.Equal(t, started, completed)
	require.Greater(t, started, 1)
}

func TestNoIncrementalRehash(t *testing.T) {
	typ := stringType()
	typ.NoIncrementalRehash = true
	d := New(typ)
	for i := 0; i < 1000; i++ {
		d.Add(fmt.Sprintf("k-%d", i), i)
	}
	// Each resize migrated in full immediately; the dict is never left
	// with two tables.
	require.False(t, d.IsRehashing())
	require.EqualValues(t, 1000, d.used[0])
}

func TestRehashDuration(t *testing.T) {
	d := fillRehashing(t, stringType(), 4096)

	steps := d.RehashDuration(50 * time.Millisecond)
	require.Greater(t, steps, 0)
	for d.Rehash(1000) {
	}

	require.Zero(t, New(stringType()).RehashDuration(time.Millisecond))

	d.PauseRehashing()
	require.Zero(t, d.RehashDuration(time.Millisecond))
	d.ResumeRehashing()
}

func TestBucketRehashCollapsesToBareKey(t *testing.T) {
	d := fillRehashing(t, setType(), 256)

	for d.Rehash(100) {
	}
	// After migrating into the 4x larger table most buckets hold a single
	// key; those must have been collapsed back to bare keys, reclaiming
	// the entry records.
	bare := 0
	for _, slot := range d.tables[0] {
		if slot != nil && entryIsBareKey(slot) {
			bare++
		}
	}
	require.Greater(t, bare, 0)
	for i := 0; i < 256; i++ {
		require.NotNil(t, d.Find(fmt.Sprintf("k-%d", i)))
	}
}

func TestShrinkReusesBucketIndex(t *testing.T) {
	// Shrink migration masks the source index instead of re-hashing; the
	// result must still respect the bucket index invariant.
	d := New(stringType())
	d.PauseAutoResize()
	d.Expand(1 << 10)
	for i := 0; i < 64; i++ {
		d.Add(fmt.Sprintf("k-%d", i), i)
	}
	d.ResumeAutoResize()
	require.True(t, d.Shrink(64))
	for d.Rehash(100) {
	}

	mask := htMask(d.sizeExp[0])
	for idx, he := range d.tables[0] {
		for ; he != nil; he = entryNext(he) {
			require.EqualValues(t, uint64(idx), d.typ.Hash(Key(he))&mask)
		}
	}
}

func TestRehashingInfo(t *testing.T) {
	d := fillRehashing(t, stringType(), 64)
	from, to := d.RehashingInfo()
	require.EqualValues(t, htSize(d.sizeExp[0]), from)
	require.EqualValues(t, htSize(d.sizeExp[1]), to)
	require.Greater(t, to, from)

	for d.Rehash(100) {
	}
	require.Panics(t, func() { d.RehashingInfo() })
}

func TestTryExpandOverflow(t *testing.T) {
	d := New(stringType())
	require.ErrorIs(t, d.TryExpand(1<<62), ErrResizeTooLarge)
	require.EqualValues(t, 0, d.Buckets()) // dict unchanged
	require.NoError(t, d.TryExpand(64))
	require.EqualValues(t, 64, d.Buckets())
	// A no-op expand is not an error.
	require.NoError(t, d.TryExpand(32))
}
