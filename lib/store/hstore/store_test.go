package hstore

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/iDict/lib/store"
	"github.com/VictoriaMetrics/metrics"
)

func newTestStore() store.IStore {
	return NewHashStore(nil)
}

func TestSetGet(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if err := s.Set(testKey, testValue1); err != nil {
		t.Fatalf("Unexpected error on Set: %v", err)
	}

	result, exists, err := s.Get(testKey)
	if err != nil {
		t.Fatalf("Unexpected error on Get: %v", err)
	}
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	if err := s.Set(testKey, testValue2); err != nil {
		t.Fatalf("Unexpected error on Set: %v", err)
	}
	result, exists, _ = s.Get(testKey)
	if !exists || !bytes.Equal(result, testValue2) {
		t.Errorf("Expected updated value %s, got %s", testValue2, result)
	}

	_, exists, _ = s.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// Get must return a copy, not a reference to the stored value.
	retrieved, _, _ := s.Get(testKey)
	retrieved[0] = 'X'
	original, _, _ := s.Get(testKey)
	if bytes.Equal(retrieved, original) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// Set must copy the input value as well.
	mutable := []byte("mutable")
	s.Set("copy-key", mutable)
	mutable[0] = 'X'
	stored, _, _ := s.Get("copy-key")
	if bytes.Equal(stored, mutable) {
		t.Errorf("Set should copy the input value")
	}
}

func TestSetIfUnset(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	inserted, err := s.SetIfUnset("key", []byte("v1"))
	if err != nil || !inserted {
		t.Fatalf("Expected first SetIfUnset to insert (err=%v)", err)
	}

	inserted, err = s.SetIfUnset("key", []byte("v2"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if inserted {
		t.Errorf("Expected second SetIfUnset to be a no-op")
	}

	result, _, _ := s.Get("key")
	if !bytes.Equal(result, []byte("v1")) {
		t.Errorf("SetIfUnset overwrote an existing value: got %s", result)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	s.Set("doomed", []byte("v"))

	deleted, err := s.Delete("doomed")
	if err != nil || !deleted {
		t.Fatalf("Expected Delete to remove an existing key (err=%v)", err)
	}
	if has, _ := s.Has("doomed"); has {
		t.Errorf("Key still exists after Delete")
	}

	// Deleting an unknown key is not an error.
	deleted, err = s.Delete("doomed")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if deleted {
		t.Errorf("Delete of an absent key reported deleted=true")
	}
}

func TestLenAndInfo(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	const numKeys = 500
	for i := 0; i < numKeys; i++ {
		s.Set(fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i)))
	}

	n, err := s.Len()
	if err != nil || n != numKeys {
		t.Errorf("Len = %d, want %d (err=%v)", n, numKeys, err)
	}

	info, err := s.GetStoreInfo()
	if err != nil {
		t.Fatalf("Unexpected error on GetStoreInfo: %v", err)
	}
	if info.Len != numKeys {
		t.Errorf("info.Len = %d, want %d", info.Len, numKeys)
	}
	if info.Buckets == 0 {
		t.Errorf("info.Buckets = 0")
	}
	if info.MemUsageBytes == 0 {
		t.Errorf("info.MemUsageBytes = 0")
	}
	if info.ValueSizeBytes == 0 {
		t.Errorf("info.ValueSizeBytes = 0")
	}
	if info.TableStats == nil || info.TableStats.Used != numKeys {
		t.Errorf("info.TableStats does not cover all entries: %+v", info.TableStats)
	}
}

func TestScan(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	const numKeys = 300
	want := make(map[string]string, numKeys)
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("key-%d", i)
		value := fmt.Sprintf("value-%d", i)
		s.Set(key, []byte(value))
		want[key] = value
	}

	seen := make(map[string]string)
	var cursor uint64
	for {
		next, err := s.Scan(cursor, func(key string, value []byte) {
			seen[key] = string(value)
		})
		if err != nil {
			t.Fatalf("Unexpected error on Scan: %v", err)
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	if len(seen) != numKeys {
		t.Errorf("Scan visited %d keys, want %d", len(seen), numKeys)
	}
	for key, value := range want {
		if seen[key] != value {
			t.Errorf("Scan value for %s = %q, want %q", key, seen[key], value)
		}
	}
}

func TestRandomKeys(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	if _, ok, _ := s.RandomKey(); ok {
		t.Errorf("RandomKey on empty store returned a key")
	}

	present := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%d", i)
		s.Set(key, []byte("v"))
		present[key] = true
	}

	for i := 0; i < 20; i++ {
		key, ok, err := s.RandomKey()
		if err != nil || !ok {
			t.Fatalf("RandomKey failed on a populated store (err=%v)", err)
		}
		if !present[key] {
			t.Errorf("RandomKey returned unknown key %q", key)
		}
	}

	keys, err := s.RandomKeys(10)
	if err != nil {
		t.Fatalf("Unexpected error on RandomKeys: %v", err)
	}
	if len(keys) == 0 || len(keys) > 10 {
		t.Errorf("RandomKeys returned %d keys, want 1..10", len(keys))
	}
	for _, key := range keys {
		if !present[key] {
			t.Errorf("RandomKeys returned unknown key %q", key)
		}
	}

	if _, err := s.RandomKeys(-1); err == nil {
		t.Errorf("RandomKeys(-1) did not return an error")
	}
}

func TestRehashMaintenance(t *testing.T) {
	set := metrics.NewSet()
	s := NewHashStore(&StoreOptions{Metrics: set})
	defer s.Close()

	for i := 0; i < 10_000; i++ {
		s.Set(fmt.Sprintf("key-%d", i), []byte("v"))
	}

	// Drain whatever migration is pending; afterwards the dict must be
	// out of the rehashing state.
	for {
		steps, err := s.RehashMaintenance(5 * time.Millisecond)
		if err != nil {
			t.Fatalf("Unexpected error on RehashMaintenance: %v", err)
		}
		if steps == 0 {
			break
		}
	}

	info, _ := s.GetStoreInfo()
	if info.Rehashing {
		t.Errorf("store still rehashing after maintenance drained all steps")
	}
}

func TestClose(t *testing.T) {
	s := newTestStore()
	s.Set("key", []byte("v"))

	if err := s.Close(); err != nil {
		t.Fatalf("Unexpected error on Close: %v", err)
	}
	// Closing twice is fine.
	if err := s.Close(); err != nil {
		t.Fatalf("Unexpected error on second Close: %v", err)
	}

	if err := s.Set("key", []byte("v")); err == nil {
		t.Errorf("Set on a closed store did not fail")
	}
	if _, _, err := s.Get("key"); err == nil {
		t.Errorf("Get on a closed store did not fail")
	}
	var storeErr *store.Error
	if _, err := s.Len(); err == nil {
		t.Errorf("Len on a closed store did not fail")
	} else if !errorAs(err, &storeErr) || storeErr.Code != store.RetCClosed {
		t.Errorf("Expected RetCClosed, got %v", err)
	}
}

// errorAs is a tiny local stand-in for errors.As to keep the test focused.
func errorAs(err error, target **store.Error) bool {
	e, ok := err.(*store.Error)
	if ok {
		*target = e
	}
	return ok
}

func TestConcurrentUsage(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	const (
		numWorkers    = 8
		opsPerWorker  = 2_000
		keySpread     = 200
		valuePayload  = "concurrent-value"
		lenProbeEvery = 100
	)

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(workerID int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("key-%d", (workerID*opsPerWorker+i)%keySpread)
				switch i % 5 {
				case 0, 1:
					if err := s.Set(key, []byte(valuePayload)); err != nil {
						t.Errorf("Set failed: %v", err)
					}
				case 2:
					if _, _, err := s.Get(key); err != nil {
						t.Errorf("Get failed: %v", err)
					}
				case 3:
					if _, err := s.Delete(key); err != nil {
						t.Errorf("Delete failed: %v", err)
					}
				case 4:
					if _, err := s.Has(key); err != nil {
						t.Errorf("Has failed: %v", err)
					}
				}
				if i%lenProbeEvery == 0 {
					if _, err := s.Len(); err != nil {
						t.Errorf("Len failed: %v", err)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	// Whatever remains must be internally consistent.
	n, _ := s.Len()
	counted := uint64(0)
	var cursor uint64
	for {
		next, err := s.Scan(cursor, func(string, []byte) { counted++ })
		if err != nil {
			t.Fatalf("Scan failed after concurrent usage: %v", err)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	if counted != n {
		t.Errorf("Scan counted %d keys, Len reports %d", counted, n)
	}
}
