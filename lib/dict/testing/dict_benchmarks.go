package testing

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/iDict/lib/dict"
)

// RunDictBenchmarks runs all benchmarks for a dict type configuration.
func RunDictBenchmarks(b *testing.B, name string, factory DictFactory) {
	b.Run(name+"/Add", func(b *testing.B) {
		benchmarkAdd(b, factory())
	})

	b.Run(name+"/Find", func(b *testing.B) {
		benchmarkFind(b, factory())
	})

	b.Run(name+"/Find(miss)", func(b *testing.B) {
		benchmarkFindMiss(b, factory())
	})

	b.Run(name+"/Replace", func(b *testing.B) {
		benchmarkReplace(b, factory())
	})

	b.Run(name+"/Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run(name+"/Scan", func(b *testing.B) {
		benchmarkScan(b, factory())
	})

	b.Run(name+"/RandomEntry", func(b *testing.B) {
		benchmarkRandomEntry(b, factory())
	})

	b.Run(name+"/MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// benchKeys pre-computes keys so key formatting stays out of the timings.
func benchKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("bench-key-%d", i)
	}
	return keys
}

func benchAdd(d *dict.Dict, key string, val any) {
	if d.Type().NoValue {
		d.Add(key, nil)
	} else {
		d.Add(key, val)
	}
}

func benchmarkAdd(b *testing.B, d *dict.Dict) {
	keys := benchKeys(b.N)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		benchAdd(d, keys[i], i)
	}
}

func benchmarkFind(b *testing.B, d *dict.Dict) {
	const numKeys = 1 << 16
	keys := benchKeys(numKeys)
	for i, key := range keys {
		benchAdd(d, key, i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if d.Find(keys[i%numKeys]) == nil {
			b.Fatalf("key %d missing", i%numKeys)
		}
	}
}

func benchmarkFindMiss(b *testing.B, d *dict.Dict) {
	keys := benchKeys(1 << 12)
	for i, key := range keys {
		benchAdd(d, key, i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if d.Find(fmt.Sprintf("absent-%d", i)) != nil {
			b.Fatal("found a key that was never added")
		}
	}
}

func benchmarkReplace(b *testing.B, d *dict.Dict) {
	if d.Type().NoValue {
		b.Skip()
	}
	const numKeys = 1 << 12
	keys := benchKeys(numKeys)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Replace(keys[i%numKeys], i)
	}
}

func benchmarkDelete(b *testing.B, d *dict.Dict) {
	keys := benchKeys(b.N)
	for i, key := range keys {
		benchAdd(d, key, i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Delete(keys[i])
	}
}

func benchmarkScan(b *testing.B, d *dict.Dict) {
	const numKeys = 1 << 14
	keys := benchKeys(numKeys)
	for i, key := range keys {
		benchAdd(d, key, i)
	}

	b.ResetTimer()
	var cursor uint64
	emitted := 0
	for i := 0; i < b.N; i++ {
		cursor = d.Scan(cursor, func(dict.Entry) { emitted++ })
	}
	_ = emitted
}

func benchmarkRandomEntry(b *testing.B, d *dict.Dict) {
	const numKeys = 1 << 14
	keys := benchKeys(numKeys)
	for i, key := range keys {
		benchAdd(d, key, i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if d.RandomEntry() == nil {
			b.Fatal("random entry from a populated dict was nil")
		}
	}
}

func benchmarkMixedUsage(b *testing.B, d *dict.Dict) {
	const numKeys = 1 << 12
	keys := benchKeys(numKeys)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := keys[i%numKeys]
		switch i % 4 {
		case 0:
			benchAdd(d, key, i)
		case 1:
			d.Find(key)
		case 2:
			d.Delete(key)
		case 3:
			d.Find(key)
		}
	}
}
