package dict

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Memory Usage
// --------------------------------------------------------------------------

// MemUsage estimates the heap bytes used by the dict itself: entry records
// and bucket slots, excluding key and value allocations.
func (d *Dict) MemUsage() uint64 {
	return d.Size()*normalEntryBytes + d.Buckets()*bucketSlotBytes
}

// --------------------------------------------------------------------------
// Table Statistics
// --------------------------------------------------------------------------

// statsVectLen caps the chain length histogram; longer chains land in the
// last slot.
const statsVectLen = 50

// TableStats describes one of the dict's two bucket arrays.
type TableStats struct {
	TableIndex      int      // 0 = main table, 1 = rehashing target
	Size            uint64   // bucket slots
	Used            uint64   // entries
	NonEmptyBuckets uint64   // buckets holding at least one entry
	MaxChainLen     uint64   // longest collision chain
	TotalChainLen   uint64   // sum of all chain lengths
	ChainLengths    []uint64 // histogram: index = chain length, last slot = longer
}

// TableStatsAt computes statistics for one table. With full unset only the
// cheap size and used counters are filled; the chain histogram requires a
// full table walk.
func (d *Dict) TableStatsAt(htidx int, full bool) *TableStats {
	stats := &TableStats{
		TableIndex:   htidx,
		Size:         htSize(d.sizeExp[htidx]),
		Used:         d.used[htidx],
		ChainLengths: make([]uint64, statsVectLen),
	}
	if !full {
		return stats
	}
	for i := uint64(0); i < htSize(d.sizeExp[htidx]); i++ {
		if d.tables[htidx][i] == nil {
			stats.ChainLengths[0]++
			continue
		}
		stats.NonEmptyBuckets++
		var chainLen uint64
		for he := d.tables[htidx][i]; he != nil; he = entryNext(he) {
			chainLen++
		}
		slot := chainLen
		if slot >= statsVectLen {
			slot = statsVectLen - 1
		}
		stats.ChainLengths[slot]++
		if chainLen > stats.MaxChainLen {
			stats.MaxChainLen = chainLen
		}
		stats.TotalChainLen += chainLen
	}
	return stats
}

// Combine folds another table's statistics into s, e.g. to aggregate the
// two tables of a rehashing dict.
func (s *TableStats) Combine(from *TableStats) {
	s.NonEmptyBuckets += from.NonEmptyBuckets
	if from.MaxChainLen > s.MaxChainLen {
		s.MaxChainLen = from.MaxChainLen
	}
	s.TotalChainLen += from.TotalChainLen
	s.Size += from.Size
	s.Used += from.Used
	for i := range s.ChainLengths {
		s.ChainLengths[i] += from.ChainLengths[i]
	}
}

// Message renders the statistics the way an operator wants to read them,
// including the chain length distribution when full stats were collected.
func (s *TableStats) Message(full bool) string {
	role := "main hash table"
	if s.TableIndex == 1 {
		role = "rehashing target"
	}
	if s.Used == 0 {
		return fmt.Sprintf("Hash table %d stats (%s):\nNo stats available for empty dictionaries\n", s.TableIndex, role)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Hash table %d stats (%s):\n table size: %d\n number of elements: %d\n",
		s.TableIndex, role, s.Size, s.Used)
	if full {
		fmt.Fprintf(&sb, " different slots: %d\n max chain length: %d\n"+
			" avg chain length (counted): %.02f\n avg chain length (computed): %.02f\n"+
			" Chain length distribution:\n",
			s.NonEmptyBuckets, s.MaxChainLen,
			float64(s.TotalChainLen)/float64(s.NonEmptyBuckets),
			float64(s.Used)/float64(s.NonEmptyBuckets))
		for i, n := range s.ChainLengths {
			if i+1 == len(s.ChainLengths) || n == 0 {
				continue
			}
			fmt.Fprintf(&sb, "   %d: %d (%.02f%%)\n", i, n, float64(n)/float64(s.Size)*100)
		}
	}
	return sb.String()
}

// Stats returns statistics for the main table and, while rehashing, the
// target table (nil otherwise).
func (d *Dict) Stats(full bool) (main, rehashing *TableStats) {
	main = d.TableStatsAt(0, full)
	if d.IsRehashing() {
		rehashing = d.TableStatsAt(1, full)
	}
	return main, rehashing
}

// StatsMessage renders the human readable statistics of both tables.
func (d *Dict) StatsMessage(full bool) string {
	main, rehashing := d.Stats(full)
	msg := main.Message(full)
	if rehashing != nil {
		msg += rehashing.Message(full)
	}
	return msg
}
