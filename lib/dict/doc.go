// Package dict implements an in-memory associative container mapping
// opaque keys to opaque values, designed as the primary key space of a
// database engine: insert, lookup, replace, delete, random sampling,
// stateless cursor scanning and live iteration.
//
// The package focuses on:
//   - Incremental rehashing: growth and shrink are amortised across many
//     small operations, so no single call pauses for table-sized work.
//     Two bucket arrays coexist while entries migrate; lookups search both.
//   - Entry layout polymorphism: four physical entry representations share
//     one logical entry, selected per dict type to minimise per-entry
//     overhead (down to zero allocated bytes for set-like dicts whose keys
//     live directly in the bucket slots).
//   - Type descriptors: a Dict stays key- and value-agnostic through a
//     capability vtable (Type) providing hashing, comparison, ownership
//     management and resize gating.
//
// Key Components:
//
//   - Dict: the container. Collisions are chained; bucket arrays are
//     always powers of two; chain order is most-recently-inserted first.
//   - Type: the capability descriptor (see its field documentation).
//   - Entry: an opaque handle to a stored entry, with package-level
//     accessors for the key and the value in its pointer, int64, uint64
//     and float64 forms.
//   - Iterator: safe (rehash paused) and unsafe (fingerprint checked)
//     live iteration.
//   - Scan: stateless reverse-bit-cursor traversal that survives resizes
//     between calls, optionally with a defragmentation pass.
//
// Process-wide configuration: SetHashSeed installs the 16 byte SipHash
// seed and SetResizeState tunes the automatic resize policy; both are
// expected to be set once at startup.
//
// Thread-safety: a Dict is single-owner. All pause mechanisms exist to
// coordinate re-entrant use on one goroutine (e.g. a scan callback that
// itself calls Find), not concurrent access. Wrap a Dict in its own lock
// to share it; see the store/hstore package for an example.
package dict
