// Package store defines a standardized interface for thread-safe
// key–value stores built on the dict container.
//
// The package focuses on:
//   - A unified interface (IStore) for string-keyed byte-value stores
//   - A typed error shape (Error, RetCode) shared by all implementations
//   - Standardized metadata reporting (StoreInfo)
//
// The dict container itself is single-owner by design; an IStore
// implementation contributes the locking, the operational metrics and the
// maintenance scheduling (incremental rehash budgets) a shared store
// needs.
//
// Related Packages:
//
// The hstore package (github.com/ValentinKolb/iDict/lib/store/hstore)
// provides the canonical implementation: a reader-biased lock around one
// dict with embedded-entry layout, operation counters and rehash
// transition logging.
package store
