// Package hstore provides the canonical store.IStore implementation: one
// dict with the embedded entry layout (string keys inline in the entry
// records, byte-slice values) behind a reader-biased lock.
//
// Design notes:
//
//   - Locking: the dict is single-owner and even lookups perform a slice
//     of pending rehash work, so all dict operations take the write lock.
//     Only pure observers (Len) use the reader side. The lock is an
//     xsync.RBMutex, which makes those reader sections nearly free.
//   - Metrics: operation and rehash-transition counters are registered in
//     the metrics.Set passed via StoreOptions, ready to be exposed with
//     the set's WritePrometheus.
//   - Maintenance: hosts with idle time call RehashMaintenance with a
//     time budget to drain pending migrations ahead of traffic, the same
//     way a server cron would.
//   - Value sizes are recorded into a power-of-two histogram on every
//     write, so GetStoreInfo can estimate memory usage without scanning
//     the data.
package hstore
