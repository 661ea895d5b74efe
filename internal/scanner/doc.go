// Package scanner implements the synchronization engine behind a scanner
// table.
//
// An Engine owns the keyed row table and everything derived from it:
//   - the sorted view, recomputed on a debounced schedule
//   - per-row stream subscriptions, reconciled after every publish
//   - the filter-level stream subscription while realtime is enabled
//
// Snapshot pages and stream events are merged with field-level precedence:
// once a tick has set a row's price and market cap, or pair-stats have set
// its audit flags, later snapshots refresh everything else but leave those
// fields alone.
//
// Every Engine method is safe for concurrent use. Mutations are serialized
// by one lock, and transport sends issued by a mutation happen before the
// lock is released, so subscribe/unsubscribe traffic is never interleaved
// across operations.
package scanner
