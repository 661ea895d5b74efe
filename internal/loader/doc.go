// Package loader implements the Snapshot Loader component.
//
// The Snapshot Loader:
//   - Fetches scanner pages over REST for the active filter
//   - Feeds pages to the engine in page order
//   - Discards pages that arrive after the filter changed
//   - Refreshes loaded pages on an optional interval with bounded concurrency
package loader
