// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Stream frames, parse errors and unknown-row events per table
//   - Row counts, publishes and active subscriptions per table
//   - Snapshot page fetches, failures and latency
//   - Price writer batch sizes, latencies and errors
//
// All Record* methods are safe to call on a nil *Metrics.
package metrics
