// Package prometheus renders engine counters and latency histograms in the
// Prometheus text exposition format.
//
// Login and refresh counters are exposed as the gosession_login_total and
// gosession_refresh_total families with an outcome label. Histograms are
// gosession_validate_latency_seconds and gosession_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
