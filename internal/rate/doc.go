// Package rate implements the Redis-backed login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR, then EXPIRE on the first hit. Keys:
//   - <prefix>:al:  login failures per identifier
//   - <prefix>:ali: login failures per client IP
//
// # What this package must NOT do
//
//   - Decide what a failure is. Callers increment only after rejected credentials.
//   - Throttle refresh; single-use rotation already bounds it.
package rate
