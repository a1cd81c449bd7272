// Package internal holds the private building blocks of goSession.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: the login, refresh, logout and validate orchestrators
//   - metrics: lock-free counters and latency histograms
//   - rate: Redis-backed login attempt counting
//   - serverconfig: environment configuration for cmd/sessiond
//   - stores: the access token blacklist
//   - userstore: the Argon2id-backed credential directory
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
