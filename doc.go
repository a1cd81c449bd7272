// Package goSession provides session authentication built on short-lived
// signed access tokens and single-use rotating refresh tokens.
//
// Every refresh consumes the presented refresh token and mints a successor,
// forming a chain from one login. Presenting a consumed token again is
// treated as theft: the whole chain is revoked. Concurrent refreshes of the
// same token have exactly one winner, decided by a single atomic
// compare-and-rotate at the storage boundary.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. Flow orchestration, throttling, the access blacklist and
// audit dispatch live under internal/. Refresh record storage is pluggable
// through [refresh.Store]; transports (httpapi, gateway, middleware) consume
// the Engine.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or record encodings in its public API.
//   - Perform I/O outside of Engine methods.
//   - Distinguish refresh rejection reasons to clients. Callers use
//     [IsRefreshRejection] and answer 401.
//
// # Performance contract
//
// Validate is the hot path: no refresh store round-trips, and one Redis read
// only when the access blacklist is enabled. Refresh makes at most one read
// and one conditional write on the winning path.
package goSession
