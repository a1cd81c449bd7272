// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunValidate) accepts a
// typed dependency struct and returns a result carrying a failure kind. The
// root package maps kinds to public errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flows coordinate the refresh store, the token codec and the login limiter
// through their dependency structs. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Hold a lock or retry across the read and the CompareAndRotate of a refresh.
package flows
