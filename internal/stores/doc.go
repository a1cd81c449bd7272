// Package stores provides small Redis-backed stores that sit beside the
// refresh store: currently the access-token blacklist written on logout.
//
// # Design
//
// Entries are keyed by the SHA-256 digest of the token and expire with it, so
// the set never outgrows the population of live access tokens.
//
// # What this package must NOT do
//
//   - Import goSession or any sibling internal package.
//   - Store or log plaintext tokens.
//   - Verify token signatures; callers pass tokens that already verified.
package stores
