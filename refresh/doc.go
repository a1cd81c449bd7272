// Package refresh defines the refresh-token rotation record and the store
// contract shared by every backend.
//
// # Record lifecycle
//
// A record is created ACTIVE on login or by a successful rotation. Rotation
// moves it to ROTATED exactly once and links it to its successor; revocation
// moves every record of a lineage to REVOKED. Rotated and revoked records are
// never reactivated.
//
// # Architecture boundaries
//
// This package owns the record model, token identifier generation and the
// sentinel errors. Backends live in sub packages (redisstore, pgstore,
// memstore). The rotation decision (win, race lost, replay) belongs to the
// engine, not to the store.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Let a backend persist a raw token id. Only [Ref] values are stored.
//   - Import goSession, jwt, or any backend package.
//   - Decide replay policy.
package refresh
