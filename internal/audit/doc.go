// Package audit implements async event dispatching for session lifecycle
// events: logins, rotations, replays and logouts.
//
// # Components
//
//   - [Sink] is the event consumer interface (channel, JSON writer, no-op).
//   - [Dispatcher] is a buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event] is the audit record.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goSession or any sibling internal package.
//   - Carry raw token values. Events reference refresh tokens by fingerprint.
package audit
