// Package gateway is the authenticated chat WebSocket hub.
//
// The handshake is authenticated before the upgrade by middleware.Guard; the
// handler reads the user id from the request context. Frames are JSON
// envelopes {type, payload}:
//
//	SEND_MESSAGE  -> NEW_MESSAGE to the target and every sender connection
//	TYPING_START  -> PEER_TYPING {typing: true} to the target
//	TYPING_STOP   -> PEER_TYPING {typing: false} to the target
//	anything else -> ERROR to the sender
//
// Persistence is delegated to a [MessageSink]. [MemoryHistory] is a sink that
// also serves paged private history, newest first.
package gateway
