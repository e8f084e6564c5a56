// Package relay fans client position updates out to every other live client.
//
// Relay sits between the transports and the session registry. A transport
// calls Join for each new connection, Update for each decoded position,
// Reject for each record it could not decode, and Leave when either of the
// connection's loops stops. Relay encodes each update once, takes a snapshot
// of the registry, and enqueues the record on every session except the
// sender. Enqueue never blocks, so one slow receiver cannot hold up the
// sender or the other receivers.
package relay
