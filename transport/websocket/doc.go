// Package websocket provides the WebSocket transport for the position relay.
//
// The websocket package implements:
//   - HTTP upgrade and session registration through the relay
//   - A read pump decoding client position updates
//   - A write pump delivering the session's outbound queue
//
// Architecture:
//
// Hub is an http.Handler. Each upgraded connection becomes a Client with two
// goroutines, mirroring the TCP transport: readPump feeds the relay and
// writePump drains the session queue. WebSocket and TCP clients share one
// registry, so they see each other's positions.
//
// Message Protocol:
//
// Records use the same JSON schema as the TCP transport:
//   - Incoming: {"x": 1.5, "y": -2} (one or more per text frame, newline separated)
//   - Outgoing: {"type":"position","id":1,"x":1.5,"y":-2}, one per text frame
//
// The first frame a client receives is {"type":"welcome","id":N}.
//
// Usage:
//
//	hub := websocket.NewHub(r, websocket.Config{}, logger)
//	router.Handle("/ws", hub)
//
// Connection Lifecycle:
//
// 1. Client upgrades on the configured path
// 2. Session joined to the relay, welcome queued
// 3. Client sends positions, receives other clients' positions
// 4. Either pump stopping tears the session down
//
// There is no ping/pong liveness check; a silent peer stays registered until
// its connection errors.
package websocket
