// Package session provides the connection registry for the position relay.
//
// The session package implements:
//   - Per-connection Session state (id, last position, outbound queue)
//   - Monotonic, never reused ClientID allocation
//   - Thread-safe membership changes and snapshots
//   - Idempotent teardown shared by the read and write paths
//
// Core Types:
//
// Registry owns every live Session. Session holds the state of one connected
// client and the bounded queue of encoded records waiting to be written to
// its socket.
//
// Lifecycle:
//
// A session moves through Connecting, Active, Closing and Removed, and never
// goes back. It is Connecting while the registry runs the admit hook, becomes
// Active once it is visible to fan-outs, Closing when either I/O loop ends,
// and Removed after it has left the registry and its connection is closed.
// Removal always happens before the connection is released, so a torn down
// session can never show up in a later snapshot.
//
// Concurrency:
//
// The registry map is guarded by a sync.RWMutex. Snapshot takes the read lock
// only long enough to copy the membership; callers do their I/O on the copy.
// Enqueue never blocks: a full or closed queue returns an error and the
// record is dropped for that receiver only.
//
// Usage:
//
//	registry := session.NewRegistry(session.Options{QueueSize: 256})
//
//	sess, err := registry.Register("tcp", conn, func(s *session.Session, peers []*session.Session) {
//		s.Enqueue(welcome)
//	})
//	if err != nil {
//		return err
//	}
//	defer registry.Teardown(sess, nil)
//
//	for _, peer := range registry.Snapshot(sess.ID()) {
//		peer.Enqueue(record)
//	}
package session
