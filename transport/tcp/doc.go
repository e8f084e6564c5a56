// Package tcp provides the TCP transport for the position relay.
//
// Server binds one address and, for every accepted connection, joins a new
// session to the relay and starts two goroutines:
//
//   - readLoop reads newline-delimited JSON records, decodes each as a client
//     position update and passes it to the relay. Malformed records are
//     dropped (or end the connection when DisconnectOnMalformed is set).
//   - writeLoop drains the session's outbound queue to the socket.
//
// Whichever loop stops first tears the session down; the other sees the
// closed connection or the session's Done channel and stops too.
//
// Any net.Listener can be served, so the same Server also accepts clients
// arriving through an ngrok TCP endpoint.
//
// Example:
//
//	srv := tcp.NewServer(r, tcp.Config{Addr: "127.0.0.1:8080"}, logger)
//	if err := srv.ListenAndServe(ctx); err != nil {
//		var bindErr *tcp.BindError
//		if errors.As(err, &bindErr) {
//			log.Fatal(err)
//		}
//	}
package tcp
