// Package protocol implements the line-delimited JSON wire format spoken
// between relay clients and the relay server.
//
// Every logical message is one JSON object terminated by a single '\n'.
//
// Client to server:
//
//	{"x": 12.5, "y": -3}
//	{"type": "position", "x": 12.5, "y": -3}
//
// Server to client:
//
//	{"type": "welcome", "id": 7}
//	{"type": "position", "id": 3, "x": 12.5, "y": -3}
//	{"type": "player_left", "id": 3}
//
// Decoding never panics on hostile input. Every rejection is a *DecodeError
// wrapping one of the Err* sentinels so callers can tell a bad record apart
// from a broken connection:
//
//	rec, err := reader.ReadRecord()
//	if protocol.IsDecodeError(err) {
//		// drop the record, keep the connection
//	}
package protocol
