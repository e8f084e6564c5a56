package protocol

import (
	"errors"
	"fmt"
)

// ClientID identifies one connection for the lifetime of the server process.
// IDs are assigned by the registry and are never reused.
type ClientID uint64

// Position is the latest known location reported by a client.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MessageType tags server records on the wire.
type MessageType string

const (
	TypeWelcome    MessageType = "welcome"
	TypePosition   MessageType = "position"
	TypePlayerLeft MessageType = "player_left"
)

// Delimiter terminates every record on a stream transport.
const Delimiter = '\n'

// DefaultMaxRecordSize bounds a single record, excluding its delimiter.
const DefaultMaxRecordSize = 4096

// DefaultFrameRecords is how many maximum size records a message-framed
// transport accepts in one frame unless configured otherwise.
const DefaultFrameRecords = 16

// ServerMessage is a decoded server to client record.
type ServerMessage struct {
	Type     MessageType
	ID       ClientID
	Position Position // only meaningful for TypePosition
}

// Decode errors
var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrMissingField    = errors.New("missing field")
	ErrInvalidNumber   = errors.New("invalid number")
	ErrUnknownType     = errors.New("unknown message type")
	ErrRecordTooLarge  = errors.New("record too large")
)

// DecodeError reports a record that could not be decoded. The connection
// that produced it is still usable.
type DecodeError struct {
	Field string // offending field, empty when the whole record is bad
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is (or wraps) a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
