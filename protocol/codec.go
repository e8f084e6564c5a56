package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"

	"github.com/buger/jsonparser"
)

type clientRecord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type positionRecord struct {
	Type MessageType `json:"type"`
	ID   ClientID    `json:"id"`
	X    float64     `json:"x"`
	Y    float64     `json:"y"`
}

type eventRecord struct {
	Type MessageType `json:"type"`
	ID   ClientID    `json:"id"`
}

// EncodeClientUpdate encodes a client to server position update.
func EncodeClientUpdate(pos Position) ([]byte, error) {
	return json.Marshal(clientRecord{X: pos.X, Y: pos.Y})
}

// EncodePosition encodes the broadcast of one client's position.
// Non-finite coordinates are rejected by encoding/json.
func EncodePosition(id ClientID, pos Position) ([]byte, error) {
	return json.Marshal(positionRecord{Type: TypePosition, ID: id, X: pos.X, Y: pos.Y})
}

// EncodeWelcome encodes the record that tells a client its own id.
func EncodeWelcome(id ClientID) ([]byte, error) {
	return json.Marshal(eventRecord{Type: TypeWelcome, ID: id})
}

// EncodePlayerLeft encodes the notice that a client has gone away.
func EncodePlayerLeft(id ClientID) ([]byte, error) {
	return json.Marshal(eventRecord{Type: TypePlayerLeft, ID: id})
}

// WriteRecord writes record followed by the delimiter.
func WriteRecord(w io.Writer, record []byte) error {
	if _, err := w.Write(record); err != nil {
		return err
	}
	_, err := w.Write([]byte{Delimiter})
	return err
}

// DecodeClientUpdate decodes one client to server record (without its
// delimiter). Both coordinates are required.
func DecodeClientUpdate(record []byte) (Position, error) {
	if err := checkObject(record); err != nil {
		return Position{}, err
	}

	if t, err := optionalType(record); err != nil {
		return Position{}, err
	} else if t != "" && t != TypePosition {
		return Position{}, &DecodeError{Field: "type", Err: ErrUnknownType}
	}

	return decodeCoordinates(record)
}

// DecodeServerMessage decodes one server to client record. A record without
// a type but with coordinates is treated as a position update.
func DecodeServerMessage(record []byte) (ServerMessage, error) {
	if err := checkObject(record); err != nil {
		return ServerMessage{}, err
	}

	t, err := optionalType(record)
	if err != nil {
		return ServerMessage{}, err
	}
	if t == "" {
		t = TypePosition
	}

	id, err := decodeID(record)
	if err != nil {
		return ServerMessage{}, err
	}

	msg := ServerMessage{Type: t, ID: id}
	switch t {
	case TypeWelcome, TypePlayerLeft:
		return msg, nil
	case TypePosition:
		pos, err := decodeCoordinates(record)
		if err != nil {
			return ServerMessage{}, err
		}
		msg.Position = pos
		return msg, nil
	default:
		return ServerMessage{}, &DecodeError{Field: "type", Err: ErrUnknownType}
	}
}

func checkObject(record []byte) error {
	trimmed := bytes.TrimSpace(record)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return &DecodeError{Err: ErrMalformedRecord}
	}
	return nil
}

func optionalType(record []byte) (MessageType, error) {
	value, dataType, _, err := jsonparser.Get(record, "type")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return "", nil
	}
	if err != nil || dataType != jsonparser.String {
		return "", &DecodeError{Field: "type", Err: ErrUnknownType}
	}
	s, err := jsonparser.ParseString(value)
	if err != nil {
		return "", &DecodeError{Field: "type", Err: ErrUnknownType}
	}
	return MessageType(s), nil
}

func decodeCoordinates(record []byte) (Position, error) {
	x, err := decodeFloat(record, "x")
	if err != nil {
		return Position{}, err
	}
	y, err := decodeFloat(record, "y")
	if err != nil {
		return Position{}, err
	}
	return Position{X: x, Y: y}, nil
}

func decodeFloat(record []byte, field string) (float64, error) {
	value, dataType, _, err := jsonparser.Get(record, field)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return 0, &DecodeError{Field: field, Err: ErrMissingField}
	}
	if err != nil || dataType != jsonparser.Number {
		return 0, &DecodeError{Field: field, Err: ErrInvalidNumber}
	}
	f, err := jsonparser.ParseFloat(value)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, &DecodeError{Field: field, Err: ErrInvalidNumber}
	}
	return f, nil
}

func decodeID(record []byte) (ClientID, error) {
	value, dataType, _, err := jsonparser.Get(record, "id")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return 0, &DecodeError{Field: "id", Err: ErrMissingField}
	}
	if err != nil || dataType != jsonparser.Number {
		return 0, &DecodeError{Field: "id", Err: ErrInvalidNumber}
	}
	id, err := strconv.ParseUint(string(value), 10, 64)
	if err != nil {
		return 0, &DecodeError{Field: "id", Err: ErrInvalidNumber}
	}
	return ClientID(id), nil
}
