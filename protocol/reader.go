package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Reader splits a byte stream into delimiter-terminated records. Records may
// arrive split across any number of reads; a record is only returned once
// its delimiter has been seen.
type Reader struct {
	br  *bufio.Reader
	max int
}

// NewReader wraps r. Records longer than maxRecordSize bytes are skipped
// and reported as ErrRecordTooLarge. A non-positive size selects
// DefaultMaxRecordSize.
func NewReader(r io.Reader, maxRecordSize int) *Reader {
	if maxRecordSize <= 0 {
		maxRecordSize = DefaultMaxRecordSize
	}
	// Room for the record plus "\r\n".
	return &Reader{
		br:  bufio.NewReaderSize(r, maxRecordSize+2),
		max: maxRecordSize,
	}
}

// ReadRecord returns the next non-blank record without its delimiter.
//
// Oversized records yield a *DecodeError and the stream stays usable. Any
// other error comes from the underlying reader; bytes left over after the
// last delimiter when the stream ends are reported as io.ErrUnexpectedEOF.
func (r *Reader) ReadRecord() ([]byte, error) {
	for {
		line, err := r.br.ReadSlice(Delimiter)
		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			if err := r.discardLine(); err != nil {
				return nil, err
			}
			return nil, &DecodeError{Err: ErrRecordTooLarge}
		case errors.Is(err, io.EOF) && len(bytes.TrimSpace(line)) > 0:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}

		line = bytes.TrimSuffix(line[:len(line)-1], []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if len(line) > r.max {
			return nil, &DecodeError{Err: ErrRecordTooLarge}
		}

		record := make([]byte, len(line))
		copy(record, line)
		return record, nil
	}
}

// discardLine drops input up to and including the next delimiter.
func (r *Reader) discardLine() error {
	for {
		_, err := r.br.ReadSlice(Delimiter)
		if err == nil {
			return nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// SplitFrame splits a message-oriented frame (one WebSocket message, for
// example) into its records. The final record does not need a delimiter.
func SplitFrame(frame []byte) [][]byte {
	var records [][]byte
	for _, line := range bytes.Split(frame, []byte{Delimiter}) {
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		records = append(records, line)
	}
	return records
}
