package protocol

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func readAll(t *testing.T, r *Reader) []string {
	t.Helper()
	var out []string
	for {
		rec, err := r.ReadRecord()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("ReadRecord failed: %v", err)
		}
		out = append(out, string(rec))
	}
}

func TestReader_SplitsRecords(t *testing.T) {
	input := "{\"x\":1,\"y\":2}\n\n{\"x\":3,\"y\":4}\r\n   \n{\"x\":5,\"y\":6}\n"

	t.Run("single read", func(t *testing.T) {
		got := readAll(t, NewReader(strings.NewReader(input), 0))
		want := []string{`{"x":1,"y":2}`, `{"x":3,"y":4}`, `{"x":5,"y":6}`}
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})

	t.Run("one byte per read", func(t *testing.T) {
		got := readAll(t, NewReader(iotest.OneByteReader(strings.NewReader(input)), 0))
		if len(got) != 3 {
			t.Fatalf("Expected 3 records, got %d: %v", len(got), got)
		}
		if got[1] != `{"x":3,"y":4}` {
			t.Errorf("Expected CR to be stripped, got %q", got[1])
		}
	})
}

func TestReader_OversizedRecord(t *testing.T) {
	long := "{\"x\":1,\"y\":2,\"pad\":\"" + strings.Repeat("a", 64) + "\"}"
	input := long + "\n" + "{\"x\":7,\"y\":8}\n"

	r := NewReader(strings.NewReader(input), 16)

	_, err := r.ReadRecord()
	if !IsDecodeError(err) || !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("Expected ErrRecordTooLarge, got %v", err)
	}

	rec, err := r.ReadRecord()
	if err != nil {
		t.Fatalf("Expected reader to recover after oversized record, got %v", err)
	}
	if string(rec) != `{"x":7,"y":8}` {
		t.Errorf("Unexpected record after skip: %s", rec)
	}

	if _, err := r.ReadRecord(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestReader_RecordOneByteOverLimit(t *testing.T) {
	// 17 bytes of payload with a limit of 16 still fits the buffer.
	input := strings.Repeat("a", 17) + "\n" + "{\"x\":1,\"y\":1}\n"
	r := NewReader(strings.NewReader(input), 16)

	if _, err := r.ReadRecord(); !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("Expected ErrRecordTooLarge, got %v", err)
	}
	if rec, err := r.ReadRecord(); err != nil || string(rec) != `{"x":1,"y":1}` {
		t.Fatalf("Expected next record, got %q, %v", rec, err)
	}
}

func TestReader_EndOfStream(t *testing.T) {
	t.Run("clean close", func(t *testing.T) {
		r := NewReader(strings.NewReader(""), 0)
		if _, err := r.ReadRecord(); err != io.EOF {
			t.Errorf("Expected io.EOF, got %v", err)
		}
	})

	t.Run("unterminated tail", func(t *testing.T) {
		r := NewReader(strings.NewReader("{\"x\":1,\"y\":2}\n{\"x\":3"), 0)
		if _, err := r.ReadRecord(); err != nil {
			t.Fatalf("First record failed: %v", err)
		}
		if _, err := r.ReadRecord(); err != io.ErrUnexpectedEOF {
			t.Errorf("Expected io.ErrUnexpectedEOF, got %v", err)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		boom := errors.New("boom")
		r := NewReader(iotest.ErrReader(boom), 0)
		if _, err := r.ReadRecord(); !errors.Is(err, boom) {
			t.Errorf("Expected transport error, got %v", err)
		}
	})
}

func TestReader_ReturnsCopies(t *testing.T) {
	r := NewReader(strings.NewReader("{\"x\":1,\"y\":2}\n{\"x\":3,\"y\":4}\n"), 0)
	first, _ := r.ReadRecord()
	_, _ = r.ReadRecord()
	if string(first) != `{"x":1,"y":2}` {
		t.Errorf("First record was overwritten: %s", first)
	}
}

func TestSplitFrame(t *testing.T) {
	got := SplitFrame([]byte("{\"x\":1,\"y\":2}\n\n{\"x\":3,\"y\":4}\r\n{\"x\":5,\"y\":6}"))
	if len(got) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(got))
	}
	if string(got[1]) != `{"x":3,"y":4}` || string(got[2]) != `{"x":5,"y":6}` {
		t.Errorf("Unexpected split: %q", got)
	}

	if got := SplitFrame([]byte("  \n")); len(got) != 0 {
		t.Errorf("Expected no records from blank frame, got %q", got)
	}
}
