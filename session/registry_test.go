package session

import (
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/wricardo/posrelay/protocol"
)

type fakeConn struct {
	mu      sync.Mutex
	closed  int
	onClose func()
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	if c.onClose != nil {
		c.onClose()
	}
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000}
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestRegistry(queueSize int) *Registry {
	logger, _ := test.NewNullLogger()
	return NewRegistry(Options{QueueSize: queueSize, Logger: logger})
}

func TestRegistry_Register(t *testing.T) {
	registry := newTestRegistry(0)

	t.Run("sequential ids from one", func(t *testing.T) {
		for want := protocol.ClientID(1); want <= 3; want++ {
			s, err := registry.Register("tcp", &fakeConn{}, nil)
			if err != nil {
				t.Fatalf("Register failed: %v", err)
			}
			if s.ID() != want {
				t.Errorf("Expected id %d, got %d", want, s.ID())
			}
			if s.State() != StateActive {
				t.Errorf("Expected active state, got %s", s.State())
			}
		}
		if registry.Count() != 3 {
			t.Errorf("Expected 3 sessions, got %d", registry.Count())
		}
	})

	t.Run("remote address captured", func(t *testing.T) {
		s, _ := registry.Register("tcp", &fakeConn{}, nil)
		if s.RemoteAddr() != "127.0.0.1:50000" {
			t.Errorf("Unexpected remote addr %q", s.RemoteAddr())
		}
		if s.Transport() != "tcp" {
			t.Errorf("Unexpected transport %q", s.Transport())
		}
	})
}

func TestRegistry_ConcurrentRegisterDistinctIDs(t *testing.T) {
	registry := newTestRegistry(0)

	const n = 100
	ids := make(chan protocol.ClientID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := registry.Register("tcp", &fakeConn{}, nil)
			if err != nil {
				t.Errorf("Register failed: %v", err)
				return
			}
			ids <- s.ID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[protocol.ClientID]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("Duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("Expected %d ids, got %d", n, len(seen))
	}
	if registry.Admitted() != n {
		t.Errorf("Expected %d admitted, got %d", n, registry.Admitted())
	}
}

func TestRegistry_IDsNotReused(t *testing.T) {
	registry := newTestRegistry(0)

	first, _ := registry.Register("tcp", &fakeConn{}, nil)
	registry.Teardown(first, nil)

	second, _ := registry.Register("tcp", &fakeConn{}, nil)
	if second.ID() == first.ID() {
		t.Errorf("Id %d was reused", first.ID())
	}
	if second.ID() != 2 {
		t.Errorf("Expected id 2, got %d", second.ID())
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	registry := newTestRegistry(0)

	a, _ := registry.Register("tcp", &fakeConn{}, nil)
	b, _ := registry.Register("tcp", &fakeConn{}, nil)
	c, _ := registry.Register("websocket", &fakeConn{}, nil)

	snap := registry.Snapshot(a.ID())
	if len(snap) != 2 {
		t.Fatalf("Expected 2 peers, got %d", len(snap))
	}
	for _, s := range snap {
		if s.ID() == a.ID() {
			t.Error("Snapshot must exclude the sender")
		}
	}

	registry.Teardown(b, nil)
	snap = registry.Snapshot(a.ID())
	if len(snap) != 1 || snap[0] != c {
		t.Errorf("Expected only session %d after teardown, got %v", c.ID(), snap)
	}

	list := registry.List()
	if len(list) != 2 || list[0] != a || list[1] != c {
		t.Errorf("Expected ordered list [%d %d], got %v", a.ID(), c.ID(), list)
	}
}

func TestRegistry_Get(t *testing.T) {
	registry := newTestRegistry(0)
	s, _ := registry.Register("tcp", &fakeConn{}, nil)

	got, err := registry.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("Expected session %d, got %v, %v", s.ID(), got, err)
	}

	if _, err := registry.Get(99); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegistry_Teardown(t *testing.T) {
	registry := newTestRegistry(0)
	conn := &fakeConn{}
	s, _ := registry.Register("tcp", conn, nil)

	removedFirst := false
	conn.onClose = func() {
		_, err := registry.Get(s.ID())
		removedFirst = errors.Is(err, ErrSessionNotFound)
	}

	if !registry.Teardown(s, nil) {
		t.Fatal("First teardown should report true")
	}
	if registry.Teardown(s, errors.New("second")) {
		t.Error("Second teardown should report false")
	}

	if !removedFirst {
		t.Error("Session must leave the registry before its connection is closed")
	}
	if conn.closeCount() != 1 {
		t.Errorf("Expected connection closed once, got %d", conn.closeCount())
	}
	if s.State() != StateRemoved {
		t.Errorf("Expected removed state, got %s", s.State())
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed after teardown")
	}
	if registry.Count() != 0 {
		t.Errorf("Expected empty registry, got %d", registry.Count())
	}
}

func TestRegistry_ConcurrentTeardown(t *testing.T) {
	registry := newTestRegistry(0)
	conn := &fakeConn{}
	s, _ := registry.Register("tcp", conn, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if registry.Teardown(s, nil) {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firsts != 1 {
		t.Errorf("Expected exactly one effective teardown, got %d", firsts)
	}
	if conn.closeCount() != 1 {
		t.Errorf("Expected one close, got %d", conn.closeCount())
	}
}

func TestRegistry_AdmitRunsBeforeVisible(t *testing.T) {
	registry := newTestRegistry(0)
	first, _ := registry.Register("tcp", &fakeConn{}, nil)

	var sawPeers []*Session
	var stateDuringAdmit State
	s, err := registry.Register("tcp", &fakeConn{}, func(s *Session, peers []*Session) {
		sawPeers = peers
		stateDuringAdmit = s.State()
		if err := s.Enqueue([]byte("hello")); err != nil {
			t.Errorf("Enqueue during admit failed: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if stateDuringAdmit != StateConnecting {
		t.Errorf("Expected connecting during admit, got %s", stateDuringAdmit)
	}
	if len(sawPeers) != 1 || sawPeers[0] != first {
		t.Errorf("Expected admit to see the first session only, got %v", sawPeers)
	}
	if got := string(<-s.Outbound()); got != "hello" {
		t.Errorf("Expected admit record first, got %q", got)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	registry := newTestRegistry(0)
	conns := []*fakeConn{{}, {}, {}}
	for _, c := range conns {
		registry.Register("tcp", c, nil)
	}

	if n := registry.CloseAll(); n != 3 {
		t.Errorf("Expected 3 sessions closed, got %d", n)
	}
	for i, c := range conns {
		if c.closeCount() != 1 {
			t.Errorf("Connection %d closed %d times", i, c.closeCount())
		}
	}

	if _, err := registry.Register("tcp", &fakeConn{}, nil); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Expected ErrRegistryClosed, got %v", err)
	}
}

func TestSession_Enqueue(t *testing.T) {
	registry := newTestRegistry(2)
	s, _ := registry.Register("tcp", &fakeConn{}, nil)

	t.Run("full queue drops", func(t *testing.T) {
		if err := s.Enqueue([]byte("a")); err != nil {
			t.Fatalf("Enqueue a: %v", err)
		}
		if err := s.Enqueue([]byte("b")); err != nil {
			t.Fatalf("Enqueue b: %v", err)
		}
		if err := s.Enqueue([]byte("c")); !errors.Is(err, ErrQueueFull) {
			t.Errorf("Expected ErrQueueFull, got %v", err)
		}
		if s.Pending() != 2 {
			t.Errorf("Expected 2 pending, got %d", s.Pending())
		}
		if s.Dropped() != 1 {
			t.Errorf("Expected 1 dropped, got %d", s.Dropped())
		}
		if got := string(<-s.Outbound()); got != "a" {
			t.Errorf("Expected FIFO order, got %q", got)
		}
	})

	t.Run("closed session refuses", func(t *testing.T) {
		registry.Teardown(s, nil)
		if err := s.Enqueue([]byte("d")); !errors.Is(err, ErrSessionClosed) {
			t.Errorf("Expected ErrSessionClosed, got %v", err)
		}
		if s.Pending() != 0 {
			t.Errorf("Expected queue released on teardown, got %d pending", s.Pending())
		}
	})
}

func TestSession_Position(t *testing.T) {
	s := newSession(1, "tcp", nil, 0)

	if _, ok := s.Position(); ok {
		t.Error("New session should have no position")
	}
	if !s.LastUpdate().IsZero() {
		t.Error("New session should have zero last update")
	}

	s.SetPosition(protocol.Position{X: 1, Y: 2})
	s.SetPosition(protocol.Position{X: 3, Y: 4})

	pos, ok := s.Position()
	if !ok || pos != (protocol.Position{X: 3, Y: 4}) {
		t.Errorf("Expected latest position, got %+v (%v)", pos, ok)
	}
	if s.Updates() != 2 {
		t.Errorf("Expected 2 updates, got %d", s.Updates())
	}
	if s.LastUpdate().IsZero() {
		t.Error("Expected last update to be set")
	}
	if s.RemoteAddr() != "" {
		t.Errorf("Expected empty remote addr without conn, got %q", s.RemoteAddr())
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateConnecting: "connecting",
		StateActive:     "active",
		StateClosing:    "closing",
		StateRemoved:    "removed",
		State(42):       "unknown",
	}
	for state, want := range tests {
		if state.String() != want {
			t.Errorf("Expected %q, got %q", want, state.String())
		}
	}
}
