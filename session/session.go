package session

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wricardo/posrelay/protocol"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrQueueFull       = errors.New("outbound queue full")
	ErrRegistryClosed  = errors.New("registry closed")
	ErrSessionNotFound = errors.New("session not found")
)

// DefaultQueueSize is the per-session outbound queue capacity.
const DefaultQueueSize = 256

// State is the lifecycle stage of a session.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Conn is the part of a network connection the registry needs.
// net.Conn and *websocket.Conn both satisfy it.
type Conn interface {
	io.Closer
	RemoteAddr() net.Addr
}

// Session is the server-side state of one connected client.
type Session struct {
	id          protocol.ClientID
	transport   string
	remoteAddr  string
	connectedAt time.Time
	conn        Conn

	outbound chan []byte
	done     chan struct{}
	state    atomic.Int32
	teardown sync.Once

	mu          sync.RWMutex
	position    protocol.Position
	hasPosition bool
	lastUpdate  time.Time

	updates atomic.Uint64
	dropped atomic.Uint64
}

func newSession(id protocol.ClientID, transport string, conn Conn, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	s := &Session{
		id:          id,
		transport:   transport,
		connectedAt: time.Now(),
		conn:        conn,
		outbound:    make(chan []byte, queueSize),
		done:        make(chan struct{}),
	}
	if conn != nil && conn.RemoteAddr() != nil {
		s.remoteAddr = conn.RemoteAddr().String()
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// ID returns the id assigned at admission. It is never reused.
func (s *Session) ID() protocol.ClientID { return s.id }

// Transport names the listener the session arrived on, such as "tcp".
func (s *Session) Transport() string { return s.transport }

// RemoteAddr returns the peer address, or "" if the connection has none.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// ConnectedAt returns when the session was created.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Position returns the last reported position and whether one was reported.
func (s *Session) Position() (protocol.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position, s.hasPosition
}

// LastUpdate returns when the position was last set, or the zero time.
func (s *Session) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// SetPosition records the latest position reported by this client.
func (s *Session) SetPosition(pos protocol.Position) {
	s.mu.Lock()
	s.position = pos
	s.hasPosition = true
	s.lastUpdate = time.Now()
	s.mu.Unlock()

	s.updates.Add(1)
}

// Enqueue queues an encoded record for the write loop without blocking.
// It returns ErrSessionClosed once teardown has started and ErrQueueFull
// when the receiver is not keeping up.
func (s *Session) Enqueue(record []byte) error {
	select {
	case <-s.done:
		s.dropped.Add(1)
		return ErrSessionClosed
	default:
	}

	select {
	case s.outbound <- record:
		return nil
	case <-s.done:
		s.dropped.Add(1)
		return ErrSessionClosed
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

// Outbound is drained by the write loop.
func (s *Session) Outbound() <-chan []byte {
	return s.outbound
}

// Done is closed when teardown starts.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Pending returns the number of queued records not yet written.
func (s *Session) Pending() int {
	return len(s.outbound)
}

// Updates returns how many position updates this client has sent.
func (s *Session) Updates() uint64 {
	return s.updates.Load()
}

// Dropped returns how many records could not be queued for this client.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// drain releases whatever is still queued.
func (s *Session) drain() {
	for {
		select {
		case <-s.outbound:
		default:
			return
		}
	}
}
