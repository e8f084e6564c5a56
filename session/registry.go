package session

import (
	"errors"
	"io"
	"net"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/posrelay/protocol"
)

// AdmitFunc runs while a new session is being registered, before any other
// goroutine can see it. peers are the sessions already live. It runs under
// the registry lock: it may enqueue records but must not call back into the
// registry.
type AdmitFunc func(s *Session, peers []*Session)

// Options configures a Registry.
type Options struct {
	QueueSize int
	Logger    logrus.FieldLogger
}

// Registry tracks every live session.
type Registry struct {
	sessions   map[protocol.ClientID]*Session
	nextID     protocol.ClientID
	closed     bool
	queueSize  int
	instanceID uuid.UUID
	logger     logrus.FieldLogger
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry. IDs start at 1.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Registry{
		sessions:   make(map[protocol.ClientID]*Session),
		queueSize:  queueSize,
		instanceID: uuid.New(),
		logger:     logger,
	}
}

// InstanceID identifies this registry (and so this server process).
func (r *Registry) InstanceID() uuid.UUID {
	return r.instanceID
}

// Register allocates the next id, builds a session around conn, runs admit,
// and publishes the session to fan-outs.
func (r *Registry) Register(transport string, conn Conn, admit AdmitFunc) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	r.nextID++
	s := newSession(r.nextID, transport, conn, r.queueSize)

	if admit != nil {
		peers := make([]*Session, 0, len(r.sessions))
		for _, peer := range r.sessions {
			peers = append(peers, peer)
		}
		admit(s, peers)
	}

	r.sessions[s.id] = s
	s.state.Store(int32(StateActive))

	r.logger.WithFields(logrus.Fields{
		"client_id":   s.id,
		"transport":   transport,
		"remote_addr": s.remoteAddr,
		"clients":     len(r.sessions),
	}).Info("Client registered")

	return s, nil
}

// Get returns the live session with the given id.
func (r *Registry) Get(id protocol.ClientID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Snapshot copies the current membership, leaving out exclude.
func (r *Registry) Snapshot(exclude protocol.ClientID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id == exclude {
			continue
		}
		result = append(result, s)
	}
	return result
}

// List returns all live sessions ordered by id.
func (r *Registry) List() []*Session {
	result := r.Snapshot(0)
	sort.Slice(result, func(i, j int) bool {
		return result[i].id < result[j].id
	})
	return result
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Admitted returns how many sessions have ever been registered.
func (r *Registry) Admitted() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(r.nextID)
}

// Remove deletes s from the registry. It reports whether s was present.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.sessions[s.id]
	if !exists || current != s {
		return false
	}
	delete(r.sessions, s.id)
	return true
}

// Teardown removes s from the registry and then closes its connection and
// releases its queue. Only the first call does anything; it returns true for
// that call so the caller can announce the departure exactly once.
func (r *Registry) Teardown(s *Session, cause error) bool {
	first := false

	s.teardown.Do(func() {
		first = true
		s.state.Store(int32(StateClosing))

		r.Remove(s)
		close(s.done)

		entry := r.logger.WithFields(logrus.Fields{
			"client_id":   s.id,
			"transport":   s.transport,
			"remote_addr": s.remoteAddr,
		})

		if s.conn != nil {
			if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				entry.WithError(err).Debug("Error closing connection")
			}
		}
		s.drain()
		s.state.Store(int32(StateRemoved))

		if cause != nil && !errors.Is(cause, io.EOF) && !errors.Is(cause, net.ErrClosed) {
			entry = entry.WithError(cause)
		}
		entry.Info("Client disconnected")
	})

	return first
}

// CloseAll tears down every session and refuses new registrations.
// It returns the number of sessions torn down.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	closed := 0
	for _, s := range sessions {
		if r.Teardown(s, ErrRegistryClosed) {
			closed++
		}
	}
	return closed
}
