package relay

import (
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wricardo/posrelay/protocol"
	"github.com/wricardo/posrelay/session"
)

// ErrDisconnected is the teardown cause for sessions closed by an operator.
var ErrDisconnected = errors.New("disconnected by operator")

// Report is the outcome of one fan-out.
type Report struct {
	Delivered int
	Dropped   int
}

// Stats are process-wide relay counters.
type Stats struct {
	InstanceID string
	StartedAt  time.Time
	Active     int
	Admitted   uint64
	Updates    uint64
	Deliveries uint64
	Drops      uint64
	Rejected   uint64
	Departures uint64
}

// Relay joins sessions to the registry and fans their updates out to every
// other live session.
type Relay struct {
	registry *session.Registry
	logger   logrus.FieldLogger
	started  time.Time

	updates    atomic.Uint64
	deliveries atomic.Uint64
	drops      atomic.Uint64
	rejected   atomic.Uint64
	departures atomic.Uint64
}

// New creates a relay over registry.
func New(registry *session.Registry, logger logrus.FieldLogger) *Relay {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Relay{
		registry: registry,
		logger:   logger,
		started:  time.Now(),
	}
}

// Registry returns the registry the relay fans out over.
func (r *Relay) Registry() *session.Registry {
	return r.registry
}

// Join registers conn as a new session. Before the session is visible to any
// fan-out its queue receives the welcome record followed by the last known
// position of every peer that has reported one.
func (r *Relay) Join(transport string, conn session.Conn) (*session.Session, error) {
	return r.registry.Register(transport, conn, func(s *session.Session, peers []*session.Session) {
		welcome, err := protocol.EncodeWelcome(s.ID())
		if err != nil {
			r.logger.WithError(err).Error("Failed to encode welcome")
			return
		}
		if err := s.Enqueue(welcome); err != nil {
			r.drops.Add(1)
			r.logger.WithError(err).WithField("client_id", s.ID()).Warn("Welcome dropped")
		} else {
			r.deliveries.Add(1)
		}

		sort.Slice(peers, func(i, j int) bool {
			return peers[i].ID() < peers[j].ID()
		})
		for _, peer := range peers {
			pos, ok := peer.Position()
			if !ok {
				continue
			}
			record, err := protocol.EncodePosition(peer.ID(), pos)
			if err != nil {
				continue
			}
			if err := s.Enqueue(record); err != nil {
				r.drops.Add(1)
				continue
			}
			r.deliveries.Add(1)
		}
	})
}

// Update records pos as the sender's latest position and relays it.
func (r *Relay) Update(sender *session.Session, pos protocol.Position) (Report, error) {
	record, err := protocol.EncodePosition(sender.ID(), pos)
	if err != nil {
		return Report{}, err
	}

	sender.SetPosition(pos)
	r.updates.Add(1)

	return r.Broadcast(sender.ID(), record), nil
}

// Broadcast enqueues record on every live session except sender. The
// registry lock is held only while the membership is copied. A receiver
// whose queue is full or closed misses this record and nothing else.
func (r *Relay) Broadcast(sender protocol.ClientID, record []byte) Report {
	var report Report

	for _, peer := range r.registry.Snapshot(sender) {
		if err := peer.Enqueue(record); err != nil {
			report.Dropped++
			r.logger.WithFields(logrus.Fields{
				"client_id": peer.ID(),
				"from":      sender,
				"error":     err,
			}).Debug("Delivery dropped")
			continue
		}
		report.Delivered++
	}

	r.deliveries.Add(uint64(report.Delivered))
	r.drops.Add(uint64(report.Dropped))
	return report
}

// Leave tears s down and, the first time only, tells the remaining sessions
// it is gone. Both I/O loops call it when they stop.
func (r *Relay) Leave(s *session.Session, cause error) bool {
	if !r.registry.Teardown(s, cause) {
		return false
	}
	r.departures.Add(1)

	record, err := protocol.EncodePlayerLeft(s.ID())
	if err != nil {
		r.logger.WithError(err).Error("Failed to encode player_left")
		return true
	}
	r.Broadcast(s.ID(), record)
	return true
}

// Reject counts a record from s that could not be decoded.
func (r *Relay) Reject(s *session.Session, err error) {
	r.rejected.Add(1)
	r.logger.WithFields(logrus.Fields{
		"client_id": s.ID(),
		"transport": s.Transport(),
		"error":     err,
	}).Debug("Dropped malformed record")
}

// Disconnect tears down the live session with the given id.
func (r *Relay) Disconnect(id protocol.ClientID) error {
	s, err := r.registry.Get(id)
	if err != nil {
		return err
	}
	r.Leave(s, ErrDisconnected)
	return nil
}

// Shutdown tears down every session and refuses new ones. Departures are
// not announced since every receiver is going away too.
func (r *Relay) Shutdown() int {
	n := r.registry.CloseAll()
	if n > 0 {
		r.logger.Infof("Closed %d client session(s)", n)
	}
	return n
}

// Stats returns a snapshot of the relay counters.
func (r *Relay) Stats() Stats {
	return Stats{
		InstanceID: r.registry.InstanceID().String(),
		StartedAt:  r.started,
		Active:     r.registry.Count(),
		Admitted:   r.registry.Admitted(),
		Updates:    r.updates.Load(),
		Deliveries: r.deliveries.Load(),
		Drops:      r.drops.Load(),
		Rejected:   r.rejected.Load(),
		Departures: r.departures.Load(),
	}
}
