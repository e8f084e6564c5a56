package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wricardo/posrelay/protocol"
	"github.com/wricardo/posrelay/relay"
	"github.com/wricardo/posrelay/session"
)

// relayServiceImpl implements the RelayService interface
type relayServiceImpl struct {
	relay *relay.Relay
}

// NewRelayService creates a new relay service instance
func NewRelayService(r *relay.Relay) RelayService {
	return &relayServiceImpl{relay: r}
}

// ListClients returns every live client ordered by id
func (s *relayServiceImpl) ListClients(ctx context.Context) ([]*ClientInfo, error) {
	sessions := s.relay.Registry().List()

	result := make([]*ClientInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, clientInfo(sess))
	}
	return result, nil
}

// GetClient returns a single live client
func (s *relayServiceImpl) GetClient(ctx context.Context, id protocol.ClientID) (*ClientInfo, error) {
	sess, err := s.relay.Registry().Get(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, fmt.Errorf("client %d: %w", id, ErrClientNotFound)
		}
		return nil, err
	}
	return clientInfo(sess), nil
}

// DisconnectClient tears down a live client as if its socket had failed
func (s *relayServiceImpl) DisconnectClient(ctx context.Context, id protocol.ClientID) error {
	if err := s.relay.Disconnect(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return fmt.Errorf("client %d: %w", id, ErrClientNotFound)
		}
		return err
	}
	return nil
}

// Stats returns relay counters
func (s *relayServiceImpl) Stats(ctx context.Context) (*Stats, error) {
	st := s.relay.Stats()
	return &Stats{
		InstanceID:    st.InstanceID,
		StartedAt:     st.StartedAt,
		UptimeSeconds: time.Since(st.StartedAt).Seconds(),
		ActiveClients: st.Active,
		TotalAdmitted: st.Admitted,
		Updates:       st.Updates,
		Deliveries:    st.Deliveries,
		Drops:         st.Drops,
		Rejected:      st.Rejected,
		Departures:    st.Departures,
	}, nil
}

func clientInfo(sess *session.Session) *ClientInfo {
	info := &ClientInfo{
		ID:          sess.ID(),
		Transport:   sess.Transport(),
		RemoteAddr:  sess.RemoteAddr(),
		ConnectedAt: sess.ConnectedAt(),
		State:       sess.State().String(),
		Updates:     sess.Updates(),
		Dropped:     sess.Dropped(),
		Queued:      sess.Pending(),
	}
	if pos, ok := sess.Position(); ok {
		info.Position = &pos
		lastUpdate := sess.LastUpdate()
		info.LastUpdate = &lastUpdate
	}
	return info
}
