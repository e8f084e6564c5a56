package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/posrelay/protocol"
	"github.com/wricardo/posrelay/relay"
	"github.com/wricardo/posrelay/session"
)

const transportName = "tcp"

// Config controls the TCP acceptor and its per-connection loops.
type Config struct {
	Addr                  string
	MaxRecordSize         int
	WriteTimeout          time.Duration // 0 disables the write deadline
	DisconnectOnMalformed bool
}

// BindError reports that the listen address could not be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Server accepts TCP clients and runs a read loop and a write loop for each.
type Server struct {
	relay  *relay.Relay
	config Config
	logger logrus.FieldLogger
	conns  sync.WaitGroup
}

// NewServer creates a TCP server feeding r.
func NewServer(r *relay.Relay, config Config, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if config.MaxRecordSize <= 0 {
		config.MaxRecordSize = protocol.DefaultMaxRecordSize
	}
	return &Server{
		relay:  r,
		config: config,
		logger: logger.WithField("transport", transportName),
	}
}

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return nil, &BindError{Addr: s.config.Addr, Err: err}
	}
	return ln, nil
}

// ListenAndServe binds the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or ln is closed. A failed
// Accept is logged and retried with backoff. Serve closes ln on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	s.logger.Infof("Relay listening on %s", ln.Addr())

	b := &backoff.Backoff{
		Min:    5 * time.Millisecond,
		Max:    time.Second,
		Factor: 2,
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			delay := b.Duration()
			s.logger.WithError(err).Warnf("Failed to accept connection, retrying in %v", delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		b.Reset()
		s.handle(conn)
	}
}

// Wait blocks until every connection loop started by this server has exited.
func (s *Server) Wait() {
	s.conns.Wait()
}

func (s *Server) handle(conn net.Conn) {
	sess, err := s.relay.Join(transportName, conn)
	if err != nil {
		s.logger.WithError(err).WithField("remote_addr", conn.RemoteAddr().String()).Warn("Rejected connection")
		conn.Close()
		return
	}

	s.conns.Add(2)
	go s.readLoop(sess, conn)
	go s.writeLoop(sess, conn)
}

// readLoop decodes client updates and hands them to the relay until the
// connection fails or closes.
func (s *Server) readLoop(sess *session.Session, conn net.Conn) {
	var cause error
	defer func() {
		s.relay.Leave(sess, cause)
		s.conns.Done()
	}()

	reader := protocol.NewReader(conn, s.config.MaxRecordSize)
	for {
		pos, err := nextUpdate(reader)
		if err != nil {
			if !protocol.IsDecodeError(err) {
				cause = err
				return
			}
			s.relay.Reject(sess, err)
			if s.config.DisconnectOnMalformed {
				cause = err
				return
			}
			continue
		}

		if _, err := s.relay.Update(sess, pos); err != nil {
			s.relay.Reject(sess, err)
		}
	}
}

func nextUpdate(reader *protocol.Reader) (protocol.Position, error) {
	record, err := reader.ReadRecord()
	if err != nil {
		return protocol.Position{}, err
	}
	return protocol.DecodeClientUpdate(record)
}

// writeLoop drains the session's queue to the socket, batching whatever is
// already queued into one flush.
func (s *Server) writeLoop(sess *session.Session, conn net.Conn) {
	var cause error
	defer func() {
		s.relay.Leave(sess, cause)
		s.conns.Done()
	}()

	w := bufio.NewWriter(conn)
	outbound := sess.Outbound()

	for {
		select {
		case record := <-outbound:
			if s.config.WriteTimeout > 0 {
				conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			}
			if cause = protocol.WriteRecord(w, record); cause != nil {
				return
			}

		batch:
			for n := len(outbound); n > 0; n-- {
				select {
				case record := <-outbound:
					if cause = protocol.WriteRecord(w, record); cause != nil {
						return
					}
				default:
					break batch
				}
			}

			if cause = w.Flush(); cause != nil {
				return
			}

		case <-sess.Done():
			return
		}
	}
}
