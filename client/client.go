package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/posrelay/protocol"
)

const (
	// DefaultOutboundQueueSize bounds updates waiting to be written.
	DefaultOutboundQueueSize = 16

	// DefaultInboundLimit bounds updates received but not yet polled.
	DefaultInboundLimit = 4096
)

// ErrClosed is reported by Err once Close has been called.
var ErrClosed = errors.New("client closed")

// Options configures Dial. The zero value dials once with defaults.
type Options struct {
	// Retries is the number of extra dial attempts after the first fails.
	Retries int
	// MinBackoff and MaxBackoff bound the delay between attempts.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	OutboundQueueSize int
	InboundLimit      int
	MaxRecordSize     int
	Logger            logrus.FieldLogger
}

func (o *Options) applyDefaults() {
	if o.MinBackoff <= 0 {
		o.MinBackoff = 100 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Second
	}
	if o.OutboundQueueSize <= 0 {
		o.OutboundQueueSize = DefaultOutboundQueueSize
	}
	if o.InboundLimit <= 0 {
		o.InboundLimit = DefaultInboundLimit
	}
	if o.MaxRecordSize <= 0 {
		o.MaxRecordSize = protocol.DefaultMaxRecordSize
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// RemoteUpdate is one position reported by another client.
type RemoteUpdate struct {
	ID       protocol.ClientID
	Position protocol.Position
}

// Client is a connection to a relay.
type Client struct {
	conn     net.Conn
	opts     Options
	logger   logrus.FieldLogger
	outbound chan []byte

	mu         sync.Mutex
	id         protocol.ClientID
	welcomed   bool
	updates    []RemoteUpdate
	departures []protocol.ClientID
	dropped    uint64

	done      chan struct{}
	closeOnce sync.Once
	err       error
	loops     sync.WaitGroup
}

// Dial connects to the relay at addr, retrying with backoff up to
// opts.Retries times.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	opts.applyDefaults()

	b := &backoff.Backoff{
		Min:    opts.MinBackoff,
		Max:    opts.MaxBackoff,
		Factor: 2,
		Jitter: true,
	}

	var dialer net.Dialer
	for attempt := 0; ; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			c := newClient(conn, opts)
			c.start()
			return c, nil
		}
		if attempt >= opts.Retries || ctx.Err() != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}

		delay := b.Duration()
		opts.Logger.WithError(err).Warnf("Failed to connect to %s, retrying in %v", addr, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("dial %s: %w", addr, ctx.Err())
		}
	}
}

func newClient(conn net.Conn, opts Options) *Client {
	return &Client{
		conn:     conn,
		opts:     opts,
		logger:   opts.Logger.WithField("remote_addr", conn.RemoteAddr().String()),
		outbound: make(chan []byte, opts.OutboundQueueSize),
		done:     make(chan struct{}),
	}
}

func (c *Client) start() {
	c.loops.Add(2)
	go c.readLoop()
	go c.writeLoop()
}

// SendPosition queues an update without blocking. It reports false when the
// update was dropped because the queue is full, the coordinates cannot be
// encoded, or the client has stopped.
func (c *Client) SendPosition(x, y float64) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	record, err := protocol.EncodeClientUpdate(protocol.Position{X: x, Y: y})
	if err != nil {
		return false
	}

	select {
	case c.outbound <- record:
		return true
	default:
		return false
	}
}

// PollRemoteUpdates returns the updates received since the last call, in
// arrival order. Updates carrying this client's own id are never included.
func (c *Client) PollRemoteUpdates() []RemoteUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()

	updates := c.updates
	c.updates = nil
	return updates
}

// PollDepartures returns the ids of clients that left since the last call.
func (c *Client) PollDepartures() []protocol.ClientID {
	c.mu.Lock()
	defer c.mu.Unlock()

	departures := c.departures
	c.departures = nil
	return departures
}

// ID returns the id the relay assigned to this client. ok is false until
// the welcome record has arrived.
func (c *Client) ID() (id protocol.ClientID, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id, c.welcomed
}

// Dropped counts received updates discarded because nobody polled them.
func (c *Client) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Done is closed once the connection has stopped for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection stopped: io.EOF when the relay hung up,
// ErrClosed after Close, or the socket error. It is nil while running.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close disconnects and waits for the I/O goroutines to exit.
func (c *Client) Close() error {
	c.stop(ErrClosed)
	c.loops.Wait()
	return nil
}

// stop records the first cause and closes the connection.
func (c *Client) stop(cause error) {
	c.closeOnce.Do(func() {
		c.err = cause
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readLoop() {
	defer c.loops.Done()

	reader := protocol.NewReader(c.conn, c.opts.MaxRecordSize)
	for {
		record, err := reader.ReadRecord()
		if err != nil {
			if protocol.IsDecodeError(err) {
				c.logger.WithError(err).Debug("Skipping server record")
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				err = ErrClosed
			}
			c.stop(err)
			return
		}

		msg, err := protocol.DecodeServerMessage(record)
		if err != nil {
			c.logger.WithError(err).Debug("Skipping server record")
			continue
		}
		c.deliver(msg)
	}
}

func (c *Client) deliver(msg protocol.ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Type {
	case protocol.TypeWelcome:
		c.id = msg.ID
		c.welcomed = true
		c.logger.WithField("client_id", msg.ID).Info("Joined relay")
	case protocol.TypePosition:
		if c.welcomed && msg.ID == c.id {
			return
		}
		if len(c.updates) >= c.opts.InboundLimit {
			c.dropped++
			return
		}
		c.updates = append(c.updates, RemoteUpdate{ID: msg.ID, Position: msg.Position})
	case protocol.TypePlayerLeft:
		c.departures = append(c.departures, msg.ID)
	}
}

// writeLoop flushes whatever is queued in one write per wakeup.
func (c *Client) writeLoop() {
	defer c.loops.Done()

	w := bufio.NewWriter(c.conn)
	for {
		select {
		case record := <-c.outbound:
			if err := protocol.WriteRecord(w, record); err != nil {
				c.stop(writeCause(err))
				return
			}

		batch:
			for n := len(c.outbound); n > 0; n-- {
				select {
				case record := <-c.outbound:
					if err := protocol.WriteRecord(w, record); err != nil {
						c.stop(writeCause(err))
						return
					}
				default:
					break batch
				}
			}

			if err := w.Flush(); err != nil {
				c.stop(writeCause(err))
				return
			}

		case <-c.done:
			return
		}
	}
}

func writeCause(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	if errors.Is(err, io.ErrClosedPipe) {
		return io.EOF
	}
	return err
}
