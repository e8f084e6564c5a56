package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/posrelay/protocol"
	"github.com/wricardo/posrelay/relay"
	"github.com/wricardo/posrelay/session"
)

const (
	transportName = "websocket"

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
)

// Config controls the WebSocket transport.
type Config struct {
	// MaxRecordSize bounds each record within a frame. Longer records are
	// rejected like malformed ones.
	MaxRecordSize int
	// MaxFrameSize bounds a whole inbound frame. A larger frame ends the
	// session. Defaults to DefaultFrameRecords records of MaxRecordSize.
	MaxFrameSize int

	WriteTimeout          time.Duration
	DisconnectOnMalformed bool
	// CheckOrigin overrides the upgrader origin check. Nil allows all origins.
	CheckOrigin func(r *http.Request) bool
}

// Hub upgrades HTTP requests to WebSocket connections and joins each one to
// the relay as a session.
type Hub struct {
	relay    *relay.Relay
	upgrader websocket.Upgrader
	config   Config
	logger   logrus.FieldLogger
	conns    sync.WaitGroup
}

// Client is one upgraded connection bound to its relay session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *session.Session
}

// NewHub creates a WebSocket hub feeding r.
func NewHub(r *relay.Relay, config Config, logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if config.MaxRecordSize <= 0 {
		config.MaxRecordSize = protocol.DefaultMaxRecordSize
	}
	if config.MaxFrameSize <= 0 {
		config.MaxFrameSize = config.MaxRecordSize * protocol.DefaultFrameRecords
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = writeWait
	}

	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	return &Hub{
		relay: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		config: config,
		logger: logger.WithField("transport", transportName),
	}
}

// ServeHTTP handles WebSocket requests from clients.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	sess, err := h.relay.Join(transportName, conn)
	if err != nil {
		h.logger.WithError(err).Warn("Rejected WebSocket connection")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	client := &Client{
		hub:     h,
		conn:    conn,
		session: sess,
	}

	h.conns.Add(2)
	go client.writePump()
	go client.readPump()
}

// Wait blocks until every pump started by this hub has exited.
func (h *Hub) Wait() {
	h.conns.Wait()
}

// readPump pumps records from the WebSocket connection to the relay. A text
// frame may carry several newline-separated records.
func (c *Client) readPump() {
	var cause error
	defer func() {
		c.hub.relay.Leave(c.session, cause)
		c.hub.conns.Done()
	}()

	c.conn.SetReadLimit(int64(c.hub.config.MaxFrameSize))

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cause = err
			}
			return
		}

		for _, record := range protocol.SplitFrame(frame) {
			pos, err := c.decode(record)
			if err != nil {
				c.hub.relay.Reject(c.session, err)
				if c.hub.config.DisconnectOnMalformed {
					cause = err
					return
				}
				continue
			}
			if _, err := c.hub.relay.Update(c.session, pos); err != nil {
				c.hub.relay.Reject(c.session, err)
			}
		}
	}
}

func (c *Client) decode(record []byte) (protocol.Position, error) {
	if len(record) > c.hub.config.MaxRecordSize {
		return protocol.Position{}, &protocol.DecodeError{Err: protocol.ErrRecordTooLarge}
	}
	return protocol.DecodeClientUpdate(record)
}

// writePump pumps queued records to the WebSocket connection, one text
// frame per record.
func (c *Client) writePump() {
	var cause error
	defer func() {
		c.hub.relay.Leave(c.session, cause)
		c.hub.conns.Done()
	}()

	for {
		select {
		case record := <-c.session.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if cause = c.conn.WriteMessage(websocket.TextMessage, record); cause != nil {
				return
			}

		case <-c.session.Done():
			return
		}
	}
}
