package config

import (
	"time"

	"github.com/wricardo/posrelay/protocol"
	"github.com/wricardo/posrelay/session"
)

// Default values for optional configuration fields.
const (
	DefaultAddr              = "127.0.0.1:8080"
	DefaultMaxRecordSize     = protocol.DefaultMaxRecordSize
	DefaultOutboundQueueSize = session.DefaultQueueSize
	DefaultWriteTimeout      = 10 * time.Second
	DefaultAdminAddr         = "127.0.0.1:8081"
	DefaultWebSocketPath     = "/ws"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Admin:     AdminConfig{Enabled: true},
		WebSocket: WebSocketConfig{Enabled: true},
		Server:    ServerConfig{WriteTimeout: DefaultWriteTimeout},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.MaxRecordSize == 0 {
		c.Server.MaxRecordSize = DefaultMaxRecordSize
	}
	if c.Server.OutboundQueueSize == 0 {
		c.Server.OutboundQueueSize = DefaultOutboundQueueSize
	}

	if c.Admin.Addr == "" {
		c.Admin.Addr = DefaultAdminAddr
	}
	if c.WebSocket.Path == "" {
		c.WebSocket.Path = DefaultWebSocketPath
	}
	if c.WebSocket.MaxFrameSize == 0 {
		c.WebSocket.MaxFrameSize = c.Server.MaxRecordSize * protocol.DefaultFrameRecords
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
