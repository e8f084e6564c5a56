package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateAddr("server.addr", c.Server.Addr); err != nil {
		return err
	}
	if c.Server.MaxRecordSize < 16 {
		return fmt.Errorf("server.max_record_size must be >= 16, got %d", c.Server.MaxRecordSize)
	}
	if c.Server.OutboundQueueSize < 1 {
		return fmt.Errorf("server.outbound_queue_size must be >= 1, got %d", c.Server.OutboundQueueSize)
	}
	if c.Server.WriteTimeout < 0 {
		return errors.New("server.write_timeout must not be negative")
	}

	if c.Admin.Enabled {
		if err := validateAddr("admin.addr", c.Admin.Addr); err != nil {
			return err
		}
		if c.Admin.Addr == c.Server.Addr {
			return fmt.Errorf("admin.addr must differ from server.addr (%s)", c.Server.Addr)
		}
	}

	if c.WebSocket.Enabled {
		if !c.Admin.Enabled {
			return errors.New("websocket.enabled requires admin.enabled")
		}
		path := c.WebSocket.Path
		if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "/api") || path == "/mcp" {
			return fmt.Errorf("websocket.path must start with / and not collide with /api or /mcp, got %q", path)
		}
		if c.WebSocket.MaxFrameSize < c.Server.MaxRecordSize {
			return fmt.Errorf("websocket.max_frame_size must be >= server.max_record_size (%d), got %d",
				c.Server.MaxRecordSize, c.WebSocket.MaxFrameSize)
		}
	}

	if c.Ngrok.Enabled && c.Ngrok.Authtoken == "" {
		return errors.New("ngrok.authtoken is required when ngrok is enabled")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func validateAddr(field, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
