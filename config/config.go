package config

import "time"

// Config is the root configuration for a relay process.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Admin     AdminConfig     `yaml:"admin"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Ngrok     NgrokConfig     `yaml:"ngrok"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the TCP relay settings.
type ServerConfig struct {
	Addr                  string        `yaml:"addr"`
	MaxRecordSize         int           `yaml:"max_record_size"`     // bytes per line, excluding the delimiter
	OutboundQueueSize     int           `yaml:"outbound_queue_size"` // per-session queue capacity
	WriteTimeout          time.Duration `yaml:"write_timeout"`       // 0 disables the per-write deadline
	DisconnectOnMalformed bool          `yaml:"disconnect_on_malformed"`
}

// AdminConfig holds the admin HTTP API settings.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// WebSocketConfig controls the WebSocket transport, served on the admin listener.
type WebSocketConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	MaxFrameSize int    `yaml:"max_frame_size"` // bytes per frame, which may hold several records
}

// NgrokConfig exposes the TCP relay through an ngrok TCP endpoint.
type NgrokConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Authtoken string `yaml:"authtoken"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}
