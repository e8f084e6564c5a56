package service

import (
	"time"

	"github.com/wricardo/posrelay/protocol"
)

// ClientInfo describes one connected client
type ClientInfo struct {
	ID          protocol.ClientID  `json:"id"`
	Transport   string             `json:"transport"`
	RemoteAddr  string             `json:"remote_addr"`
	ConnectedAt time.Time          `json:"connected_at"`
	State       string             `json:"state"`
	Position    *protocol.Position `json:"position"` // nil until the first update
	LastUpdate  *time.Time         `json:"last_update,omitempty"`
	Updates     uint64             `json:"updates"`
	Dropped     uint64             `json:"dropped"`
	Queued      int                `json:"queued"`
}

// Stats summarizes relay activity since the process started
type Stats struct {
	InstanceID    string    `json:"instance_id"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	ActiveClients int       `json:"active_clients"`
	TotalAdmitted uint64    `json:"total_admitted"`
	Updates       uint64    `json:"updates"`
	Deliveries    uint64    `json:"deliveries"`
	Drops         uint64    `json:"drops"`
	Rejected      uint64    `json:"rejected"`
	Departures    uint64    `json:"departures"`
}
