package service

import (
	"context"
	"errors"

	"github.com/wricardo/posrelay/protocol"
)

var ErrClientNotFound = errors.New("client not found")

// RelayService defines the admin operations over a running relay
type RelayService interface {
	ListClients(ctx context.Context) ([]*ClientInfo, error)
	GetClient(ctx context.Context, id protocol.ClientID) (*ClientInfo, error)
	DisconnectClient(ctx context.Context, id protocol.ClientID) error
	Stats(ctx context.Context) (*Stats, error)
}
