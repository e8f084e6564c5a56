// Package service provides the admin view over the position relay.
//
// The service package implements:
//   - Listing and inspecting connected clients
//   - Operator-initiated disconnects
//   - Relay-wide counters
//
// Core Interfaces:
//
// RelayService is the interface the admin transports (HTTP and MCP) depend
// on. It reads registry and relay state and never touches sockets directly;
// DisconnectClient goes through the same teardown as a socket error, so the
// remaining clients still receive a player_left record.
//
// Usage:
//
//	registry := session.NewRegistry(session.Options{})
//	r := relay.New(registry, logger)
//	svc := service.NewRelayService(r)
//
//	clients, err := svc.ListClients(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
package service
