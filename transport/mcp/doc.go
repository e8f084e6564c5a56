// Package mcp provides a Model Context Protocol server for operating the
// position relay.
//
// The mcp package implements:
//   - MCP server for AI agent integration
//   - Tool definitions for relay inspection and control
//   - Stdio transport
//
// MCP Tools:
//
// The package exposes the following tools:
//   - relay_stats: Uptime, client count and traffic counters
//   - list_clients: Every connected client with its last position
//   - get_client: Details for one client
//   - disconnect_client: Close one client's connection
//
// Architecture:
//
// Client does not touch the relay directly. Every tool call is proxied to
// the admin REST API, so the MCP server can run in a separate process from
// the relay it operates on.
//
// Usage:
//
//	client := mcp.NewClient("http://127.0.0.1:8081")
//	if err := client.ServeStdio(); err != nil {
//		log.Fatal(err)
//	}
package mcp
