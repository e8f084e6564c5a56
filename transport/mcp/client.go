package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/posrelay/protocol"
	"github.com/wricardo/posrelay/service"
)

// Client is a thin MCP client that proxies to the admin REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the admin API at baseURL
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Position Relay",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Position Relay - MCP Interface

This is a thin client that proxies all requests to the relay's admin API.

The relay accepts TCP and WebSocket clients, gives each a numeric id, and
forwards every client's position updates to all other connected clients.

AVAILABLE TOOLS:
- relay_stats: Uptime, active clients and traffic counters
- list_clients: All connected clients with their last position
- get_client: Details for one client
- disconnect_client: Close one client's connection (other clients are told it left)`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "relay_stats",
		Description: "Get relay uptime, active client count and traffic counters",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleRelayStats)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_clients",
		Description: "List all connected clients",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListClients)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_client",
		Description: "Get details of a specific client",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"client_id": map[string]interface{}{
					"type":        "integer",
					"description": "Client ID to retrieve",
				},
			},
			Required: []string{"client_id"},
		},
	}, c.handleGetClient)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "disconnect_client",
		Description: "Disconnect a client; remaining clients receive a player_left record",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"client_id": map[string]interface{}{
					"type":        "integer",
					"description": "Client ID to disconnect",
				},
			},
			Required: []string{"client_id"},
		},
	}, c.handleDisconnectClient)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeStdio serves the MCP tools over stdin/stdout until the peer hangs up
func (c *Client) ServeStdio() error {
	return server.ServeStdio(c.mcpServer)
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// clientIDArg accepts the id as a JSON number or a numeric string.
func clientIDArg(request mcp.CallToolRequest) (protocol.ClientID, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	switch v := args["client_id"].(type) {
	case float64:
		if v < 1 || v != float64(uint64(v)) {
			return 0, fmt.Errorf("invalid client_id %v", v)
		}
		return protocol.ClientID(v), nil
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			return 0, fmt.Errorf("invalid client_id %q", v)
		}
		return protocol.ClientID(id), nil
	default:
		return 0, fmt.Errorf("client_id is required")
	}
}

// Tool handlers

func (c *Client) handleRelayStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats service.Stats
	if err := c.apiCall(ctx, "GET", "/api/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatStats(&stats)), nil
}

func (c *Client) handleListClients(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count   int                  `json:"count"`
		Clients []service.ClientInfo `json:"clients"`
	}

	if err := c.apiCall(ctx, "GET", "/api/clients", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Connected Clients (%d):\n\n", response.Count)
	for i := range response.Clients {
		result += "- " + formatClientLine(&response.Clients[i]) + "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetClient(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := clientIDArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var info service.ClientInfo
	if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/clients/%d", id), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatClientInfo(&info)), nil
}

func (c *Client) handleDisconnectClient(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := clientIDArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response map[string]string
	if err := c.apiCall(ctx, "DELETE", fmt.Sprintf("/api/clients/%d", id), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(response["message"]), nil
}

// Formatting helpers

func formatPosition(pos *protocol.Position) string {
	if pos == nil {
		return "no position yet"
	}
	return fmt.Sprintf("(%g, %g)", pos.X, pos.Y)
}

func formatClientLine(info *service.ClientInfo) string {
	return fmt.Sprintf("#%d %s %s at %s",
		info.ID, info.Transport, info.RemoteAddr, formatPosition(info.Position))
}

func formatClientInfo(info *service.ClientInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Client #%d\n", info.ID)
	fmt.Fprintf(&b, "Transport: %s\n", info.Transport)
	fmt.Fprintf(&b, "Remote: %s\n", info.RemoteAddr)
	fmt.Fprintf(&b, "State: %s\n", info.State)
	fmt.Fprintf(&b, "Connected: %s\n", info.ConnectedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Position: %s\n", formatPosition(info.Position))
	if info.LastUpdate != nil {
		fmt.Fprintf(&b, "Last update: %s\n", info.LastUpdate.Format("15:04:05.000"))
	}
	fmt.Fprintf(&b, "Updates sent: %d\n", info.Updates)
	fmt.Fprintf(&b, "Deliveries dropped: %d\n", info.Dropped)
	fmt.Fprintf(&b, "Queued: %d\n", info.Queued)
	return b.String()
}

func formatStats(stats *service.Stats) string {
	uptime := time.Duration(stats.UptimeSeconds * float64(time.Second)).Round(time.Second)

	var b strings.Builder
	fmt.Fprintf(&b, "Instance: %s\n", stats.InstanceID)
	fmt.Fprintf(&b, "Uptime: %s\n", uptime)
	fmt.Fprintf(&b, "Active clients: %d\n", stats.ActiveClients)
	fmt.Fprintf(&b, "Total admitted: %d\n", stats.TotalAdmitted)
	fmt.Fprintf(&b, "Updates: %d\n", stats.Updates)
	fmt.Fprintf(&b, "Deliveries: %d\n", stats.Deliveries)
	fmt.Fprintf(&b, "Dropped: %d\n", stats.Drops)
	fmt.Fprintf(&b, "Rejected records: %d\n", stats.Rejected)
	fmt.Fprintf(&b, "Departures: %d\n", stats.Departures)
	return b.String()
}
