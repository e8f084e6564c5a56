package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wricardo/posrelay/protocol"
	"github.com/wricardo/posrelay/service"
)

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("Expected result, got nil")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8081/"
	client := NewClient(baseURL)

	if client.baseURL != "http://localhost:8081" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var response map[string]string
	if err := client.apiCall(context.Background(), "GET", "/api/health", nil, &response); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if response["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", response)
	}
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://invalid-url-that-does-not-exist:9999")

	if err := client.apiCall(context.Background(), "GET", "/api", nil, nil); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/api", nil, nil)
	if err == nil {
		t.Fatal("Expected error for HTTP 500 response")
	}
	if !strings.Contains(err.Error(), "API error") {
		t.Errorf("Expected 'API error' in error message, got: %v", err)
	}
}

func TestClient_handleRelayStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" || r.URL.Path != "/api/stats" {
			t.Errorf("Expected GET /api/stats, got %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(service.Stats{
			InstanceID:    "inst-1",
			UptimeSeconds: 90,
			ActiveClients: 3,
			TotalAdmitted: 7,
			Drops:         2,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.handleRelayStats(context.Background(), toolRequest("relay_stats", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handleRelayStats failed: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{"Instance: inst-1", "Uptime: 1m30s", "Active clients: 3", "Total admitted: 7", "Dropped: 2"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output, got: %s", want, text)
		}
	}
}

func TestClient_handleListClients(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count": 2,
			"clients": []service.ClientInfo{
				{ID: 1, Transport: "tcp", RemoteAddr: "10.0.0.1:5000", Position: &protocol.Position{X: 1.5, Y: -2}},
				{ID: 2, Transport: "websocket", RemoteAddr: "10.0.0.2:5000"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.handleListClients(context.Background(), toolRequest("list_clients", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handleListClients failed: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{"Connected Clients (2)", "#1 tcp 10.0.0.1:5000 at (1.5, -2)", "#2 websocket 10.0.0.2:5000 at no position yet"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output, got: %s", want, text)
		}
	}
}

func TestClient_handleGetClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/clients/4" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "client not found"})
			return
		}
		last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		json.NewEncoder(w).Encode(service.ClientInfo{
			ID: 4, Transport: "tcp", State: "active",
			Position: &protocol.Position{X: 3, Y: 4}, LastUpdate: &last, Updates: 12,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	t.Run("numeric id", func(t *testing.T) {
		result, err := client.handleGetClient(ctx, toolRequest("get_client", map[string]interface{}{"client_id": float64(4)}))
		if err != nil {
			t.Fatalf("handleGetClient failed: %v", err)
		}
		text := resultText(t, result)
		for _, want := range []string{"Client #4", "State: active", "Position: (3, 4)", "Updates sent: 12"} {
			if !strings.Contains(text, want) {
				t.Errorf("Expected %q in output, got: %s", want, text)
			}
		}
	})

	t.Run("string id", func(t *testing.T) {
		result, _ := client.handleGetClient(ctx, toolRequest("get_client", map[string]interface{}{"client_id": "4"}))
		if result.IsError {
			t.Errorf("Expected success for string id, got %s", resultText(t, result))
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		result, _ := client.handleGetClient(ctx, toolRequest("get_client", map[string]interface{}{"client_id": float64(5)}))
		if !result.IsError || !strings.Contains(resultText(t, result), "client not found") {
			t.Errorf("Expected not found error, got %+v", result)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		for _, arg := range []interface{}{nil, float64(0), float64(1.5), "abc"} {
			result, _ := client.handleGetClient(ctx, toolRequest("get_client", map[string]interface{}{"client_id": arg}))
			if !result.IsError {
				t.Errorf("Expected error for client_id %v", arg)
			}
		}
	})
}

func TestClient_handleDisconnectClient(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{"message": "Client 9 disconnected"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.handleDisconnectClient(context.Background(), toolRequest("disconnect_client", map[string]interface{}{"client_id": float64(9)}))
	if err != nil {
		t.Fatalf("handleDisconnectClient failed: %v", err)
	}

	if gotMethod != "DELETE" || gotPath != "/api/clients/9" {
		t.Errorf("Expected DELETE /api/clients/9, got %s %s", gotMethod, gotPath)
	}
	if text := resultText(t, result); text != "Client 9 disconnected" {
		t.Errorf("Unexpected output %q", text)
	}
}
