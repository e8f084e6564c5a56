// Package api provides the admin HTTP API for the position relay.
//
// The api package implements:
//   - Health and statistics endpoints
//   - Client listing and inspection
//   - Operator-initiated disconnects
//   - Mounting the WebSocket transport on the same router
//
// Endpoints:
//
//   - GET /api/health - Liveness check
//   - GET /api/stats - Relay counters and uptime
//   - GET /api/clients - List connected clients
//   - GET /api/clients/{id} - Inspect one client
//   - DELETE /api/clients/{id} - Disconnect one client
//   - GET /ws - WebSocket transport (when a hub is supplied)
//
// Usage:
//
//	svc := service.NewRelayService(r)
//	hub := websocket.NewHub(r, websocket.Config{}, logger)
//	handler := api.NewServer(svc, hub, "/ws")
//	http.ListenAndServe("127.0.0.1:8081", handler)
//
// Error Handling:
//
// Errors are returned as JSON with an appropriate HTTP status code: 400 for
// a malformed client id, 404 for an unknown client.
//
//	{
//	  "error": "client 7: client not found"
//	}
package api
