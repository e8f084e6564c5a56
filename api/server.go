package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wricardo/posrelay/protocol"
	"github.com/wricardo/posrelay/service"
	"github.com/wricardo/posrelay/transport/websocket"
)

// DefaultWebSocketPath is where the WebSocket transport is mounted.
const DefaultWebSocketPath = "/ws"

// Server represents the admin REST API server
type Server struct {
	service service.RelayService
	hub     *websocket.Hub
	wsPath  string
	router  *mux.Router
}

// NewServer creates a new API server. hub may be nil to leave the WebSocket
// transport unmounted.
func NewServer(relayService service.RelayService, hub *websocket.Hub, wsPath string) *Server {
	if wsPath == "" {
		wsPath = DefaultWebSocketPath
	}

	s := &Server{
		service: relayService,
		hub:     hub,
		wsPath:  wsPath,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Full paths on the root router so a method mismatch answers 405.
	s.router.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/stats", s.handleStats).Methods("GET")

	// Clients
	s.router.HandleFunc("/api/clients", s.handleListClients).Methods("GET")
	s.router.HandleFunc("/api/clients/{id}", s.handleGetClient).Methods("GET")
	s.router.HandleFunc("/api/clients/{id}", s.handleDisconnectClient).Methods("DELETE")

	// WebSocket
	if s.hub != nil {
		s.router.Handle(s.wsPath, s.hub)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func clientID(r *http.Request) (protocol.ClientID, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid client id %q", raw)
	}
	return protocol.ClientID(id), nil
}

func errorStatus(err error) int {
	if errors.Is(err, service.ErrClientNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Client Handlers

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.service.ListClients(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"clients": clients,
		"count":   len(clients),
	})
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id, err := clientID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	client, err := s.service.GetClient(r.Context(), id)
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, client)
}

func (s *Server) handleDisconnectClient(w http.ResponseWriter, r *http.Request) {
	id, err := clientID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.service.DisconnectClient(r.Context(), id); err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Client %d disconnected", id),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
