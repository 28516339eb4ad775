// Package server exposes the HTTP surface of the relay: the WebSocket
// upgrade endpoint, the backend notification side channel, and the health
// probe.
package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// NotifyRequest is the body of POST /notify-new-messages, sent by the
// backend when new data is available for a session.
type NotifyRequest struct {
	PayperviewID PayperviewID `json:"payperviewId" validate:"required"`
	Token        string       `json:"token"`
}

// Handlers bundles the HTTP handlers with the hub and dispatcher they
// operate on, so the whole surface can be constructed per instance instead
// of through package globals.
type Handlers struct {
	cfg        *Config
	hub        *Hub
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	validate   *validator.Validate
}

// NewHandlers wires the HTTP surface to a hub and dispatcher. The WebSocket
// upgrader enforces the configured origin allow-list.
func NewHandlers(cfg *Config, hub *Hub, dispatcher *Dispatcher) *Handlers {
	policy := newOriginPolicy(cfg.AllowedOrigins)
	return &Handlers{
		cfg:        cfg,
		hub:        hub,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		validate: validator.New(),
	}
}

// WebSocket handles upgrade requests and hands the resulting connection to
// the hub, which launches the client's read and write pumps.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, h.hub, h.dispatcher, r.RemoteAddr, h.cfg)
	h.hub.GetRegisterChan() <- client
}

// NotifyNewMessages lets the backend push an out-of-band refresh into a
// room: it fetches the session's history and broadcasts it as an
// updateMessages event. Unlike the socket paths, fetch failures surface as
// an explicit HTTP status to the caller.
func (h *Handlers) NotifyNewMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return
	}

	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "payperviewId is required"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "payperviewId is required"})
		return
	}

	if err := h.dispatcher.NotifyNewMessages(r.Context(), req.PayperviewID, req.Token); err != nil {
		log.Printf("Error fetching messages: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Failed to fetch messages."})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Data updated successfully."})
}

// Health provides a simple health check endpoint that returns server status.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat relay server is running."})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}
