// Package ws pushes violation alerts to browser clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ppewatch/internal/detection"
	"ppewatch/internal/violation"
)

// AlertMessage is the wire format sent to subscribers.
type AlertMessage struct {
	Type       string         `json:"type"`
	Domain     string         `json:"domain"`
	Class      string         `json:"class"`
	Confidence float64        `json:"confidence"`
	BBox       detection.BBox `json:"bbox"`
	DetectedAt string         `json:"detected_at"`
	ImageRef   string         `json:"image_ref,omitempty"`
}

// AlertHub manages WebSocket connections for real-time violation alerts.
// Every connected client receives every alert.
type AlertHub struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewAlertHub creates an empty hub.
func NewAlertHub() *AlertHub {
	return &AlertHub{
		clients: make(map[*websocket.Conn]bool),
	}
}

// Register adds a connection to the broadcast set.
func (h *AlertHub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[conn] = true
	log.Printf("[WS] Client registered (total: %d)", len(h.clients))
}

// Unregister removes a connection from the broadcast set.
func (h *AlertHub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		log.Printf("[WS] Client unregistered (total: %d)", len(h.clients))
	}
}

// ClientCount returns the number of connected clients.
func (h *AlertHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to every connected client, dropping clients
// whose writes fail.
func (h *AlertHub) Broadcast(message []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("[WS] Error sending to client: %v", err)
			h.Unregister(conn)
			conn.Close()
		}
	}
}

// Notify implements alert delivery over the hub so it can be wired as a
// notification channel alongside webhooks.
func (h *AlertHub) Notify(_ context.Context, e violation.Event) error {
	if h.ClientCount() == 0 {
		return nil
	}

	msg := AlertMessage{
		Type:       "violation_alert",
		Domain:     e.Domain,
		Class:      e.Class,
		Confidence: e.Confidence,
		BBox:       e.BBox,
		DetectedAt: e.DetectedAt.Format("2006-01-02 15:04:05"),
		ImageRef:   e.ImageRef,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}
