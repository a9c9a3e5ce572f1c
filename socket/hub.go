package socket

import (
	"encoding/json"
	"sync"

	"freightlink/logger"

	"github.com/gofiber/websocket/v2"
)

// client pairs a connection with its write lock. The websocket protocol
// allows at most one concurrent writer per connection, and approvals on two
// shipments of the same carrier can publish at the same time.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Hub tracks the live websocket connection of each carrier, keyed by the
// carrier's uuid. Delivery is best-effort: a disconnected carrier misses the
// push and catches up through the checkpoint snapshot poll.
type Hub struct {
	clients map[string]*client
	mu      sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
	}
}

// Register adds a carrier connection to the hub, replacing any prior one.
func (h *Hub) Register(carrierUuid string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[carrierUuid] = &client{conn: conn}
	logger.Info("WebSocket client registered: " + carrierUuid)
}

// Unregister removes a carrier connection from the hub.
func (h *Hub) Unregister(carrierUuid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[carrierUuid]; ok {
		delete(h.clients, carrierUuid)
		logger.Info("WebSocket client unregistered: " + carrierUuid)
	}
}

// IsConnected reports whether a carrier currently holds a live connection.
func (h *Hub) IsConnected(carrierUuid string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[carrierUuid]
	return ok
}

// Send writes a raw message to one carrier, serializing writes to the
// connection. An absent client is not an error; they may simply be offline.
func (h *Hub) Send(carrierUuid string, message []byte) error {
	h.mu.RLock()
	cl, ok := h.clients[carrierUuid]
	h.mu.RUnlock()

	if !ok {
		logger.Debug("WebSocket client not found, skipping push: " + carrierUuid)
		return nil
	}

	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	return cl.conn.WriteMessage(websocket.TextMessage, message)
}

// PublishToCarrier marshals an event and pushes it to the carrier's
// subscription. Failures are logged, never propagated: the publish happens
// strictly after the state transition it announces.
func (h *Hub) PublishToCarrier(carrierUuid string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal websocket event", err)
		return
	}

	if err := h.Send(carrierUuid, payload); err != nil {
		logger.Error("Failed to push websocket event to "+carrierUuid, err)
	}
}
