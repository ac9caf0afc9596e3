package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/infrastructure/config"
	"github.com/nerrad567/rail-logic-core/internal/infrastructure/logging"
)

// HubStats counts WebSocket event delivery.
type HubStats struct {
	Clients int    `json:"clients"`
	Events  uint64 `json:"events"`
	Dropped uint64 `json:"dropped"`
}

// Hub fans dispatcher events out to WebSocket clients. It implements
// dispatcher.Hub.
//
// Every event gets a sequence number from one hub-wide counter. A client
// whose send buffer is full misses the event; the gap in seq tells it to
// request a fresh snapshot.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewHub creates a hub. Zero limits fall back to 8 KiB messages, a 30 s
// ping interval and a 10 s pong timeout.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 8192
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "username", client.username, "clients", n)
}

// Unregister removes a client and closes its send queue. Repeated calls
// are no-ops.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		client.closeSend()
		h.logger.Debug("websocket client disconnected", "username", client.username, "clients", n)
	}
}

// Broadcast sends payload to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		Channel:   channel,
		Seq:       h.seq.Add(1),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "channel", channel, "error", err)
		return
	}

	// Clients are copied out so no client lock is taken under the hub lock.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.isSubscribed(channel) {
			continue
		}
		if !c.trySend(data) {
			h.dropped.Add(1)
			h.logger.Warn("websocket client too slow, event dropped",
				"username", c.username, "channel", channel)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns delivery counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Clients: h.ClientCount(),
		Events:  h.seq.Load(),
		Dropped: h.dropped.Load(),
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		c.closeSend()
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}
