package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/rail-logic-core/internal/auth"
	"github.com/nerrad567/rail-logic-core/internal/dispatcher"
	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeSnapshot    = "snapshot"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 256
)

// WSMessage is one frame in either direction. Channel and Seq are set on
// events only.
type WSMessage struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Seq       uint64    `json:"seq,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Payload   any       `json:"payload,omitempty"`
}

// wsRequest is an inbound frame with the payload left undecoded.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// LayoutSnapshot is the reply to a snapshot request: the whole layout
// state as the REST list endpoints return it.
type LayoutSnapshot struct {
	Seq         uint64                        `json:"seq"`
	Booster     interlock.BoosterState        `json:"booster"`
	Tracks      []interlock.TrackSnapshot     `json:"tracks"`
	Routes      []interlock.RouteSnapshot     `json:"routes"`
	Feedbacks   []interlock.FeedbackSnapshot  `json:"feedbacks"`
	Accessories []interlock.AccessorySnapshot `json:"accessories"`
	Locos       []loco.Snapshot               `json:"locos"`
}

// Channels lists the event channels a client may subscribe to. "*"
// subscribes to all of them.
var Channels = []string{
	dispatcher.ChannelLocoState,
	dispatcher.ChannelLocoSpeed,
	dispatcher.ChannelDestinationReached,
	dispatcher.ChannelTrackState,
	dispatcher.ChannelRouteState,
	dispatcher.ChannelFeedbackState,
	dispatcher.ChannelAccessoryState,
	dispatcher.ChannelBoosterState,
}

// WSClient is one connected operator panel.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	username string
	role     auth.Role

	// snapshot builds the reply to a snapshot request.
	snapshot func() LayoutSnapshot

	mu            sync.RWMutex
	send          chan []byte
	closed        bool
	subscriptions map[string]struct{}
}

// CORS middleware decides on origins; the upgrade itself accepts any.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket upgrades GET /ws?ticket=... after redeeming the
// single-use ticket from POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.validateTicket(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		username:      entry.username,
		role:          entry.role,
		snapshot:      s.layoutSnapshot,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

// layoutSnapshot reads the current state. Seq is taken first, so every
// event after it is newer than the snapshot or already reflected in it.
func (s *Server) layoutSnapshot() LayoutSnapshot {
	return LayoutSnapshot{
		Seq:         s.hub.seq.Load(),
		Booster:     s.dispatcher.Booster(),
		Tracks:      s.dispatcher.Tracks(),
		Routes:      s.dispatcher.Routes(),
		Feedbacks:   s.dispatcher.Feedbacks(),
		Accessories: s.dispatcher.Accessories(),
		Locos:       s.dispatcher.Locos(),
	}
}

func (c *WSClient) deadlines() (pingInterval, pongWait time.Duration) {
	return time.Duration(c.hub.cfg.PingInterval) * time.Second,
		time.Duration(c.hub.cfg.PongTimeout) * time.Second
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	pingInterval, pongWait := c.deadlines()
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	extend() //nolint:errcheck // read error surfaces below
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "username", c.username, "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		extend() //nolint:errcheck // read error surfaces on next read
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump() {
	pingInterval, pongWait := c.deadlines()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(pongWait)) //nolint:errcheck // write error surfaces below
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // connection is going away
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.handleSubscription(req)
	case WSTypeSnapshot:
		if c.snapshot == nil {
			c.sendError(req.ID, "snapshot unavailable")
			return
		}
		c.reply(req.ID, WSTypeSnapshot, c.snapshot())
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

// handleSubscription applies a subscribe or unsubscribe request.
func (c *WSClient) handleSubscription(req wsRequest) {
	var body WSSubscribePayload
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &body); err != nil {
			c.sendError(req.ID, "invalid "+req.Type+" payload")
			return
		}
	}
	channels, err := expandChannels(body.Channels)
	if err != nil {
		c.sendError(req.ID, err.Error())
		return
	}

	c.mu.Lock()
	for _, ch := range channels {
		if req.Type == WSTypeSubscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "subscribed"
	if req.Type == WSTypeUnsubscribe {
		key = "unsubscribed"
	}
	c.hub.logger.Debug("websocket "+req.Type, "username", c.username, "channels", channels)
	c.reply(req.ID, WSTypeResponse, map[string]any{key: channels})
}

// trySend queues data without blocking. It reports false when the queue
// is full; a closed client swallows data and reports true.
func (c *WSClient) trySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send queue once; writePump then says goodbye.
func (c *WSClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket reply", "type", msgType, "error", err)
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}

// expandChannels resolves "*" and rejects unknown channel names.
func expandChannels(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, fmt.Errorf("no channels given")
	}
	out := make([]string, 0, len(requested))
	for _, ch := range requested {
		if ch == "*" {
			return slices.Clone(Channels), nil
		}
		if !slices.Contains(Channels, ch) {
			return nil, fmt.Errorf("unknown channel: %s", ch)
		}
		out = append(out, ch)
	}
	return out, nil
}
