package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/device-console/internal/auth"
	"github.com/nerrad567/device-console/internal/device"
	"github.com/nerrad567/device-console/internal/infrastructure/config"
	"github.com/nerrad567/device-console/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// ChannelDevices carries device.created, device.updated and
	// device.deleted events.
	ChannelDevices = "devices"

	wsSendBufferSize = 64

	// sessionCheckTimeout bounds each re-validation of a client's session.
	sessionCheckTimeout = 5 * time.Second
)

// WSMessage is a frame sent to or from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// SessionResolver turns a session token back into a Session.
// *auth.Guard satisfies it.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) auth.Session
}

// Hub fans device events out to connected WebSocket clients. Each client's
// session is re-resolved before it is sent an event and on every ping, so
// logout, expiry and purge also end the feed.
type Hub struct {
	cfg      config.WebSocketConfig
	sessions SessionResolver
	logger   *logging.Logger
	clients  map[*WSClient]struct{}
	mu       sync.RWMutex
}

// WSClient is one connected, logged-in browser or script.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex

	userID    int64
	username  string
	sessionID string
	token     string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The session cookie is SameSite=Lax, which already keeps
		// cross-site pages from opening an authenticated feed.
		return true
	},
}

// NewHub creates a new WebSocket hub. sessions is required.
func NewHub(cfg config.WebSocketConfig, sessions SessionResolver, logger *logging.Logger) (*Hub, error) {
	if sessions == nil {
		return nil, errors.New("session resolver is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger.With("component", "websocket"),
		clients:  make(map[*WSClient]struct{}),
	}, nil
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.closeAll()
	return nil
}

// PublishDeviceEvent broadcasts ev on the devices channel.
func (h *Hub) PublishDeviceEvent(ctx context.Context, ev device.Event) error {
	h.Broadcast(ctx, ChannelDevices, ev)
	return nil
}

// DisconnectSession closes every connection opened under sessionID.
func (h *Hub) DisconnectSession(sessionID string) {
	if sessionID == "" {
		return
	}

	h.mu.RLock()
	var matched []*WSClient
	for client := range h.clients {
		if client.sessionID == sessionID {
			matched = append(matched, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range matched {
		h.Unregister(client)
	}
	if len(matched) > 0 {
		h.logger.Debug("websocket session ended", "connections", len(matched))
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "user_id", client.userID, "username", client.username, "clients", n)
}

// Unregister removes a client from the hub. Only the caller that removes
// the client from the map closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "user_id", client.userID, "clients", n)
}

// Broadcast sends payload to every client subscribed to channel whose
// session is still valid. Clients whose session has ended are
// disconnected instead. Slow clients with a full buffer miss the frame.
func (h *Hub) Broadcast(ctx context.Context, channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if !client.isSubscribed(channel) {
			continue
		}
		if !h.sessionValid(ctx, client) {
			h.Unregister(client)
			continue
		}
		client.trySend(data)
		sent++
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sessionValid reports whether client's session still resolves to the
// user that opened the connection.
func (h *Hub) sessionValid(ctx context.Context, client *WSClient) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCheckTimeout)
	defer cancel()

	sess := h.sessions.Resolve(ctx, client.token)
	return sess.Authenticated() && sess.ID() == client.sessionID
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades a logged-in request to the device event feed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil || !s.wsCfg.Enabled {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event feed is disabled")
		return
	}

	sess := auth.SessionFromContext(r.Context())
	if !sess.Authenticated() {
		writeUnauthorized(w, "login required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		userID:        sess.UserID(),
		username:      sess.Username(),
		sessionID:     sess.ID(),
		token:         sess.Token(),
	}
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	cfg := c.hub.cfg
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	if wait <= 0 {
		wait = 40 * time.Second
	}
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(wait))
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump() {
	cfg := c.hub.cfg
	interval := time.Duration(cfg.PingInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Write error is caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if !c.hub.sessionValid(context.Background(), c) {
				c.hub.Unregister(c)
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session ended"))
				return
			}
			//nolint:errcheck // Ping error is caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg struct {
		Type    string             `json:"type"`
		ID      string             `json:"id"`
		Payload WSSubscribePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.mu.Lock()
		for _, ch := range msg.Payload.Channels {
			c.subscriptions[ch] = struct{}{}
		}
		c.mu.Unlock()
		c.hub.logger.Debug("websocket client subscribed", "user_id", c.userID, "channels", msg.Payload.Channels)
		c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"subscribed": msg.Payload.Channels})
	case WSTypeUnsubscribe:
		c.mu.Lock()
		for _, ch := range msg.Payload.Channels {
			delete(c.subscriptions, ch)
		}
		c.mu.Unlock()
		c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": msg.Payload.Channels})
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// trySend queues data without blocking. A closed channel (client left
// mid-broadcast) or a full buffer drops the frame.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed channel
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
