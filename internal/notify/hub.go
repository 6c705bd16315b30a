package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Authenticator resolves a bearer token to a user id.
type Authenticator func(token string) (string, error)

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub keeps the open notification sockets keyed by user id. A user may have
// several sockets; each gets every message.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	auth     Authenticator
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
}

func NewHub(auth Authenticator, logger *zap.SugaredLogger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients: map[string]map[*client]struct{}{},
		auth:    auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		metrics: m,
	}
}

// ServeHTTP upgrades an authenticated request to a notification socket.
// Browsers cannot set headers on websocket requests, so the token may also
// come from the "token" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
			token = strings.TrimSpace(a[len("bearer "):])
		}
	}
	userID, err := h.auth(token)
	if err != nil || userID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debugw("websocket upgrade failed", "err", err)
		return
	}
	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = map[*client]struct{}{}
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.logger.Debugw("websocket connected", "user", c.userID)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.userID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
}

// Connected returns the number of open sockets of userID.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Notify queues msg on every socket of recipientID. Full buffers drop the
// message.
func (h *Hub) Notify(_ context.Context, recipientID string, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warnw("notification encode failed", "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.clients[recipientID]
	if len(set) == 0 {
		h.metrics.Notification("offline")
		return
	}
	for c := range set {
		select {
		case c.send <- b:
			h.metrics.Notification("delivered")
		default:
			h.metrics.Notification("dropped")
		}
	}
}

// readPump only services control frames; clients do not send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
