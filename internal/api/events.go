package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kinedeck/kinedeck-agent/internal/review"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isAllowedOrigin(origin)
	},
}

const (
	wsSendBuffer   = 32
	wsWriteTimeout = 10 * time.Second
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans review events out to connected websocket clients. It implements
// review.Events, so the session layer stays unaware of the transport.
type Hub struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Emit broadcasts one event to every client. Clients with a full send
// buffer are skipped; a stalled tab must not block the review loop.
func (h *Hub) Emit(e review.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("event marshal failed", "type", e.Type, "error", err)
		}
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// ServeWS upgrades the request and streams events until the peer goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		if h.logger != nil {
			h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		}
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) writePump(c *wsClient) {
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// readPump discards inbound frames; the stream is one-way. It returns when
// the peer closes or errors, which tears the client down.
func (h *Hub) readPump(c *wsClient) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drop removes the client before closing its send channel. Emit holds the
// same mutex, so it can never send on a closed channel.
func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// ClientCount reports how many websocket clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
