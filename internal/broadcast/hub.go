// Package broadcast implements the viewer fanout (C5): a local hub of
// attached websocket viewers fed by the Redis ws_messages subscription.
package broadcast

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"plotsweep/internal/queue"
)

const (
	// PingInterval is the liveness ping cadence for attached viewers.
	PingInterval = 90 * time.Second
	// AnonymousViewerTTL bounds how long an unauthenticated viewer may stay
	// attached before the hub disconnects it to bound unfunded state.
	AnonymousViewerTTL = 24 * time.Hour
	// ServiceRestartCode is sent to every attached viewer on shutdown.
	ServiceRestartCode = 1012
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type Client struct {
	hub *Hub

	conn        *websocket.Conn
	send        chan []byte
	sweeperID   *int64
	connectedAt time.Time
}

func (c *Client) anonymous() bool { return c.sweeperID == nil }

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run is the hub's single cooperative loop. It owns the clients map so
// register/unregister/broadcast never race. On ctx cancellation every
// attached viewer is closed with the service-restart code.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(ServiceRestartCode, "restarting"),
					time.Now().Add(time.Second))
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case payload := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					// Slow consumer: drop it rather than block the fanout;
					// matches the best-effort delivery guarantee.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast multicasts payload to every attached viewer. Failures for
// individual sockets are collected silently by Run; the next ping cycle
// reaps anything left dangling.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case h.broadcast <- payload:
	default:
		log.Printf("[broadcast] hub backlog full, dropping message")
	}
}

// Subscribe bridges the Redis ws_messages channel into the local hub
// until ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, q *queue.Queue) {
	sub := q.Subscribe(ctx)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast([]byte(msg.Payload))
		}
	}
}

// Upgrade accepts a websocket connection and attaches it to the hub.
// sweeperID is non-nil when the caller already verified a session token.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, sweeperID *int64) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, 16),
		sweeperID:   sweeperID,
		connectedAt: time.Now(),
	}
	h.register <- c

	go c.writePump()
	go c.pingLoop()
	c.readPump()

	return nil
}

// RejectUpgrade completes the websocket handshake only to immediately close
// it with the given code and reason, used when the caller presented an
// auth token that failed verification (§4.5 step 1, §7 AuthFailure → WS
// policy-violation close). The client never gets registered with the hub.
func (h *Hub) RejectUpgrade(w http.ResponseWriter, r *http.Request, code int, reason string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second))
	return conn.Close()
}

// writePump drains send onto the socket until the hub closes the channel.
func (c *Client) writePump() {
	defer c.conn.Close()
	for payload := range c.send {
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(payload)
		w.Close()
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards viewer input (this is a push-only protocol) and
// unregisters the client the moment the connection drops.
func (c *Client) readPump() {
	defer func() { c.hub.unregister <- c }()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// pingLoop sends a liveness ping every PingInterval and disconnects
// anonymous viewers once they exceed AnonymousViewerTTL.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		// Run closes send under h.mu when it drops a viewer, so only send
		// while still attached and under the same lock.
		c.hub.mu.Lock()
		_, attached := c.hub.clients[c]
		sent := false
		if attached {
			select {
			case c.send <- []byte(`{"type":"ping"}`):
				sent = true
			default:
			}
		}
		c.hub.mu.Unlock()
		if !sent {
			return
		}
		if c.anonymous() && time.Since(c.connectedAt) > AnonymousViewerTTL {
			log.Printf("[broadcast] disconnecting anonymous viewer after %s", AnonymousViewerTTL)
			c.hub.unregister <- c
			return
		}
	}
}
