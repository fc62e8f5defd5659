// Package realtime pushes per-user events to websocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VitalSync/health_layer/internal/app/metrics"
	"github.com/VitalSync/health_layer/internal/logging"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	maxInboundBytes     = 4 << 10
	sendBuffer          = 32
)

// Event is the JSON frame delivered to subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub tracks open connections by user.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[*client]struct{}
	running bool
	closed  bool
	wg      sync.WaitGroup

	upgrader     websocket.Upgrader
	pingInterval time.Duration
	log          *logging.Logger
}

// NewHub creates a hub. Browsers must send an Origin from allowedOrigins;
// "*" accepts any origin and requests without an Origin header are always
// accepted.
func NewHub(allowedOrigins []string, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.NewDefault("realtime")
	}
	h := &Hub{
		clients:      make(map[string]map[*client]struct{}),
		pingInterval: defaultPingInterval,
		log:          log,
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[strings.TrimRight(origin, "/")]
		},
	}
	return h
}

func (h *Hub) Name() string { return "realtime-hub" }

func (h *Hub) Start(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("realtime hub already stopped")
	}
	h.running = true
	return nil
}

// Stop closes every connection and waits for their goroutines.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.running = false
	var all []*client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeWS upgrades the request and subscribes the connection to userID's events.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "realtime unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote the error response
		h.log.WithContext(r.Context()).WithError(err).Debug("websocket upgrade failed")
		return
	}

	c := &client{
		hub:    h,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}

	go c.writePump(h.pingInterval)
	go c.readPump()
}

// Publish delivers ev to every connection of userID and returns how many
// connections it was queued on. Connections that fall behind are dropped.
func (h *Hub) Publish(userID string, ev Event) int {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).WithField("event_type", ev.Type).Error("marshal realtime event")
		return 0
	}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	delivered := 0
	for _, c := range targets {
		select {
		case c.send <- payload:
			delivered++
		case <-c.done:
		default:
			h.log.WithField("user_id", userID).Warn("realtime subscriber too slow, dropping connection")
			c.close()
		}
	}
	return delivered
}

// Connections returns the number of open connections of userID.
func (h *Hub) Connections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	// counted under the lock so a concurrent Stop cannot Wait before the pumps exist
	h.wg.Add(2)
	metrics.RealtimeConnected(1)
	return true
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
	metrics.RealtimeConnected(-1)
}

type client struct {
	hub    *Hub
	userID string
	conn   *websocket.Conn
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump owns all writes and closes the connection on exit.
func (c *client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.hub.unregister(c)
		_ = c.conn.Close()
		c.hub.wg.Done()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

// readPump discards client frames and detects disconnects.
func (c *client) readPump() {
	defer func() {
		c.close()
		c.hub.wg.Done()
	}()

	// two missed pings close the connection
	deadline := 2*c.hub.pingInterval + writeWait
	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
