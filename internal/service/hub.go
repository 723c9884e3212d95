package service

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Push event names
const (
	EventConnectionReady = "connection.ready"
	EventRoomEntered     = "room.entered"
	EventRoomMoved       = "room.moved"
	EventRoomEmoted      = "room.emoted"
	EventRoomLeft        = "room.left"
)

// Push is a server-initiated frame. It carries no acknowledgement.
type Push struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Connection is one live client link. It is ephemeral and never persisted.
type Connection struct {
	ID        string
	AccountID string // empty for guests
	Send      chan []byte
	Done      chan struct{}

	closeOnce sync.Once

	mu    sync.Mutex
	room  string
	layer string
}

// NewConnection creates a connection with a bounded outbound buffer
func NewConnection(id, accountID string, buffer int) *Connection {
	if buffer <= 0 {
		buffer = 1
	}
	return &Connection{
		ID:        id,
		AccountID: accountID,
		Send:      make(chan []byte, buffer),
		Done:      make(chan struct{}),
	}
}

// IsGuest returns true if the connection has no authenticated account
func (c *Connection) IsGuest() bool {
	return c.AccountID == ""
}

// Enqueue queues a frame without blocking. Returns false if the buffer is
// full or the connection is closed.
func (c *Connection) Enqueue(frame []byte) bool {
	select {
	case <-c.Done:
		return false
	default:
	}

	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// Close marks the connection done. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.Done)
	})
}

// Closed reports whether Close has been called
func (c *Connection) Closed() bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}

// cachedRoom returns the last room this connection entered, if still known
func (c *Connection) cachedRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Connection) setRoom(roomID string) {
	c.mu.Lock()
	c.room = roomID
	c.mu.Unlock()
}

func (c *Connection) cachedLayer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layer
}

func (c *Connection) setLayer(layerID string) {
	c.mu.Lock()
	c.layer = layerID
	c.mu.Unlock()
}

// ConnectionHub tracks live connections and fans pushes out to them.
// Delivery is best effort: unknown, closed or backed-up connections are skipped.
type ConnectionHub struct {
	mu      sync.RWMutex
	conns   map[string]*Connection
	dropped atomic.Uint64
}

// NewConnectionHub creates a new connection hub
func NewConnectionHub() *ConnectionHub {
	return &ConnectionHub{
		conns: make(map[string]*Connection),
	}
}

// Register adds a connection to the hub
func (h *ConnectionHub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.ID] = conn
}

// Unregister removes a connection and closes it. Returns nil if it was
// already gone.
func (h *ConnectionHub) Unregister(connectionID string) *Connection {
	h.mu.Lock()
	conn, ok := h.conns[connectionID]
	if ok {
		delete(h.conns, connectionID)
	}
	h.mu.Unlock()

	if !ok {
		return nil
	}
	conn.Close()
	return conn
}

// Get returns a registered connection
func (h *ConnectionHub) Get(connectionID string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[connectionID]
	return conn, ok
}

// Count returns the number of registered connections
func (h *ConnectionHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Dropped returns how many pushes were skipped because a buffer was full
func (h *ConnectionHub) Dropped() uint64 {
	return h.dropped.Load()
}

// Send pushes an event to a single connection
func (h *ConnectionHub) Send(connectionID, event string, data interface{}) bool {
	return h.Fanout([]string{connectionID}, event, data) == 1
}

// Fanout encodes the push once and enqueues it on every recipient.
// Returns the number of connections it was delivered to.
func (h *ConnectionHub) Fanout(recipients []string, event string, data interface{}) int {
	if len(recipients) == 0 {
		return 0
	}

	frame, err := json.Marshal(Push{Event: event, Data: data})
	if err != nil {
		slog.Error("failed to encode push",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, id := range recipients {
		conn, ok := h.conns[id]
		if !ok {
			// Stale registry reference to a connection that already left
			continue
		}
		if conn.Enqueue(frame) {
			delivered++
			continue
		}
		if !conn.Closed() {
			h.dropped.Add(1)
			slog.Debug("push dropped, send buffer full",
				slog.String("connection_id", id),
				slog.String("event", event),
			)
		}
	}
	return delivered
}

// Close closes every registered connection
func (h *ConnectionHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.conns {
		conn.Close()
		delete(h.conns, id)
	}
}
