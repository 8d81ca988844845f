// Package session multiplexes telemetry events between device connections
// and viewer connections. Devices push events into per-device rooms; viewers
// join exactly the rooms they care about.
package session

import (
	"sync"

	"spectra-monitor/pkg/logger"
)

// defaultQueueSize bounds each connection's outbound queue.
const defaultQueueSize = 256

// SessionRoom derives the room key for a device's live session.
func SessionRoom(deviceID string) string {
	return "session:" + deviceID
}

// Hub owns room membership, the only mutable shared state of the router.
// Membership changes are atomic relative to broadcasts: a broadcast sees the
// member set either before or after a concurrent join, never a torn view.
type Hub struct {
	mu       sync.RWMutex
	conns    map[*Conn]struct{}
	rooms    map[string]map[*Conn]struct{}
	memberOf map[*Conn]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns:    make(map[*Conn]struct{}),
		rooms:    make(map[string]map[*Conn]struct{}),
		memberOf: make(map[*Conn]map[string]struct{}),
	}
}

// Register adds a new connection to the hub and returns its handle.
func (h *Hub) Register() *Conn {
	c := newConn(defaultQueueSize)

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	return c
}

// Unregister removes the connection from every room it joined and closes it.
// Safe to call more than once.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	for room := range h.memberOf[c] {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.memberOf, c)
	h.mu.Unlock()

	c.close()
}

// Join adds the connection to a room. Joining a room twice is a no-op.
func (h *Hub) Join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Conn]struct{})
	}
	h.rooms[room][c] = struct{}{}
	if h.memberOf[c] == nil {
		h.memberOf[c] = make(map[string]struct{})
	}
	h.memberOf[c][room] = struct{}{}
}

// BroadcastRoom delivers msg to every current member of the room.
func (h *Hub) BroadcastRoom(room string, msg []byte) {
	h.mu.RLock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.enqueue(msg) {
			logger.Debug("Dropped room message for slow connection",
				logger.String("room", room),
				logger.String("conn_id", c.id))
		}
	}
}

// BroadcastAll delivers msg to every registered connection.
func (h *Hub) BroadcastAll(msg []byte) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if !c.enqueue(msg) {
			logger.Debug("Dropped broadcast for slow connection",
				logger.String("conn_id", c.id))
		}
	}
}

// RoomSize reports the current member count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ConnCount reports the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
