// Package hub provides per-room broadcast groups.
//
// A message sent to a room is delivered to every connection currently
// joined to it. Delivery is best-effort: a failing member does not abort
// the fan-out, and cross-connection ordering is not guaranteed.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Conn is the narrow connection surface the hub needs. The websocket
// layer implements it; tests use fakes.
type Conn interface {
	ID() string
	Send(data []byte) error
}

// Hub manages the broadcast groups of all rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{rooms: make(map[string]map[string]Conn)}
}

// Join subscribes the connection to the room's group.
func (h *Hub) Join(roomID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.rooms[roomID]
	if !ok {
		group = make(map[string]Conn)
		h.rooms[roomID] = group
	}
	group[c.ID()] = c
}

// Leave removes the connection from the room's group. The group itself
// is dropped when it empties.
func (h *Hub) Leave(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(group, connID)
	if len(group) == 0 {
		delete(h.rooms, roomID)
	}
}

// Broadcast marshals v once and delivers it to every member of the room.
func (h *Hub) Broadcast(roomID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal broadcast payload")
	}

	h.mu.RLock()
	group := h.rooms[roomID]
	conns := make([]Conn, 0, len(group))
	for _, c := range group {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(data); err != nil {
			zlog.Debug().Msgf("broadcast send failed: room=%s conn=%s err=%v", roomID, c.ID(), err)
		}
	}
	return nil
}

// Count returns the number of connections in the room's group.
func (h *Hub) Count(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Stats returns the number of active groups and total connections.
func (h *Hub) Stats() (rooms, conns int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms = len(h.rooms)
	for _, group := range h.rooms {
		conns += len(group)
	}
	return rooms, conns
}
