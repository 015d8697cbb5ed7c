// Package roomstate provides the authoritative room state manager.
//
// Each room's state lives behind its own mutex, so merges are serialized
// per room: a read-merge-write cannot interleave with another writer of
// the same room.
package roomstate

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/waveroom/waveroom/internal/domain/room"
)

// DefaultTTL bounds how long an untouched room survives before the
// sweeper garbage-collects it. Every mutation refreshes the deadline.
const DefaultTTL = time.Hour

// Update is a partial room-state mutation. Nil fields are left untouched
// (last-writer-wins per field).
type Update struct {
	HostID       *string
	IsPlaying    *bool
	Position     *float64
	LastActionAt *float64
	Song         *room.Song
}

// LeaveOutcome describes the result of a participant departure.
type LeaveOutcome struct {
	State       room.State
	RoomDeleted bool
	HostChanged bool
	NewHost     string
}

type entry struct {
	mu       sync.Mutex
	state    room.State
	deadline time.Time
}

// Manager owns the mutable state of all rooms.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*entry
	ttl   time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a manager with the given idle TTL. A non-positive
// ttl falls back to DefaultTTL.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		rooms: make(map[string]*entry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns a copy of the room's state, or an empty default when the
// room does not exist. It never fails.
func (m *Manager) Get(roomID string) room.State {
	m.mu.RLock()
	e, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return room.State{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Exists reports whether the room currently has state.
func (m *Manager) Exists(roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[roomID]
	return ok
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Apply merges the update into the room's state under the room lock,
// refreshes the TTL and returns the new state. The room is created on
// first touch.
func (m *Manager) Apply(roomID string, u Update) room.State {
	e := m.getOrCreate(roomID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if u.HostID != nil {
		e.state.HostID = *u.HostID
	}
	if u.IsPlaying != nil {
		e.state.IsPlaying = *u.IsPlaying
	}
	if u.Position != nil {
		e.state.Position = *u.Position
	}
	if u.LastActionAt != nil {
		e.state.LastActionAt = *u.LastActionAt
	}
	if u.Song != nil {
		e.state.Song = *u.Song
	}
	e.deadline = m.now().Add(m.ttl)

	return e.state.Clone()
}

// Join registers the participant and resolves its host role: the first
// participant of a room with no host becomes host; otherwise the joiner
// is host only when its id matches the stored host id (rejoin with the
// same externally supplied identity).
func (m *Manager) Join(roomID, participantID string) (room.State, bool) {
	e := m.getOrCreate(roomID)

	e.mu.Lock()
	defer e.mu.Unlock()

	isHost := false
	if e.state.HostID == "" {
		e.state.HostID = participantID
		isHost = true
	} else if e.state.HostID == participantID {
		isHost = true
	}

	e.state.AddParticipant(participantID)
	e.deadline = m.now().Add(m.ttl)

	return e.state.Clone(), isHost
}

// Leave removes the participant. When the departing participant held the
// host role the earliest remaining joiner takes over; when the room
// empties its state is deleted entirely.
func (m *Manager) Leave(roomID, participantID string) LeaveOutcome {
	m.mu.RLock()
	e, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return LeaveOutcome{RoomDeleted: true}
	}

	e.mu.Lock()

	wasHost := e.state.HostID == participantID
	e.state.RemoveParticipant(participantID)

	if len(e.state.Participants) == 0 {
		e.mu.Unlock()
		m.Delete(roomID)
		return LeaveOutcome{RoomDeleted: true}
	}

	out := LeaveOutcome{}
	if wasHost {
		out.NewHost = e.state.NextHost()
		e.state.HostID = out.NewHost
		out.HostChanged = true
		zlog.Info().Msgf("host transferred: room=%s new_host=%s", roomID, out.NewHost)
	}
	e.deadline = m.now().Add(m.ttl)
	out.State = e.state.Clone()
	e.mu.Unlock()

	return out
}

// Delete removes the room's state entirely.
func (m *Manager) Delete(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
}

// Sweep garbage-collects rooms whose deadline has passed and returns
// their ids. Deadlines only lapse when no mutation touched the room for
// a full TTL, e.g. after an unclean shutdown left state behind.
func (m *Manager) Sweep() []string {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for id, e := range m.rooms {
		e.mu.Lock()
		expired := now.After(e.deadline)
		e.mu.Unlock()
		if expired {
			delete(m.rooms, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		zlog.Debug().Msgf("swept expired rooms: count=%d", len(removed))
	}
	return removed
}

func (m *Manager) getOrCreate(roomID string) *entry {
	m.mu.RLock()
	e, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.rooms[roomID]; ok {
		return e
	}
	e = &entry{deadline: m.now().Add(m.ttl)}
	m.rooms[roomID] = e
	return e
}
