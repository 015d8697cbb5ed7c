package roomstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/waveroom/waveroom/internal/domain/room"
)

func ptr[T any](v T) *T { return &v }

func TestManager_GetMissingRoomReturnsDefault(t *testing.T) {
	m := NewManager(0)

	s := m.Get("nope")
	assert.Equal(t, "", s.HostID)
	assert.Empty(t, s.Participants)
	assert.False(t, s.IsPlaying)
	assert.False(t, m.Exists("nope"), "Get must not create the room")
}

func TestManager_FirstJoinerBecomesHost(t *testing.T) {
	m := NewManager(0)

	s, isHost := m.Join("r1", "u1")
	assert.True(t, isHost)
	assert.Equal(t, "u1", s.HostID)
	assert.Equal(t, []string{"u1"}, s.Participants)

	s, isHost = m.Join("r1", "u2")
	assert.False(t, isHost)
	assert.Equal(t, "u1", s.HostID)
	assert.Equal(t, []string{"u1", "u2"}, s.Participants)
}

func TestManager_HostRejoinKeepsRole(t *testing.T) {
	m := NewManager(0)

	m.Join("r1", "h")
	m.Join("r1", "a")

	_, isHost := m.Join("r1", "h")
	assert.True(t, isHost, "rejoin with the stored host id keeps the host role")
}

func TestManager_HostFailover(t *testing.T) {
	m := NewManager(0)

	m.Join("r1", "h")
	m.Join("r1", "a")
	m.Join("r1", "b")

	out := m.Leave("r1", "h")
	assert.False(t, out.RoomDeleted)
	assert.True(t, out.HostChanged)
	assert.Equal(t, "a", out.NewHost)
	assert.Equal(t, "a", out.State.HostID)
	assert.Equal(t, []string{"a", "b"}, out.State.Participants)
}

func TestManager_NonHostLeaveKeepsHost(t *testing.T) {
	m := NewManager(0)

	m.Join("r1", "h")
	m.Join("r1", "a")
	m.Join("r1", "b")

	out := m.Leave("r1", "a")
	assert.False(t, out.HostChanged)
	assert.Equal(t, "h", out.State.HostID)
	assert.Equal(t, []string{"h", "b"}, out.State.Participants)
}

func TestManager_LastLeaveDeletesRoom(t *testing.T) {
	m := NewManager(0)

	m.Join("r1", "u1")
	out := m.Leave("r1", "u1")

	assert.True(t, out.RoomDeleted)
	assert.False(t, m.Exists("r1"))
	assert.Equal(t, 0, m.Count())
}

func TestManager_LeaveUnknownRoom(t *testing.T) {
	m := NewManager(0)

	out := m.Leave("ghost", "u1")
	assert.True(t, out.RoomDeleted)
}

func TestManager_ApplyMergesFields(t *testing.T) {
	m := NewManager(0)
	m.Join("r1", "h")

	s := m.Apply("r1", Update{
		IsPlaying:    ptr(true),
		Position:     ptr(10.0),
		LastActionAt: ptr(1234.0),
		Song:         &room.Song{URL: "a.mp3", Name: "A", Artist: "B"},
	})
	assert.True(t, s.IsPlaying)
	assert.Equal(t, 10.0, s.Position)
	assert.Equal(t, "a.mp3", s.Song.URL)

	// A partial update leaves other fields alone.
	s = m.Apply("r1", Update{IsPlaying: ptr(false)})
	assert.False(t, s.IsPlaying)
	assert.Equal(t, 10.0, s.Position)
	assert.Equal(t, "a.mp3", s.Song.URL)
	assert.Equal(t, "h", s.HostID)
}

func TestManager_Sweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewManager(time.Minute)
	m.now = func() time.Time { return now }

	m.Join("r1", "u1")
	m.Join("r2", "u2")

	now = now.Add(30 * time.Second)
	m.Apply("r2", Update{Position: ptr(1.0)}) // refreshes r2's deadline

	now = now.Add(45 * time.Second)
	removed := m.Sweep()

	assert.Equal(t, []string{"r1"}, removed)
	assert.False(t, m.Exists("r1"))
	assert.True(t, m.Exists("r2"))
}
