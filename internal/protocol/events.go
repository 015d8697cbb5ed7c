package protocol

import "github.com/waveroom/waveroom/internal/domain/room"

// RoomState is the snapshot embedded in join and sync replies. The
// position is already estimated to the moment of sending.
type RoomState struct {
	IsPlaying       bool      `json:"is_playing"`
	CurrentPosition float64   `json:"current_position"`
	SongData        room.Song `json:"song_data"`
}

// RoomJoined is the first message a client receives after admission.
type RoomJoined struct {
	Type         string    `json:"type"`
	IsHost       bool      `json:"is_host"`
	Participants []string  `json:"participants"`
	RoomState    RoomState `json:"room_state"`
}

// MusicControl relays a host playback action to every room member.
// Optional fields are omitted for actions that do not carry them.
type MusicControl struct {
	Type            string     `json:"type"`
	Action          string     `json:"action"`
	ServerTimestamp float64    `json:"server_timestamp"`
	Position        *float64   `json:"position,omitempty"`
	SongData        *room.Song `json:"song_data,omitempty"`
	AutoPlay        *bool      `json:"auto_play,omitempty"`
}

// TimeSync is the periodic clock broadcast that keeps members aligned.
type TimeSync struct {
	Type            string  `json:"type"`
	ServerTimestamp float64 `json:"server_timestamp"`
	CurrentPosition float64 `json:"current_position"`
	IsPlaying       bool    `json:"is_playing"`
}

// UserJoined announces a new member to the room.
type UserJoined struct {
	Type         string   `json:"type"`
	UserID       string   `json:"user_id"`
	Participants []string `json:"participants"`
}

// UserLeft announces a departed member to the room.
type UserLeft struct {
	Type         string   `json:"type"`
	UserID       string   `json:"user_id"`
	Participants []string `json:"participants"`
}

// HostChanged announces a host failover.
type HostChanged struct {
	Type    string `json:"type"`
	NewHost string `json:"new_host"`
}

// SyncResponse answers an explicit sync_request from one client.
type SyncResponse struct {
	Type            string    `json:"type"`
	ServerTimestamp float64   `json:"server_timestamp"`
	CurrentPosition float64   `json:"current_position"`
	IsPlaying       bool      `json:"is_playing"`
	SongData        room.Song `json:"song_data"`
}

// HeartbeatResponse echoes the client timestamp and reports the
// one-way latency as seen by the server clock.
type HeartbeatResponse struct {
	Type            string  `json:"type"`
	ServerTimestamp float64 `json:"server_timestamp"`
	ClientTimestamp float64 `json:"client_timestamp"`
	Latency         float64 `json:"latency"`
}

// ErrorMessage reports a rejected command without closing the socket.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewTimeSync builds a clock broadcast from an estimated room snapshot.
func NewTimeSync(now float64, st room.State) TimeSync {
	return TimeSync{
		Type:            TypeTimeSync,
		ServerTimestamp: now,
		CurrentPosition: st.EstimatePosition(now),
		IsPlaying:       st.IsPlaying,
	}
}

// NewError builds an error reply.
func NewError(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: msg}
}
