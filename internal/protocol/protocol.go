// Package protocol defines the JSON wire protocol of the room websocket.
//
// One JSON object per text message; the "type" field selects the
// variant. Inbound messages parse into a closed command set so dispatch
// is an exhaustive switch rather than string comparisons scattered over
// the handler.
package protocol

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/waveroom/waveroom/internal/domain/room"
)

// Inbound message types.
const (
	TypePlay        = "play"
	TypePause       = "pause"
	TypeResume      = "resume"
	TypeSeek        = "seek"
	TypeSongChange  = "song_change"
	TypeSyncRequest = "sync_request"
	TypeHeartbeat   = "heartbeat"
	TypeLeaveRoom   = "leaveroom"
)

// Outbound message types.
const (
	TypeRoomJoined        = "room_joined"
	TypeMusicControl      = "music_control"
	TypeTimeSync          = "time_sync"
	TypeUserJoined        = "user_joined"
	TypeUserLeft          = "user_left"
	TypeHostChanged       = "host_changed"
	TypeSyncResponse      = "sync_response"
	TypeHeartbeatResponse = "heartbeat_response"
	TypeError             = "error"
)

var (
	// ErrUnknownType marks an inbound type the protocol does not know.
	// Unknown types are ignored, not answered with an error.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformed marks a payload that failed to parse.
	ErrMalformed = errors.New("malformed message")
)

// Command is an inbound client message.
type Command interface {
	// RequiresHost reports whether only the room host may issue the
	// command.
	RequiresHost() bool
	isCommand()
}

// Play starts playback of the carried song at the given position.
type Play struct {
	Position float64
	Song     room.Song
}

// Pause halts playback at the given position.
type Pause struct {
	Position float64
}

// Resume restarts playback at the given position.
type Resume struct {
	Position float64
}

// Seek jumps to the given position without changing transport state.
type Seek struct {
	Position float64
}

// SongChange loads a new song, resetting the position to zero.
type SongChange struct {
	Song     room.Song
	AutoPlay bool
}

// SyncRequest asks for the current estimated state.
type SyncRequest struct{}

// Heartbeat is a latency probe round-trip.
type Heartbeat struct {
	ClientTimestamp float64
}

// LeaveRoom asks the server to tear the connection down.
type LeaveRoom struct{}

func (Play) isCommand()        {}
func (Pause) isCommand()       {}
func (Resume) isCommand()      {}
func (Seek) isCommand()        {}
func (SongChange) isCommand()  {}
func (SyncRequest) isCommand() {}
func (Heartbeat) isCommand()   {}
func (LeaveRoom) isCommand()   {}

func (Play) RequiresHost() bool        { return true }
func (Pause) RequiresHost() bool       { return true }
func (Resume) RequiresHost() bool      { return true }
func (Seek) RequiresHost() bool        { return true }
func (SongChange) RequiresHost() bool  { return true }
func (SyncRequest) RequiresHost() bool { return false }
func (Heartbeat) RequiresHost() bool   { return false }
func (LeaveRoom) RequiresHost() bool   { return false }

// rawInbound is the superset of fields any inbound message may carry.
type rawInbound struct {
	Type            string  `json:"type"`
	Position        float64 `json:"position"`
	SongURL         string  `json:"song_url"`
	SongName        string  `json:"song_name"`
	ArtistName      string  `json:"artist_name"`
	CoverImage      string  `json:"cover_image"`
	AutoPlay        bool    `json:"auto_play"`
	ClientTimestamp float64 `json:"client_timestamp"`
}

func (r rawInbound) song() room.Song {
	return room.Song{
		URL:    r.SongURL,
		Name:   r.SongName,
		Artist: r.ArtistName,
		Cover:  r.CoverImage,
	}
}

// Parse decodes one inbound message into its command variant.
func Parse(data []byte) (Command, error) {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.WithSecondaryError(ErrMalformed, err)
	}

	switch raw.Type {
	case TypePlay:
		return Play{Position: raw.Position, Song: raw.song()}, nil
	case TypePause:
		return Pause{Position: raw.Position}, nil
	case TypeResume:
		return Resume{Position: raw.Position}, nil
	case TypeSeek:
		return Seek{Position: raw.Position}, nil
	case TypeSongChange:
		return SongChange{Song: raw.song(), AutoPlay: raw.AutoPlay}, nil
	case TypeSyncRequest:
		return SyncRequest{}, nil
	case TypeHeartbeat:
		return Heartbeat{ClientTimestamp: raw.ClientTimestamp}, nil
	case TypeLeaveRoom:
		return LeaveRoom{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownType, "%q", raw.Type)
	}
}
