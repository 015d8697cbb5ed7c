// Package ws serves the room websocket: admission, the per-connection
// session lifecycle and command dispatch against the room state.
package ws

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/waveroom/waveroom/internal/app/clock"
	"github.com/waveroom/waveroom/internal/app/hub"
	"github.com/waveroom/waveroom/internal/app/ratelimit"
	"github.com/waveroom/waveroom/internal/app/roomstate"
	"github.com/waveroom/waveroom/internal/domain/room"
	"github.com/waveroom/waveroom/internal/protocol"
)

// CloseCodePolicy is the websocket close code sent on admission
// rejection.
const CloseCodePolicy = 4008

const msgNotHost = "Only the host can control playback"

// ErrAdmissionRejected is returned by Session.Start when the limiter
// refuses the connection.
var ErrAdmissionRejected = errors.New("admission rejected")

// Session drives one admitted websocket connection. All methods are
// called from the connection's read loop, so no internal locking is
// needed; the managers it calls into do their own.
type Session struct {
	id            string
	roomID        string
	userID        string
	sessionKey    string
	authenticated bool
	ip            string

	rooms   *roomstate.Manager
	limiter *ratelimit.Limiter
	hub     *hub.Hub
	clock   *clock.Runner
	conn    hub.Conn

	started bool

	// now returns unix seconds; swappable for tests.
	now func() float64
}

// SessionParams carries the identity of a connecting client.
type SessionParams struct {
	ConnID        string
	RoomID        string
	UserID        string
	SessionKey    string
	Authenticated bool
	IP            string
}

// NewSession creates a session in its pre-admission state.
func NewSession(p SessionParams, rooms *roomstate.Manager, limiter *ratelimit.Limiter, h *hub.Hub, clk *clock.Runner, conn hub.Conn) *Session {
	return &Session{
		id:            p.ConnID,
		roomID:        p.RoomID,
		userID:        p.UserID,
		sessionKey:    p.SessionKey,
		authenticated: p.Authenticated,
		ip:            p.IP,
		rooms:         rooms,
		limiter:       limiter,
		hub:           h,
		clock:         clk,
		conn:          conn,
		now:           func() float64 { return float64(time.Now().UnixNano()) / float64(time.Second) },
	}
}

// Start runs admission and, when admitted, joins the room: registers
// the connection counters, starts usage tracking, resolves the host
// role, subscribes to the fan-out group, ensures the room's clock is
// running, replies room_joined and announces user_joined.
//
// On rejection it returns ErrAdmissionRejected with the reason; the
// caller closes the socket with CloseCodePolicy.
func (s *Session) Start() error {
	ok, reason := s.limiter.CheckConnection(s.sessionKey, s.ip, s.authenticated)
	if !ok {
		zlog.Info().Msgf("connection rejected: room=%s user=%s reason=%s", s.roomID, s.userID, reason)
		return errors.Mark(errors.New(reason), ErrAdmissionRejected)
	}

	s.limiter.Register(s.sessionKey, s.ip)
	s.limiter.StartTracking(s.sessionKey, s.authenticated)

	state, isHost := s.rooms.Join(s.roomID, s.userID)
	s.hub.Join(s.roomID, s.conn)
	s.clock.EnsureRunning(s.roomID)
	s.started = true

	now := s.now()
	s.reply(protocol.RoomJoined{
		Type:         protocol.TypeRoomJoined,
		IsHost:       isHost,
		Participants: state.Participants,
		RoomState: protocol.RoomState{
			IsPlaying:       state.IsPlaying,
			CurrentPosition: state.EstimatePosition(now),
			SongData:        state.Song,
		},
	})
	s.broadcast(protocol.UserJoined{
		Type:         protocol.TypeUserJoined,
		UserID:       s.userID,
		Participants: state.Participants,
	})

	zlog.Info().Msgf("user joined: room=%s user=%s host=%t participants=%d",
		s.roomID, s.userID, isHost, len(state.Participants))
	return nil
}

// HandleMessage processes one inbound text frame. It returns true when
// the client asked to leave and the connection should be torn down.
func (s *Session) HandleMessage(data []byte) bool {
	if ok, reason := s.limiter.CheckMessage(s.id); !ok {
		s.reply(protocol.NewError(reason))
		return false
	}

	cmd, err := protocol.Parse(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			zlog.Debug().Msgf("ignoring unknown message: room=%s user=%s error=%v", s.roomID, s.userID, err)
			return false
		}
		s.reply(protocol.NewError("malformed message"))
		return false
	}

	if cmd.RequiresHost() && s.rooms.Get(s.roomID).HostID != s.userID {
		s.reply(protocol.NewError(msgNotHost))
		return false
	}

	switch c := cmd.(type) {
	case protocol.Play:
		s.applyControl(protocol.TypePlay, control{
			isPlaying: boolPtr(true),
			position:  &c.Position,
			song:      &c.Song,
		})
	case protocol.Pause:
		s.applyControl(protocol.TypePause, control{
			isPlaying: boolPtr(false),
			position:  &c.Position,
		})
	case protocol.Resume:
		s.applyControl(protocol.TypeResume, control{
			isPlaying: boolPtr(true),
			position:  &c.Position,
		})
	case protocol.Seek:
		s.applyControl(protocol.TypeSeek, control{
			position: &c.Position,
		})
	case protocol.SongChange:
		zero := 0.0
		s.applyControl(protocol.TypeSongChange, control{
			isPlaying: boolPtr(c.AutoPlay),
			position:  &zero,
			song:      &c.Song,
			autoPlay:  boolPtr(c.AutoPlay),
		})
	case protocol.SyncRequest:
		now := s.now()
		state := s.rooms.Get(s.roomID)
		s.reply(protocol.SyncResponse{
			Type:            protocol.TypeSyncResponse,
			ServerTimestamp: now,
			CurrentPosition: state.EstimatePosition(now),
			IsPlaying:       state.IsPlaying,
			SongData:        state.Song,
		})
	case protocol.Heartbeat:
		now := s.now()
		s.reply(protocol.HeartbeatResponse{
			Type:            protocol.TypeHeartbeatResponse,
			ServerTimestamp: now,
			ClientTimestamp: c.ClientTimestamp,
			Latency:         now - c.ClientTimestamp,
		})
	case protocol.LeaveRoom:
		return true
	}
	return false
}

// Close tears the session down: unsubscribes from the fan-out group,
// removes the participant (announcing host failover or departure),
// stops the room's clock when the room emptied, releases the
// connection counters and folds the connected time into today's usage.
// Safe to call for a session that never passed admission.
func (s *Session) Close() {
	if !s.started {
		return
	}
	s.started = false

	s.hub.Leave(s.roomID, s.conn.ID())

	out := s.rooms.Leave(s.roomID, s.userID)
	if out.RoomDeleted {
		s.clock.Stop(s.roomID)
	} else {
		if out.HostChanged {
			s.broadcast(protocol.HostChanged{
				Type:    protocol.TypeHostChanged,
				NewHost: out.NewHost,
			})
		}
		s.broadcast(protocol.UserLeft{
			Type:         protocol.TypeUserLeft,
			UserID:       s.userID,
			Participants: out.State.Participants,
		})
	}

	s.limiter.Unregister(s.sessionKey, s.ip)
	s.limiter.FinalizeUsage(s.sessionKey, s.authenticated)

	zlog.Info().Msgf("user left: room=%s user=%s room_deleted=%t", s.roomID, s.userID, out.RoomDeleted)
}

// control carries the optional fields of one playback action.
type control struct {
	isPlaying *bool
	position  *float64
	song      *room.Song
	autoPlay  *bool
}

// applyControl commits a host action to the room state and relays it to
// every member as music_control. The server clock stamps the action.
func (s *Session) applyControl(action string, c control) {
	now := s.now()

	s.rooms.Apply(s.roomID, roomstate.Update{
		IsPlaying:    c.isPlaying,
		Position:     c.position,
		LastActionAt: &now,
		Song:         c.song,
	})

	s.broadcast(protocol.MusicControl{
		Type:            protocol.TypeMusicControl,
		Action:          action,
		ServerTimestamp: now,
		Position:        c.position,
		SongData:        c.song,
		AutoPlay:        c.autoPlay,
	})
}

func (s *Session) reply(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zlog.Error().Msgf("failed to marshal reply: %v", err)
		return
	}
	if err := s.conn.Send(data); err != nil {
		zlog.Debug().Msgf("failed to send reply: conn=%s error=%v", s.id, err)
	}
}

func (s *Session) broadcast(v any) {
	if err := s.hub.Broadcast(s.roomID, v); err != nil {
		zlog.Warn().Msgf("failed to broadcast: room=%s error=%v", s.roomID, err)
	}
}

func boolPtr(b bool) *bool { return &b }
