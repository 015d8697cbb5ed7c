// Package room provides the room state domain entity.
package room

// Song holds the metadata of the currently loaded track.
// All fields may be empty when no song is loaded.
type Song struct {
	URL    string `json:"url"`
	Name   string `json:"name"`
	Artist string `json:"artist"`
	Cover  string `json:"cover"`
}

// State represents the shared playback state of one room.
//
// Position is valid as-of LastActionAt (unix seconds); the actual
// playback position at time T while playing is Position + (T - LastActionAt).
type State struct {
	HostID       string
	Participants []string
	IsPlaying    bool
	Position     float64
	LastActionAt float64
	Song         Song
}

// EstimatePosition returns the estimated playback position at the given
// unix timestamp. When paused the stored position is returned unchanged.
func (s State) EstimatePosition(at float64) float64 {
	if !s.IsPlaying {
		return s.Position
	}
	return s.Position + (at - s.LastActionAt)
}

// HasParticipant reports whether the given id is a current member.
func (s State) HasParticipant(id string) bool {
	for _, p := range s.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// AddParticipant appends the id preserving join order. Adding an id that
// is already present is a no-op, which covers rejoins under the same
// externally supplied identity.
func (s *State) AddParticipant(id string) {
	if s.HasParticipant(id) {
		return
	}
	s.Participants = append(s.Participants, id)
}

// RemoveParticipant removes the id, keeping the order of the rest.
func (s *State) RemoveParticipant(id string) {
	for i, p := range s.Participants {
		if p == id {
			s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
			return
		}
	}
}

// NextHost returns the earliest remaining joiner, the failover tie-break
// used when the current host disconnects. Returns "" for an empty room.
func (s State) NextHost() string {
	if len(s.Participants) == 0 {
		return ""
	}
	return s.Participants[0]
}

// Clone returns a deep copy so callers can hand out state without
// exposing the participants slice to later mutation.
func (s State) Clone() State {
	out := s
	out.Participants = make([]string, len(s.Participants))
	copy(out.Participants, s.Participants)
	return out
}
