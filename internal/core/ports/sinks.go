package ports

import "callkit/internal/core/domain"

// MediaSinks is the boundary to the rendering collaborator. The core never
// touches rendering; it only hands tracks over. Either callback may be nil.
type MediaSinks struct {
	OnLocalTrack  func(track LocalTrack)
	OnRemoteTrack func(participantID domain.ParticipantID, track RemoteTrack)
}

func (s MediaSinks) LocalTrack(track LocalTrack) {
	if s.OnLocalTrack != nil {
		s.OnLocalTrack(track)
	}
}

func (s MediaSinks) RemoteTrack(id domain.ParticipantID, track RemoteTrack) {
	if s.OnRemoteTrack != nil {
		s.OnRemoteTrack(id, track)
	}
}
