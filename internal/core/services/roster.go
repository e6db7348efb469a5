package services

import (
	"sort"

	"go.uber.org/zap"

	"callkit/internal/core/domain"
)

// ParticipantDirectory is the canonical roster for one session, merged
// from the independent join/leave/media/screen/speaking event streams.
// Patches referencing an unknown participant are ignored, never applied
// retroactively. The local participant is held apart and is never touched
// by remote updates.
type ParticipantDirectory struct {
	local        *domain.Participant
	participants map[domain.ParticipantID]*domain.Participant
	log          *zap.SugaredLogger
}

// NewParticipantDirectory wraps a session's participant map. The directory
// is the only writer; CallSession.Participants is its canonical storage.
func NewParticipantDirectory(sess *domain.CallSession, log *zap.SugaredLogger) *ParticipantDirectory {
	return &ParticipantDirectory{
		local:        sess.Local,
		participants: sess.Participants,
		log:          log,
	}
}

// Add inserts a remote participant. Re-adding an existing id only updates
// the display name; the local id is rejected.
func (d *ParticipantDirectory) Add(id domain.ParticipantID, displayName string) *domain.Participant {
	if id == d.local.ID {
		d.log.Warnw("refusing to add local participant to roster", "participant_id", id)
		return nil
	}
	if existing, ok := d.participants[id]; ok {
		existing.DisplayName = displayName
		return existing
	}

	p := &domain.Participant{ID: id, DisplayName: displayName}
	d.participants[id] = p
	return p
}

// Remove drops a remote participant from the roster.
func (d *ParticipantDirectory) Remove(id domain.ParticipantID) bool {
	if _, ok := d.participants[id]; !ok {
		return false
	}
	delete(d.participants, id)
	return true
}

// Patch applies the non-nil fields of a partial update. Unknown ids and
// the local id are ignored.
func (d *ParticipantDirectory) Patch(id domain.ParticipantID, patch domain.ParticipantPatch) bool {
	if id == d.local.ID {
		d.log.Debugw("ignoring roster patch for local participant", "participant_id", id)
		return false
	}
	p, ok := d.participants[id]
	if !ok {
		d.log.Debugw("ignoring roster patch for unknown participant", "participant_id", id)
		return false
	}
	p.Apply(patch)
	return true
}

// Get looks up a remote participant.
func (d *ParticipantDirectory) Get(id domain.ParticipantID) (*domain.Participant, bool) {
	p, ok := d.participants[id]
	return p, ok
}

// Local returns the local participant.
func (d *ParticipantDirectory) Local() *domain.Participant {
	return d.local
}

// Count returns the number of remote participants.
func (d *ParticipantDirectory) Count() int {
	return len(d.participants)
}

// Snapshot returns a stable-ordered copy of the remote roster.
func (d *ParticipantDirectory) Snapshot() []domain.Participant {
	out := make([]domain.Participant, 0, len(d.participants))
	for _, p := range d.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
