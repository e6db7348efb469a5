package domain

// MediaState reflects which local media kinds a participant currently has
// enabled.
type MediaState struct {
	Audio  bool `json:"audio"`
	Video  bool `json:"video"`
	Screen bool `json:"screen"`
}

// Participant is one roster entry. The local participant is held apart from
// the roster map and its id never appears there.
type Participant struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"display_name"`
	Media       MediaState    `json:"media"`
	Speaking    bool          `json:"speaking"`
}

// ParticipantPatch carries a partial roster update; only non-nil fields are
// applied.
type ParticipantPatch struct {
	DisplayName *string
	Audio       *bool
	Video       *bool
	Screen      *bool
	Speaking    *bool
}

func (p *Participant) Apply(patch ParticipantPatch) {
	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.Audio != nil {
		p.Media.Audio = *patch.Audio
	}
	if patch.Video != nil {
		p.Media.Video = *patch.Video
	}
	if patch.Screen != nil {
		p.Media.Screen = *patch.Screen
	}
	if patch.Speaking != nil {
		p.Speaking = *patch.Speaking
	}
}
