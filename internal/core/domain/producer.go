package domain

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// TrackSource identifies which capture surface feeds a producer. Screen
// share is a video-kind producer with SourceScreen.
type TrackSource string

const (
	SourceMicrophone TrackSource = "microphone"
	SourceCamera     TrackSource = "camera"
	SourceScreen     TrackSource = "screen"
)

// Producer is a locally originated outbound media stream handle. It is
// registered under a transient placeholder token until the coordinator
// confirms a durable id; the transition happens exactly once.
type Producer struct {
	Token  string
	ID     ProducerID
	Kind   MediaKind
	Source TrackSource
	Paused bool
}

// Confirmed reports whether the coordinator has assigned a durable id.
func (p *Producer) Confirmed() bool {
	return p.ID != ""
}

// Key returns the durable id once confirmed, the placeholder token before.
func (p *Producer) Key() string {
	if p.Confirmed() {
		return string(p.ID)
	}
	return p.Token
}

// Confirm promotes the placeholder to the durable id. Returns false if the
// producer was already confirmed.
func (p *Producer) Confirm(id ProducerID) bool {
	if p.Confirmed() {
		return false
	}
	p.ID = id
	return true
}
