package ports

import (
	"context"
	"encoding/json"

	"callkit/internal/core/domain"
)

// LocalTrack is an outbound capture handle (microphone, camera or screen).
type LocalTrack interface {
	Kind() domain.MediaKind
	Source() domain.TrackSource
	// RTPParameters describes the track's negotiated send parameters for
	// the produce round trip.
	RTPParameters() json.RawMessage
	Close() error
}

// RemoteTrack is an inbound media handle materialized for a consumer.
type RemoteTrack interface {
	ConsumerID() domain.ConsumerID
	Kind() domain.MediaKind
	Close() error
}

// LocalTracks groups the capture handles acquired at session start.
type LocalTracks struct {
	Audio LocalTrack
	Video LocalTrack
}

// TransportParams carries the coordinator-issued parameters needed to
// instantiate one local transport half.
type TransportParams struct {
	ID            domain.TransportID
	Direction     domain.TransportDirection
	ICEParams     json.RawMessage
	ICECandidates json.RawMessage
	DTLSParams    json.RawMessage
}

// MediaTransport is the local half of one logical transport. The handshake
// completes outside this handle: LocalParameters feeds the
// connect-transport command and the coordinator's acknowledgement resolves
// the transport.
type MediaTransport interface {
	ID() domain.TransportID
	Direction() domain.TransportDirection
	// LocalParameters returns this side's DTLS parameters for the
	// connect round trip.
	LocalParameters() (json.RawMessage, error)
	Close() error
}

// MediaEngine abstracts the browser/OS media stack: capability negotiation,
// capture acquisition and transport instantiation. All methods may suspend
// the calling turn.
type MediaEngine interface {
	// LoadCapabilities validates the local engine against the remote
	// capability description. Failure is fatal to the session.
	LoadCapabilities(ctx context.Context, remote json.RawMessage) (domain.CapabilityProfile, error)

	AcquireTracks(ctx context.Context, audio, video bool) (LocalTracks, error)
	AcquireScreenTrack(ctx context.Context) (LocalTrack, error)

	CreateTransport(ctx context.Context, params TransportParams) (MediaTransport, error)

	// CreateReceiver materializes the inbound track for a confirmed
	// consumer.
	CreateReceiver(ctx context.Context, transportID domain.TransportID, consumerID domain.ConsumerID, producerID domain.ProducerID, kind domain.MediaKind, rtpParams json.RawMessage) (RemoteTrack, error)

	// NetworkSignal reports the platform's current link estimate; zero
	// value when nothing is known.
	NetworkSignal() domain.NetworkSignal

	// SetAudioLevelHandler registers the sink for normalized (0.0-1.0)
	// microphone energy samples.
	SetAudioLevelHandler(fn func(level float64))

	// Release frees all capture resources.
	Release()
}
