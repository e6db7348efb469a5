package media

import (
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// RTPFeeder bridges an already-packetized capture source (an external
// encoder, a file reader, a forwarded stream) into a local RTP track.
// Sources that deliver raw frames use localTrack.WriteSample instead.
type RTPFeeder struct {
	track *webrtc.TrackLocalStaticRTP
}

func NewRTPFeeder(codec webrtc.RTPCodecCapability, id, streamID string) (*RTPFeeder, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(codec, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to create RTP track: %w", err)
	}
	return &RTPFeeder{track: track}, nil
}

// WritePacket forwards one RTP packet into the track.
func (f *RTPFeeder) WritePacket(pkt *rtp.Packet) error {
	return f.track.WriteRTP(pkt)
}

// Track exposes the underlying track for transport attachment.
func (f *RTPFeeder) Track() *webrtc.TrackLocalStaticRTP {
	return f.track
}
