package media

import (
	"context"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callkit/internal/core/domain"
	"callkit/internal/core/ports"
)

func newTestFeeder(t *testing.T) *RTPFeeder {
	t.Helper()
	f, err := NewRTPFeeder(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"forward", "callkit-forward",
	)
	require.NoError(t, err)
	return f
}

func TestFeederWritesPackets(t *testing.T) {
	f := newTestFeeder(t)

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: 1,
			Timestamp:      90000,
			SSRC:           1234,
		},
		Payload: []byte{0x90, 0x00},
	}
	// unbound track: packets are dropped, not errored
	require.NoError(t, f.WritePacket(pkt))
	assert.Equal(t, webrtc.MimeTypeVP8, f.Track().Codec().MimeType)
}

func TestAttachFeederToSendTransport(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CreateTransport(context.Background(), ports.TransportParams{ID: "t-send", Direction: domain.DirectionSend})
	require.NoError(t, err)
	_, err = e.CreateTransport(context.Background(), ports.TransportParams{ID: "t-recv", Direction: domain.DirectionRecv})
	require.NoError(t, err)

	f := newTestFeeder(t)
	require.NoError(t, e.AttachFeeder("t-send", f))

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: 2,
			Timestamp:      93000,
			SSRC:           1234,
		},
		Payload: []byte{0x90, 0x01},
	}
	require.NoError(t, f.WritePacket(pkt))
}

func TestAttachFeederRejectsWrongTransport(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CreateTransport(context.Background(), ports.TransportParams{ID: "t-recv", Direction: domain.DirectionRecv})
	require.NoError(t, err)

	f := newTestFeeder(t)
	assert.Error(t, e.AttachFeeder("t-recv", f))
	assert.Error(t, e.AttachFeeder("ghost", f))
}
