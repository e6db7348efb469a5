package media

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"callkit/internal/core/domain"
)

// localTrack wraps a pion sample track as a ports.LocalTrack.
type localTrack struct {
	kind   domain.MediaKind
	source domain.TrackSource
	sample *webrtc.TrackLocalStaticSample

	mu     sync.Mutex
	closed bool
}

func newLocalSampleTrack(codec webrtc.RTPCodecCapability, id, streamID string, kind domain.MediaKind, source domain.TrackSource) (*localTrack, error) {
	sample, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	return &localTrack{
		kind:   kind,
		source: source,
		sample: sample,
	}, nil
}

func (t *localTrack) Kind() domain.MediaKind     { return t.kind }
func (t *localTrack) Source() domain.TrackSource { return t.source }

// RTPParameters describes the track's send parameters for the produce
// round trip.
func (t *localTrack) RTPParameters() json.RawMessage {
	codec := t.sample.Codec()
	params := struct {
		MimeType  string `json:"mime_type"`
		ClockRate uint32 `json:"clock_rate"`
		Channels  uint16 `json:"channels,omitempty"`
	}{
		MimeType:  codec.MimeType,
		ClockRate: codec.ClockRate,
		Channels:  codec.Channels,
	}
	data, err := json.Marshal(params)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// WriteSample pushes one encoded frame from the capture source.
func (t *localTrack) WriteSample(data []byte, duration time.Duration) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	return t.sample.WriteSample(media.Sample{Data: data, Duration: duration})
}

func (t *localTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// remoteTrack wraps the receive transceiver of one consumer.
type remoteTrack struct {
	id          domain.ConsumerID
	kind        domain.MediaKind
	transceiver *webrtc.RTPTransceiver
}

func (t *remoteTrack) ConsumerID() domain.ConsumerID { return t.id }
func (t *remoteTrack) Kind() domain.MediaKind        { return t.kind }

func (t *remoteTrack) Close() error {
	return t.transceiver.Stop()
}

// rmsLevel computes the normalized (0.0-1.0) root-mean-square energy of a
// PCM frame.
func rmsLevel(pcm []int16) float64 {
	var sum float64
	for _, s := range pcm {
		f := float64(s)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(pcm)))
	return rms / 32768.0
}
