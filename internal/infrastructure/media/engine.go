// Package media implements the MediaEngine port on top of pion/webrtc.
package media

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"callkit/internal/core/domain"
	"callkit/internal/core/ports"
)

// Config configures the engine.
type Config struct {
	ICEServers []webrtc.ICEServer
}

// codecCapability is the wire shape of one negotiable codec.
type codecCapability struct {
	MimeType  string `json:"mime_type"`
	ClockRate uint32 `json:"clock_rate"`
	Channels  uint16 `json:"channels,omitempty"`
}

type capabilitySet struct {
	Codecs []codecCapability `json:"codecs"`
}

// Engine is the pion/webrtc implementation of ports.MediaEngine. One DTLS
// certificate is generated per engine and shared by all transports; its
// fingerprints form the local half of every connect handshake.
type Engine struct {
	cfg  Config
	log  *zap.SugaredLogger
	cert *webrtc.Certificate

	mu          sync.Mutex
	localTracks []*localTrack
	transports  map[domain.TransportID]*transport

	levelMu      sync.RWMutex
	levelHandler func(float64)

	probe *DownlinkProbe
}

func NewEngine(cfg Config, log *zap.SugaredLogger) (*Engine, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate DTLS key: %w", err)
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return nil, fmt.Errorf("failed to generate DTLS certificate: %w", err)
	}

	return &Engine{
		cfg:        cfg,
		log:        log,
		cert:       cert,
		transports: make(map[domain.TransportID]*transport),
		probe:      NewDownlinkProbe(),
	}, nil
}

// localCodecs is what this engine can send and receive.
func localCodecs() []codecCapability {
	return []codecCapability{
		{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
	}
}

// LoadCapabilities intersects the local codec set with the coordinator's
// capability description.
func (e *Engine) LoadCapabilities(_ context.Context, remote json.RawMessage) (domain.CapabilityProfile, error) {
	var remoteSet capabilitySet
	if err := json.Unmarshal(remote, &remoteSet); err != nil {
		return domain.CapabilityProfile{}, fmt.Errorf("invalid remote capability description: %w", err)
	}

	var shared []codecCapability
	for _, local := range localCodecs() {
		for _, rc := range remoteSet.Codecs {
			if strings.EqualFold(local.MimeType, rc.MimeType) && local.ClockRate == rc.ClockRate {
				shared = append(shared, local)
				break
			}
		}
	}
	if len(shared) == 0 {
		return domain.CapabilityProfile{}, fmt.Errorf("no shared codecs with coordinator")
	}

	data, err := json.Marshal(capabilitySet{Codecs: shared})
	if err != nil {
		return domain.CapabilityProfile{}, err
	}

	e.log.Infow("media capabilities loaded", "shared_codecs", len(shared))
	return domain.CapabilityProfile{RTPCapabilities: data}, nil
}

// AcquireTracks creates the outbound capture tracks. The embedding
// application feeds them via PushAudioFrame and the RTP feeder.
func (e *Engine) AcquireTracks(_ context.Context, audio, video bool) (ports.LocalTracks, error) {
	var tracks ports.LocalTracks

	if audio {
		t, err := newLocalSampleTrack(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", "callkit-mic",
			domain.KindAudio, domain.SourceMicrophone,
		)
		if err != nil {
			return ports.LocalTracks{}, fmt.Errorf("failed to create microphone track: %w", err)
		}
		tracks.Audio = t
		e.registerTrack(t)
	}
	if video {
		t, err := newLocalSampleTrack(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", "callkit-cam",
			domain.KindVideo, domain.SourceCamera,
		)
		if err != nil {
			return ports.LocalTracks{}, fmt.Errorf("failed to create camera track: %w", err)
		}
		tracks.Video = t
		e.registerTrack(t)
	}
	return tracks, nil
}

// AcquireScreenTrack creates the screen capture track.
func (e *Engine) AcquireScreenTrack(_ context.Context) (ports.LocalTrack, error) {
	t, err := newLocalSampleTrack(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"screen", "callkit-screen",
		domain.KindVideo, domain.SourceScreen,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create screen track: %w", err)
	}
	e.registerTrack(t)
	return t, nil
}

func (e *Engine) registerTrack(t *localTrack) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localTracks = append(e.localTracks, t)
}

// CreateTransport instantiates the local half of one logical transport.
// Send transports carry every acquired local track; their RTCP return
// path feeds the downlink probe.
func (e *Engine) CreateTransport(_ context.Context, params ports.TransportParams) (ports.MediaTransport, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers:   e.cfg.ICEServers,
		Certificates: []webrtc.Certificate{*e.cert},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	t := &transport{
		id:   params.ID,
		dir:  params.Direction,
		pc:   pc,
		cert: e.cert,
		log:  e.log,
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		e.log.Infow("transport connection state changed",
			"transport_id", t.id,
			"direction", t.dir,
			"state", state,
		)
	})

	if params.Direction == domain.DirectionSend {
		e.mu.Lock()
		tracks := make([]*localTrack, len(e.localTracks))
		copy(tracks, e.localTracks)
		e.mu.Unlock()

		for _, lt := range tracks {
			sender, addErr := pc.AddTrack(lt.sample)
			if addErr != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("failed to attach local track: %w", addErr)
			}
			go e.rtcpLoop(sender)
		}
	}

	e.mu.Lock()
	e.transports[params.ID] = t
	e.mu.Unlock()
	return t, nil
}

// AttachFeeder binds an externally packetized source to a send transport.
// The feeder's RTCP return path feeds the downlink probe like any other
// sender.
func (e *Engine) AttachFeeder(transportID domain.TransportID, f *RTPFeeder) error {
	e.mu.Lock()
	t, ok := e.transports[transportID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown transport %s", transportID)
	}
	if t.dir != domain.DirectionSend {
		return fmt.Errorf("transport %s is not a send transport", transportID)
	}

	sender, err := t.pc.AddTrack(f.Track())
	if err != nil {
		return fmt.Errorf("failed to attach RTP feeder: %w", err)
	}
	go e.rtcpLoop(sender)
	return nil
}

// rtcpLoop drains a sender's RTCP return path into the downlink probe.
func (e *Engine) rtcpLoop(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		e.probe.Observe(pkts)
	}
}

// CreateReceiver materializes the inbound track for a confirmed consumer.
func (e *Engine) CreateReceiver(_ context.Context, transportID domain.TransportID, consumerID domain.ConsumerID, _ domain.ProducerID, kind domain.MediaKind, _ json.RawMessage) (ports.RemoteTrack, error) {
	e.mu.Lock()
	t, ok := e.transports[transportID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown transport %s", transportID)
	}

	codecType := webrtc.RTPCodecTypeAudio
	if kind == domain.KindVideo {
		codecType = webrtc.RTPCodecTypeVideo
	}
	transceiver, err := t.pc.AddTransceiverFromKind(codecType, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add receive transceiver: %w", err)
	}

	return &remoteTrack{
		id:          consumerID,
		kind:        kind,
		transceiver: transceiver,
	}, nil
}

// NetworkSignal reports the probe's current downlink estimate.
func (e *Engine) NetworkSignal() domain.NetworkSignal {
	return e.probe.Signal()
}

// SetAudioLevelHandler registers the sink for microphone energy samples.
func (e *Engine) SetAudioLevelHandler(fn func(level float64)) {
	e.levelMu.Lock()
	defer e.levelMu.Unlock()
	e.levelHandler = fn
}

// PushAudioFrame accepts one PCM frame from the capture source, computes
// its normalized RMS energy and forwards it to the level handler.
func (e *Engine) PushAudioFrame(pcm []int16) {
	e.levelMu.RLock()
	fn := e.levelHandler
	e.levelMu.RUnlock()
	if fn == nil || len(pcm) == 0 {
		return
	}
	fn(rmsLevel(pcm))
}

// Release frees all capture resources and forgets the transports.
func (e *Engine) Release() {
	e.mu.Lock()
	tracks := e.localTracks
	e.localTracks = nil
	for id := range e.transports {
		delete(e.transports, id)
	}
	e.mu.Unlock()

	for _, t := range tracks {
		_ = t.Close()
	}

	e.levelMu.Lock()
	e.levelHandler = nil
	e.levelMu.Unlock()
}

// transport wraps one peer connection as a ports.MediaTransport.
type transport struct {
	id   domain.TransportID
	dir  domain.TransportDirection
	pc   *webrtc.PeerConnection
	cert *webrtc.Certificate
	log  *zap.SugaredLogger
}

func (t *transport) ID() domain.TransportID               { return t.id }
func (t *transport) Direction() domain.TransportDirection { return t.dir }

// LocalParameters returns this side's DTLS fingerprints for the connect
// round trip.
func (t *transport) LocalParameters() (json.RawMessage, error) {
	fps, err := t.cert.GetFingerprints()
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate fingerprints: %w", err)
	}

	type fingerprint struct {
		Algorithm string `json:"algorithm"`
		Value     string `json:"value"`
	}
	params := struct {
		Role         string        `json:"role"`
		Fingerprints []fingerprint `json:"fingerprints"`
	}{Role: "client"}
	for _, fp := range fps {
		params.Fingerprints = append(params.Fingerprints, fingerprint{
			Algorithm: fp.Algorithm,
			Value:     fp.Value,
		})
	}
	return json.Marshal(params)
}

func (t *transport) Close() error {
	return t.pc.Close()
}
