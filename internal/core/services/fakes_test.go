package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"callkit/internal/core/domain"
	"callkit/internal/core/ports"
	"callkit/internal/core/signaling"
)

// fakeGateway records outbound commands and lets tests emit inbound
// events synchronously.
type fakeGateway struct {
	mu       sync.Mutex
	commands []signaling.Command
	sendErr  error
	subs     map[int]func(signaling.Event)
	nextSub  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{subs: make(map[int]func(signaling.Event))}
}

func (g *fakeGateway) Send(_ context.Context, cmd signaling.Command) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return g.sendErr
	}
	g.commands = append(g.commands, cmd)
	return nil
}

type fakeSubscription struct{ cancel func() }

func (s *fakeSubscription) Unsubscribe() { s.cancel() }

func (g *fakeGateway) Subscribe(fn func(signaling.Event)) ports.Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	return &fakeSubscription{cancel: func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.subs, id)
	}}
}

func (g *fakeGateway) Close() error { return nil }

// Emit delivers an event to all subscribers on the caller's goroutine.
func (g *fakeGateway) Emit(ev signaling.Event) {
	g.mu.Lock()
	fns := make([]func(signaling.Event), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (g *fakeGateway) Commands() []signaling.Command {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]signaling.Command, len(g.commands))
	copy(out, g.commands)
	return out
}

func (g *fakeGateway) CommandsOfType(t signaling.CommandType) []signaling.Command {
	var out []signaling.Command
	for _, cmd := range g.Commands() {
		if cmd.CommandType() == t {
			out = append(out, cmd)
		}
	}
	return out
}

type fakeTrack struct {
	kind   domain.MediaKind
	source domain.TrackSource
	closed bool
}

func (t *fakeTrack) Kind() domain.MediaKind            { return t.kind }
func (t *fakeTrack) Source() domain.TrackSource        { return t.source }
func (t *fakeTrack) RTPParameters() json.RawMessage    { return json.RawMessage(`{"codecs":[]}`) }
func (t *fakeTrack) Close() error                      { t.closed = true; return nil }

type fakeRemoteTrack struct {
	id     domain.ConsumerID
	kind   domain.MediaKind
	closed bool
}

func (t *fakeRemoteTrack) ConsumerID() domain.ConsumerID { return t.id }
func (t *fakeRemoteTrack) Kind() domain.MediaKind        { return t.kind }
func (t *fakeRemoteTrack) Close() error                  { t.closed = true; return nil }

type fakeTransport struct {
	id  domain.TransportID
	dir domain.TransportDirection
}

func (t *fakeTransport) ID() domain.TransportID                  { return t.id }
func (t *fakeTransport) Direction() domain.TransportDirection    { return t.dir }
func (t *fakeTransport) LocalParameters() (json.RawMessage, error) {
	return json.RawMessage(`{"role":"client"}`), nil
}
func (t *fakeTransport) Close() error { return nil }

type fakeEngine struct {
	failLoad         bool
	failAcquire      bool
	failTransportDir domain.TransportDirection
	signal           domain.NetworkSignal

	levelHandler func(float64)
	released     bool
	remoteTracks []*fakeRemoteTrack
}

func (e *fakeEngine) LoadCapabilities(_ context.Context, remote json.RawMessage) (domain.CapabilityProfile, error) {
	if e.failLoad {
		return domain.CapabilityProfile{}, errors.New("unsupported codecs")
	}
	return domain.CapabilityProfile{RTPCapabilities: remote}, nil
}

func (e *fakeEngine) AcquireTracks(_ context.Context, audio, video bool) (ports.LocalTracks, error) {
	if e.failAcquire {
		return ports.LocalTracks{}, errors.New("permission denied")
	}
	var tracks ports.LocalTracks
	if audio {
		tracks.Audio = &fakeTrack{kind: domain.KindAudio, source: domain.SourceMicrophone}
	}
	if video {
		tracks.Video = &fakeTrack{kind: domain.KindVideo, source: domain.SourceCamera}
	}
	return tracks, nil
}

func (e *fakeEngine) AcquireScreenTrack(_ context.Context) (ports.LocalTrack, error) {
	if e.failAcquire {
		return nil, errors.New("permission denied")
	}
	return &fakeTrack{kind: domain.KindVideo, source: domain.SourceScreen}, nil
}

func (e *fakeEngine) CreateTransport(_ context.Context, params ports.TransportParams) (ports.MediaTransport, error) {
	if e.failTransportDir != "" && params.Direction == e.failTransportDir {
		return nil, errors.New("ice gathering failed")
	}
	return &fakeTransport{id: params.ID, dir: params.Direction}, nil
}

func (e *fakeEngine) CreateReceiver(_ context.Context, _ domain.TransportID, consumerID domain.ConsumerID, _ domain.ProducerID, kind domain.MediaKind, _ json.RawMessage) (ports.RemoteTrack, error) {
	track := &fakeRemoteTrack{id: consumerID, kind: kind}
	e.remoteTracks = append(e.remoteTracks, track)
	return track, nil
}

func (e *fakeEngine) NetworkSignal() domain.NetworkSignal { return e.signal }

func (e *fakeEngine) SetAudioLevelHandler(fn func(level float64)) { e.levelHandler = fn }

func (e *fakeEngine) Release() { e.released = true }
