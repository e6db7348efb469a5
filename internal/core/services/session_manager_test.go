package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callkit/internal/core/domain"
	"callkit/internal/core/ports"
	"callkit/internal/core/signaling"
	"callkit/pkg/logger"
)

func newTestManager(engine *fakeEngine) (*CallSessionManager, *fakeGateway, *fakeEngine) {
	if engine == nil {
		engine = &fakeEngine{}
	}
	g := newFakeGateway()
	m := NewCallSessionManager(Options{
		ClientID:          "local-1",
		DisplayName:       "Me",
		AudioEnabled:      true,
		VideoEnabled:      true,
		SpeakingThreshold: 0.05,
		SilenceTimeout:    100 * time.Millisecond,
	}, g, engine, ports.MediaSinks{}, nil, logger.NewNop())
	return m, g, engine
}

// connectSession drives a freshly started session through negotiation and
// both transport handshakes.
func connectSession(t *testing.T, m *CallSessionManager, g *fakeGateway) {
	t.Helper()
	require.NoError(t, m.Start(context.Background(), "channel-1"))

	g.Emit(signaling.CapabilityDescription{
		RoomID:       "channel-1",
		Capabilities: json.RawMessage(`{"codecs":["opus","vp8"]}`),
	})
	g.Emit(signaling.TransportCreated{
		RoomID: "channel-1", Direction: domain.DirectionSend, TransportID: "t-send",
	})
	g.Emit(signaling.TransportCreated{
		RoomID: "channel-1", Direction: domain.DirectionRecv, TransportID: "t-recv",
	})
	g.Emit(signaling.TransportConnected{TransportID: "t-recv"})
	g.Emit(signaling.TransportConnected{TransportID: "t-send"})
}

func TestStartIgnoredWhileActive(t *testing.T) {
	m, g, _ := newTestManager(nil)
	connectSession(t, m, g)

	before := m.Snapshot()
	err := m.Start(context.Background(), "channel-2")

	assert.ErrorIs(t, err, domain.ErrSessionActive)
	after := m.Snapshot()
	assert.Equal(t, before.SessionID, after.SessionID)
	assert.Equal(t, domain.ChannelID("channel-1"), after.ChannelID)
	assert.Equal(t, domain.SessionActive, after.State)
}

func TestStartCommandSequence(t *testing.T) {
	m, g, _ := newTestManager(nil)
	connectSession(t, m, g)

	assert.Len(t, g.CommandsOfType(signaling.CommandJoin), 1)
	assert.Len(t, g.CommandsOfType(signaling.CommandRequestCapabilities), 1)
	assert.Len(t, g.CommandsOfType(signaling.CommandCreateTransport), 2)
	assert.Len(t, g.CommandsOfType(signaling.CommandConnectTransport), 2)

	// production begins once the outbound transport connects, audio first
	produces := g.CommandsOfType(signaling.CommandProduce)
	require.Len(t, produces, 1)
	assert.Equal(t, domain.KindAudio, produces[0].(signaling.Produce).Kind)

	snap := m.Snapshot()
	assert.Equal(t, domain.ConnectionConnected, snap.ConnectionState)
}

func TestVideoProducedAfterAudioConfirms(t *testing.T) {
	m, g, _ := newTestManager(nil)
	connectSession(t, m, g)

	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-audio"})

	produces := g.CommandsOfType(signaling.CommandProduce)
	require.Len(t, produces, 2)
	video := produces[1].(signaling.Produce)
	assert.Equal(t, domain.KindVideo, video.Kind)
	// no network signal: medium tier, two-layer ladder
	assert.Len(t, video.Encodings, 2)

	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-video"})
	assert.Equal(t, 2, m.Snapshot().Producers)
}

func TestPlaceholderPromotion(t *testing.T) {
	m, g, _ := newTestManager(nil)
	connectSession(t, m, g)

	conn := m.session.Connection
	require.Len(t, conn.Producers, 1)
	var token string
	for key, p := range conn.Producers {
		assert.False(t, p.Confirmed())
		token = key
	}

	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-audio"})

	assert.NotContains(t, conn.Producers, token)
	assert.Contains(t, conn.Producers, "prod-audio")
	assert.True(t, conn.Producers["prod-audio"].Confirmed())
}

func TestSlowNetworkSingleLayerLadder(t *testing.T) {
	engine := &fakeEngine{signal: domain.NetworkSignal{DownlinkMbps: 0.5, DownlinkKnown: true}}
	m, g, _ := newTestManager(engine)
	connectSession(t, m, g)
	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-audio"})

	produces := g.CommandsOfType(signaling.CommandProduce)
	require.Len(t, produces, 2)
	video := produces[1].(signaling.Produce)
	require.Len(t, video.Encodings, 1)
	assert.Equal(t, domain.EncodingLayer{MaxBitrate: 150, ScaleDownBy: 4, MaxFramerate: 15}, video.Encodings[0])
}

func TestPeerLeftCascade(t *testing.T) {
	m, g, engine := newTestManager(nil)
	connectSession(t, m, g)

	g.Emit(signaling.PeerJoined{RoomID: "channel-1", UserID: "user-1", DisplayName: "Alice"})
	g.Emit(signaling.NewRemoteProducer{
		RoomID: "channel-1", ProducerID: "prod-r1", OwnerID: "user-1", Kind: domain.KindAudio,
	})
	require.Len(t, g.CommandsOfType(signaling.CommandConsume), 1)

	g.Emit(signaling.ConsumerCreated{
		RoomID: "channel-1", TransportID: "t-recv", ProducerID: "prod-r1",
		ConsumerID: "cons-1", Kind: domain.KindAudio, OwnerID: "user-1",
	})
	require.Len(t, g.CommandsOfType(signaling.CommandResumeConsumer), 1)
	assert.Equal(t, 1, m.Snapshot().Consumers)

	g.Emit(signaling.PeerLeft{RoomID: "channel-1", UserID: "user-1"})

	snap := m.Snapshot()
	assert.Equal(t, 0, snap.Consumers)
	assert.Empty(t, snap.Participants)
	require.Len(t, engine.remoteTracks, 1)
	assert.True(t, engine.remoteTracks[0].closed)
}

func TestMediaAcquisitionFailureDegrades(t *testing.T) {
	engine := &fakeEngine{failAcquire: true}
	m, g, _ := newTestManager(engine)

	require.NoError(t, m.Start(context.Background(), "channel-1"))

	snap := m.Snapshot()
	assert.Equal(t, domain.SessionActive, snap.State)
	assert.False(t, snap.Local.Media.Audio)
	assert.False(t, snap.Local.Media.Video)

	// no tracks, so nothing to produce after the transports come up
	g.Emit(signaling.CapabilityDescription{RoomID: "channel-1", Capabilities: json.RawMessage(`{}`)})
	g.Emit(signaling.TransportCreated{RoomID: "channel-1", Direction: domain.DirectionSend, TransportID: "t-send"})
	g.Emit(signaling.TransportConnected{TransportID: "t-send"})
	assert.Empty(t, g.CommandsOfType(signaling.CommandProduce))
}

func TestNegotiationFailureTearsDown(t *testing.T) {
	engine := &fakeEngine{failLoad: true}
	m, g, _ := newTestManager(engine)
	require.NoError(t, m.Start(context.Background(), "channel-1"))

	g.Emit(signaling.CapabilityDescription{RoomID: "channel-1", Capabilities: json.RawMessage(`{}`)})

	assert.Equal(t, domain.SessionIdle, m.Snapshot().State)
	assert.True(t, engine.released)
}

func TestRemoteProducerDroppedWithoutInboundTransport(t *testing.T) {
	m, g, _ := newTestManager(nil)
	require.NoError(t, m.Start(context.Background(), "channel-1"))
	g.Emit(signaling.CapabilityDescription{RoomID: "channel-1", Capabilities: json.RawMessage(`{}`)})
	g.Emit(signaling.TransportCreated{RoomID: "channel-1", Direction: domain.DirectionSend, TransportID: "t-send"})

	announce := signaling.NewRemoteProducer{
		RoomID: "channel-1", ProducerID: "prod-r1", OwnerID: "user-1", Kind: domain.KindAudio,
	}
	g.Emit(announce)
	// dropped, not queued
	assert.Empty(t, g.CommandsOfType(signaling.CommandConsume))

	g.Emit(signaling.TransportCreated{RoomID: "channel-1", Direction: domain.DirectionRecv, TransportID: "t-recv"})
	g.Emit(announce)
	assert.Len(t, g.CommandsOfType(signaling.CommandConsume), 1)
}

func TestConsumerWithUnknownOwnerDropped(t *testing.T) {
	m, g, _ := newTestManager(nil)
	connectSession(t, m, g)

	g.Emit(signaling.ConsumerCreated{
		RoomID: "channel-1", TransportID: "t-recv", ProducerID: "prod-r1",
		ConsumerID: "cons-1", Kind: domain.KindAudio, OwnerID: "ghost",
	})

	assert.Empty(t, g.CommandsOfType(signaling.CommandResumeConsumer))
	snap := m.Snapshot()
	assert.Equal(t, 0, snap.Consumers)
	assert.Equal(t, domain.SessionActive, snap.State)
}

func TestTransportFailureDoesNotCascade(t *testing.T) {
	engine := &fakeEngine{failTransportDir: domain.DirectionRecv}
	m, g, _ := newTestManager(engine)
	require.NoError(t, m.Start(context.Background(), "channel-1"))

	g.Emit(signaling.CapabilityDescription{RoomID: "channel-1", Capabilities: json.RawMessage(`{}`)})
	g.Emit(signaling.TransportCreated{RoomID: "channel-1", Direction: domain.DirectionSend, TransportID: "t-send"})
	g.Emit(signaling.TransportCreated{RoomID: "channel-1", Direction: domain.DirectionRecv, TransportID: "t-recv"})

	conn := m.session.Connection
	assert.Equal(t, domain.ConnectionFailed, conn.Inbound.State)
	assert.Equal(t, domain.SessionActive, m.Snapshot().State)

	// the sibling transport still completes and production starts
	g.Emit(signaling.TransportConnected{TransportID: "t-send"})
	assert.Equal(t, domain.ConnectionConnected, conn.Outbound.State)
	assert.Len(t, g.CommandsOfType(signaling.CommandProduce), 1)
}

func TestSpeakingFlowsToGateway(t *testing.T) {
	m, g, engine := newTestManager(nil)
	connectSession(t, m, g)
	require.NotNil(t, engine.levelHandler)

	engine.levelHandler(0.2)
	updates := g.CommandsOfType(signaling.CommandSpeakingUpdate)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].(signaling.SpeakingUpdate).Speaking)
	assert.True(t, m.Snapshot().Local.Speaking)

	engine.levelHandler(0.01)
	time.Sleep(200 * time.Millisecond) // past the 100ms silence timeout

	updates = g.CommandsOfType(signaling.CommandSpeakingUpdate)
	require.Len(t, updates, 2)
	assert.False(t, updates[1].(signaling.SpeakingUpdate).Speaking)
}

func TestLeaveIsLocalOnly(t *testing.T) {
	m, g, engine := newTestManager(nil)
	connectSession(t, m, g)

	require.NoError(t, m.Leave())

	assert.Empty(t, g.CommandsOfType(signaling.CommandEnd))
	assert.Equal(t, domain.SessionIdle, m.Snapshot().State)
	assert.True(t, engine.released)

	assert.ErrorIs(t, m.Leave(), domain.ErrNoActiveSession)
}

func TestEndSendsEndCommand(t *testing.T) {
	m, g, _ := newTestManager(nil)
	connectSession(t, m, g)

	require.NoError(t, m.End(context.Background()))

	assert.Len(t, g.CommandsOfType(signaling.CommandEnd), 1)
	assert.Equal(t, domain.SessionIdle, m.Snapshot().State)
}

func TestEventsDroppedAfterTeardown(t *testing.T) {
	m, g, _ := newTestManager(nil)
	connectSession(t, m, g)
	require.NoError(t, m.Leave())

	g.Emit(signaling.PeerJoined{RoomID: "channel-1", UserID: "user-1", DisplayName: "Alice"})
	assert.Equal(t, domain.SessionIdle, m.Snapshot().State)
}

func TestToggleAudio(t *testing.T) {
	m, g, _ := newTestManager(nil)
	connectSession(t, m, g)
	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-audio"})
	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-video"})

	require.NoError(t, m.ToggleAudio(context.Background()))

	closes := g.CommandsOfType(signaling.CommandCloseProducer)
	require.Len(t, closes, 1)
	assert.Equal(t, domain.ProducerID("prod-audio"), closes[0].(signaling.CloseProducer).ProducerID)

	states := g.CommandsOfType(signaling.CommandMediaStateUpdate)
	require.Len(t, states, 1)
	assert.False(t, states[0].(signaling.MediaStateUpdate).Audio)
	assert.True(t, states[0].(signaling.MediaStateUpdate).Video)

	// toggling back on produces again from the retained track
	require.NoError(t, m.ToggleAudio(context.Background()))
	assert.Len(t, g.CommandsOfType(signaling.CommandProduce), 3)
	assert.True(t, m.Snapshot().Local.Media.Audio)
}

func TestToggleAudioOffBeforeTransportConnect(t *testing.T) {
	m, g, _ := newTestManager(nil)
	require.NoError(t, m.Start(context.Background(), "channel-1"))
	g.Emit(signaling.CapabilityDescription{RoomID: "channel-1", Capabilities: json.RawMessage(`{}`)})

	// mute before any transport exists; no producer has been created yet
	require.NoError(t, m.ToggleAudio(context.Background()))

	g.Emit(signaling.TransportCreated{RoomID: "channel-1", Direction: domain.DirectionSend, TransportID: "t-send"})
	g.Emit(signaling.TransportCreated{RoomID: "channel-1", Direction: domain.DirectionRecv, TransportID: "t-recv"})
	g.Emit(signaling.TransportConnected{TransportID: "t-send"})
	g.Emit(signaling.TransportConnected{TransportID: "t-recv"})

	// only the still-enabled camera is produced, matching the media state
	// already announced to the room
	produces := g.CommandsOfType(signaling.CommandProduce)
	require.Len(t, produces, 1)
	assert.Equal(t, domain.KindVideo, produces[0].(signaling.Produce).Kind)
	assert.False(t, m.Snapshot().Local.Media.Audio)
}

func TestToggleVideoBeforeTransportConnectProducesOnce(t *testing.T) {
	m, g, _ := newTestManager(nil)
	require.NoError(t, m.Start(context.Background(), "channel-1"))
	g.Emit(signaling.CapabilityDescription{RoomID: "channel-1", Capabilities: json.RawMessage(`{}`)})

	// camera off then on again while the transports are still coming up
	require.NoError(t, m.ToggleVideo(context.Background()))
	require.NoError(t, m.ToggleVideo(context.Background()))

	g.Emit(signaling.TransportCreated{RoomID: "channel-1", Direction: domain.DirectionSend, TransportID: "t-send"})
	g.Emit(signaling.TransportCreated{RoomID: "channel-1", Direction: domain.DirectionRecv, TransportID: "t-recv"})
	g.Emit(signaling.TransportConnected{TransportID: "t-send"})
	g.Emit(signaling.TransportConnected{TransportID: "t-recv"})
	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-1"})
	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-2"})

	var audio, video int
	for _, cmd := range g.CommandsOfType(signaling.CommandProduce) {
		switch cmd.(signaling.Produce).Kind {
		case domain.KindAudio:
			audio++
		case domain.KindVideo:
			video++
		}
	}
	assert.Equal(t, 1, audio)
	assert.Equal(t, 1, video)
	assert.Equal(t, 2, m.Snapshot().Producers)
}

func TestToggleScreenShare(t *testing.T) {
	m, g, _ := newTestManager(nil)
	connectSession(t, m, g)
	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-audio"})
	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-video"})

	require.NoError(t, m.ToggleScreenShare(context.Background()))

	shares := g.CommandsOfType(signaling.CommandScreenShareUpdate)
	require.Len(t, shares, 1)
	assert.True(t, shares[0].(signaling.ScreenShareUpdate).Active)
	assert.True(t, m.Snapshot().Local.Media.Screen)

	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-screen"})

	require.NoError(t, m.ToggleScreenShare(context.Background()))
	shares = g.CommandsOfType(signaling.CommandScreenShareUpdate)
	require.Len(t, shares, 2)
	assert.False(t, shares[1].(signaling.ScreenShareUpdate).Active)
	assert.False(t, m.Snapshot().Local.Media.Screen)
}

func TestSetPreferredTier(t *testing.T) {
	m, g, _ := newTestManager(nil)
	connectSession(t, m, g)
	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-audio"})
	g.Emit(signaling.ProducerCreated{TransportID: "t-send", ProducerID: "prod-video"})

	assert.Error(t, m.SetPreferredTier("warp"))
	require.NoError(t, m.SetPreferredTier(domain.TierSlow))

	// subsequent video producers carry the pinned single-layer ladder
	require.NoError(t, m.ToggleVideo(context.Background())) // off
	require.NoError(t, m.ToggleVideo(context.Background())) // on again

	produces := g.CommandsOfType(signaling.CommandProduce)
	last := produces[len(produces)-1].(signaling.Produce)
	assert.Equal(t, domain.KindVideo, last.Kind)
	assert.Len(t, last.Encodings, 1)
}
