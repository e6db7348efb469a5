package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callkit/internal/core/domain"
	"callkit/internal/core/ports"
	"callkit/internal/core/signaling"
	callerrors "callkit/pkg/errors"
	"callkit/pkg/tracing"
)

// Options configures a CallSessionManager.
type Options struct {
	ClientID          domain.ParticipantID
	DisplayName       string
	AudioEnabled      bool
	VideoEnabled      bool
	SpeakingThreshold float64
	SilenceTimeout    time.Duration
}

type pendingProduce struct {
	track     ports.LocalTrack
	encodings []domain.EncodingLayer
}

// CallSessionManager owns the CallSession entity and coordinates all
// sub-components. One mutex serializes handling turns: every inbound
// signaling event, local user action and detector transition runs to
// completion before the next begins, so session state is only ever
// mutated by one turn at a time.
//
// Every failure routes through the session-level error observer, which
// applies the severity policy: fatal tears the session down, degrade
// forces the local media flags off and keeps the session alive,
// recoverable and ignore are logged.
type CallSessionManager struct {
	opts    Options
	gateway ports.SignalingGateway
	engine  ports.MediaEngine
	sinks   ports.MediaSinks
	metrics ports.MetricsRecorder
	log     *zap.SugaredLogger

	negotiator *MediaCapabilityNegotiator
	transports *TransportCoordinator
	producers  *ProducerRegistry
	consumers  *ConsumerRegistry
	encoder    *NetworkAdaptiveEncoder

	mu           sync.Mutex
	session      *domain.CallSession
	roster       *ParticipantDirectory
	detector     *AudioActivityDetector
	localTracks  ports.LocalTracks
	screenTrack  ports.LocalTrack
	produceQueue []pendingProduce
	sub          ports.Subscription
}

func NewCallSessionManager(
	opts Options,
	gateway ports.SignalingGateway,
	engine ports.MediaEngine,
	sinks ports.MediaSinks,
	metrics ports.MetricsRecorder,
	log *zap.SugaredLogger,
) *CallSessionManager {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &CallSessionManager{
		opts:       opts,
		gateway:    gateway,
		engine:     engine,
		sinks:      sinks,
		metrics:    metrics,
		log:        log,
		negotiator: NewMediaCapabilityNegotiator(engine, log),
		transports: NewTransportCoordinator(gateway, engine, log),
		producers:  NewProducerRegistry(gateway, log),
		consumers:  NewConsumerRegistry(gateway, engine, log),
		encoder:    NewNetworkAdaptiveEncoder(log),
	}
}

// Start creates a new call session on a channel. Ignored with a warning
// when a session is already active: the existing session is untouched.
func (m *CallSessionManager) Start(ctx context.Context, channelID domain.ChannelID) error {
	return m.beginSession(ctx, channelID, "start")
}

// Join enters an existing call on a channel. Same lifecycle as Start.
func (m *CallSessionManager) Join(ctx context.Context, channelID domain.ChannelID) error {
	return m.beginSession(ctx, channelID, "join")
}

func (m *CallSessionManager) beginSession(ctx context.Context, channelID domain.ChannelID, mode string) error {
	ctx, span := tracing.TraceChannelOperation(ctx, mode, string(channelID))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.log.Warnw("ignoring call start, a session is already active",
			"mode", mode,
			"active_channel_id", m.session.ChannelID,
			"requested_channel_id", channelID,
		)
		return domain.ErrSessionActive
	}

	local := &domain.Participant{ID: m.opts.ClientID, DisplayName: m.opts.DisplayName}
	sess := domain.NewCallSession(domain.SessionID(uuid.NewString()), channelID, local)
	m.session = sess
	m.roster = NewParticipantDirectory(sess, m.log)

	m.detector = NewAudioActivityDetector(m.opts.SpeakingThreshold, m.opts.SilenceTimeout, m.log)
	m.detector.OnChange(m.onSpeakingChanged)
	m.engine.SetAudioLevelHandler(m.detector.Sample)

	m.sub = m.gateway.Subscribe(m.handleEvent)
	m.metrics.SessionStarted()

	tracing.AddSpanAttributes(ctx, tracing.CallIDKey.String(string(sess.ID)))

	if err := m.gateway.Send(ctx, signaling.Join{CallID: sess.ID, ChannelID: channelID}); err != nil {
		tracing.RecordError(ctx, err)
		m.teardownLocked("join command failed")
		return err
	}

	m.acquireLocalMedia(ctx)

	if err := m.gateway.Send(ctx, signaling.RequestCapabilities{RoomID: channelID}); err != nil {
		tracing.RecordError(ctx, err)
		m.teardownLocked("capability request failed")
		return err
	}

	m.log.Infow("call session started",
		"mode", mode,
		"session_id", sess.ID,
		"channel_id", channelID,
	)
	return nil
}

// acquireLocalMedia captures the configured local kinds. Failure degrades:
// the session continues with the media flags off.
func (m *CallSessionManager) acquireLocalMedia(ctx context.Context) {
	if !m.opts.AudioEnabled && !m.opts.VideoEnabled {
		return
	}

	tracks, err := m.engine.AcquireTracks(ctx, m.opts.AudioEnabled, m.opts.VideoEnabled)
	if err != nil {
		m.observeLocked(callerrors.NewMediaAcquisitionError("failed to acquire local media", err))
		return
	}

	m.localTracks = tracks
	m.session.Local.Media.Audio = tracks.Audio != nil
	m.session.Local.Media.Video = tracks.Video != nil
	if tracks.Audio != nil {
		m.sinks.LocalTrack(tracks.Audio)
	}
	if tracks.Video != nil {
		m.sinks.LocalTrack(tracks.Video)
	}
}

// Leave tears the session down locally without ending the call for other
// participants.
func (m *CallSessionManager) Leave() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.ErrNoActiveSession
	}
	m.teardownLocked("leave")
	return nil
}

// End terminates the call for everyone, then tears down locally.
func (m *CallSessionManager) End(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.ErrNoActiveSession
	}
	ctx, span := tracing.TraceCallOperation(ctx, "end", string(m.session.ID))
	defer span.End()
	if err := m.gateway.Send(ctx, signaling.End{CallID: m.session.ID}); err != nil {
		m.log.Warnw("failed to send end command, tearing down anyway", "error", err)
	}
	m.teardownLocked("end")
	return nil
}

// ToggleAudio creates or destroys the microphone producer.
func (m *CallSessionManager) ToggleAudio(ctx context.Context) error {
	return m.toggleKind(ctx, domain.KindAudio)
}

// ToggleVideo creates or destroys the camera producer. The encoding
// ladder is selected from the current network signal at creation time.
func (m *CallSessionManager) ToggleVideo(ctx context.Context) error {
	return m.toggleKind(ctx, domain.KindVideo)
}

func (m *CallSessionManager) toggleKind(ctx context.Context, kind domain.MediaKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.ErrNoActiveSession
	}
	ctx, span := tracing.TraceCallOperation(ctx, "toggle-"+string(kind), string(m.session.ID))
	defer span.End()

	local := m.session.Local
	conn := m.session.Connection

	var (
		enabled *bool
		source  domain.TrackSource
	)
	if kind == domain.KindAudio {
		enabled = &local.Media.Audio
		source = domain.SourceMicrophone
	} else {
		enabled = &local.Media.Video
		source = domain.SourceCamera
	}

	if *enabled {
		m.dropQueuedLocked(source)
		if conn != nil {
			if p := m.producers.FindBySource(conn, source); p != nil {
				if err := m.producers.Close(ctx, conn, p.Key()); err != nil {
					return err
				}
				m.metrics.ProducerClosed(kind)
			}
		}
		*enabled = false
	} else {
		track, err := m.ensureLocalTrack(ctx, kind)
		if err != nil {
			*enabled = false
			m.log.Warnw("media toggle failed, kind stays off", "kind", kind, "error", err)
			return err
		}

		var encodings []domain.EncodingLayer
		if kind == domain.KindVideo {
			tier, ladder := m.encoder.SelectLadder(m.engine.NetworkSignal())
			m.metrics.NetworkTier(tier)
			encodings = ladder
		}
		if err := m.enqueueProduceLocked(ctx, track, encodings); err != nil {
			return err
		}
		*enabled = true
	}

	return m.gateway.Send(ctx, signaling.MediaStateUpdate{
		CallID: m.session.ID,
		Audio:  local.Media.Audio,
		Video:  local.Media.Video,
	})
}

// ensureLocalTrack returns the capture handle for a kind, acquiring it if
// the session started without one.
func (m *CallSessionManager) ensureLocalTrack(ctx context.Context, kind domain.MediaKind) (ports.LocalTrack, error) {
	if kind == domain.KindAudio {
		if m.localTracks.Audio != nil {
			return m.localTracks.Audio, nil
		}
		tracks, err := m.engine.AcquireTracks(ctx, true, false)
		if err != nil {
			return nil, callerrors.NewMediaAcquisitionError("failed to acquire microphone", err)
		}
		m.localTracks.Audio = tracks.Audio
		m.sinks.LocalTrack(tracks.Audio)
		return tracks.Audio, nil
	}

	if m.localTracks.Video != nil {
		return m.localTracks.Video, nil
	}
	tracks, err := m.engine.AcquireTracks(ctx, false, true)
	if err != nil {
		return nil, callerrors.NewMediaAcquisitionError("failed to acquire camera", err)
	}
	m.localTracks.Video = tracks.Video
	m.sinks.LocalTrack(tracks.Video)
	return tracks.Video, nil
}

// ToggleScreenShare starts or stops the screen producer.
func (m *CallSessionManager) ToggleScreenShare(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.ErrNoActiveSession
	}
	ctx, span := tracing.TraceCallOperation(ctx, "toggle-screen", string(m.session.ID))
	defer span.End()

	local := m.session.Local
	conn := m.session.Connection

	if local.Media.Screen {
		m.dropQueuedLocked(domain.SourceScreen)
		if conn != nil {
			if p := m.producers.FindBySource(conn, domain.SourceScreen); p != nil {
				if err := m.producers.Close(ctx, conn, p.Key()); err != nil {
					return err
				}
				m.metrics.ProducerClosed(domain.KindVideo)
			}
		}
		if m.screenTrack != nil {
			if err := m.screenTrack.Close(); err != nil {
				m.log.Warnw("failed to close screen track", "error", err)
			}
			m.screenTrack = nil
		}
		local.Media.Screen = false
	} else {
		track, err := m.engine.AcquireScreenTrack(ctx)
		if err != nil {
			return callerrors.NewMediaAcquisitionError("failed to acquire screen capture", err)
		}
		m.screenTrack = track
		m.sinks.LocalTrack(track)

		tier, ladder := m.encoder.SelectLadder(m.engine.NetworkSignal())
		m.metrics.NetworkTier(tier)
		if err := m.enqueueProduceLocked(ctx, track, ladder); err != nil {
			return err
		}
		local.Media.Screen = true
	}

	return m.gateway.Send(ctx, signaling.ScreenShareUpdate{
		CallID: m.session.ID,
		Active: local.Media.Screen,
	})
}

// SetPreferredTier pins the encoding tier for subsequently created video
// producers. Existing producers keep their ladder.
func (m *CallSessionManager) SetPreferredTier(tier domain.NetworkTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch tier {
	case domain.TierSlow, domain.TierMedium, domain.TierFast:
	default:
		return callerrors.NewProtocolViolation("unknown network tier", nil).
			WithContext("tier", string(tier))
	}

	m.encoder.SetPreferredTier(tier)
	m.metrics.NetworkTier(tier)
	m.log.Infow("preferred network tier set", "tier", tier)
	return nil
}

// SessionSnapshot is a read-only view of the current session for the
// control surface.
type SessionSnapshot struct {
	State           domain.SessionState    `json:"state"`
	SessionID       domain.SessionID       `json:"session_id,omitempty"`
	ChannelID       domain.ChannelID       `json:"channel_id,omitempty"`
	ConnectionState domain.ConnectionState `json:"connection_state,omitempty"`
	Local           *domain.Participant    `json:"local,omitempty"`
	Participants    []domain.Participant   `json:"participants,omitempty"`
	Producers       int                    `json:"producers"`
	Consumers       int                    `json:"consumers"`
}

// Snapshot returns the current session state.
func (m *CallSessionManager) Snapshot() SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return SessionSnapshot{State: domain.SessionIdle}
	}

	snap := SessionSnapshot{
		State:        m.session.State,
		SessionID:    m.session.ID,
		ChannelID:    m.session.ChannelID,
		Participants: m.roster.Snapshot(),
	}
	localCopy := *m.session.Local
	snap.Local = &localCopy
	if conn := m.session.Connection; conn != nil {
		snap.ConnectionState = conn.State
		snap.Producers = len(conn.Producers)
		snap.Consumers = len(conn.Consumers)
	}
	return snap
}

// handleEvent is the gateway subscription entry point: one handling turn
// per inbound event, in arrival order. Events arriving after teardown are
// dropped.
func (m *CallSessionManager) handleEvent(ev signaling.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		m.log.Debugw("dropping event, no active session", "event_type", ev.EventType())
		return
	}

	ctx, span := tracing.TraceSignalEvent(context.Background(), string(ev.EventType()))
	defer span.End()

	var err error
	switch e := ev.(type) {
	case signaling.CapabilityDescription:
		err = m.handleCapabilities(ctx, e)
	case signaling.TransportCreated:
		err = m.handleTransportCreated(ctx, e)
	case signaling.TransportConnected:
		err = m.handleTransportConnected(ctx, e)
	case signaling.ProducerCreated:
		err = m.handleProducerCreated(ctx, e)
	case signaling.NewRemoteProducer:
		err = m.consumers.HandleRemoteProducer(ctx, m.session, e)
	case signaling.ConsumerCreated:
		err = m.handleConsumerCreated(ctx, e)
	case signaling.ConsumerResumed:
		err = m.consumers.HandleResumed(m.session.Connection, e)
	case signaling.PeerJoined:
		m.roster.Add(e.UserID, e.DisplayName)
		m.metrics.ParticipantCount(m.roster.Count())
	case signaling.PeerLeft:
		m.handlePeerLeft(e)
	case signaling.MediaStateChanged:
		m.roster.Patch(e.UserID, domain.ParticipantPatch{Audio: &e.Audio, Video: &e.Video})
	case signaling.ScreenShareChanged:
		m.roster.Patch(e.UserID, domain.ParticipantPatch{Screen: &e.Active})
	case signaling.SpeakingChanged:
		m.roster.Patch(e.UserID, domain.ParticipantPatch{Speaking: &e.Speaking})
	default:
		err = callerrors.NewProtocolViolation("unhandled event type", nil).
			WithContext("event_type", string(ev.EventType()))
	}

	if err != nil {
		tracing.RecordError(ctx, err)
		m.observeLocked(err)
	}
}

func (m *CallSessionManager) handleCapabilities(ctx context.Context, ev signaling.CapabilityDescription) error {
	profile, err := m.negotiator.Negotiate(ctx, ev.Capabilities)
	if err != nil {
		return err
	}

	conn := domain.NewConnection(profile)
	conn.State = domain.ConnectionConnecting
	m.session.Connection = conn

	return m.transports.RequestTransports(ctx, m.session.ChannelID)
}

func (m *CallSessionManager) handleTransportCreated(ctx context.Context, ev signaling.TransportCreated) error {
	conn := m.session.Connection
	if conn == nil {
		return callerrors.NewProtocolViolation("transport-created before capability negotiation", nil).
			WithContext("transport_id", string(ev.TransportID))
	}
	return m.transports.HandleCreated(ctx, conn, ev)
}

func (m *CallSessionManager) handleTransportConnected(ctx context.Context, ev signaling.TransportConnected) error {
	conn := m.session.Connection
	if conn == nil {
		return callerrors.NewProtocolViolation("transport-connected before capability negotiation", nil).
			WithContext("transport_id", string(ev.TransportID))
	}
	if err := m.transports.HandleConnected(conn, ev); err != nil {
		return err
	}

	if m.transports.Connected(conn, domain.DirectionSend) && m.transports.Connected(conn, domain.DirectionRecv) {
		conn.State = domain.ConnectionConnected
	}

	// the outbound transport coming up unblocks initial production
	if conn.Outbound != nil && conn.Outbound.ID == ev.TransportID {
		m.enqueueInitialProduces()
		return m.produceNextLocked(ctx)
	}
	return nil
}

// enqueueInitialProduces schedules one producer per enabled local kind,
// audio first. A kind toggled off while the transports were still coming
// up is skipped, and a track already waiting in the queue (queued by a
// toggle that ran before the outbound transport connected) is not queued
// twice. Producers are created sequentially: the one-placeholder invariant
// allows only a single outstanding produce per transport.
func (m *CallSessionManager) enqueueInitialProduces() {
	media := m.session.Local.Media
	if media.Audio && m.localTracks.Audio != nil && !m.queuedLocked(m.localTracks.Audio) {
		m.produceQueue = append(m.produceQueue, pendingProduce{track: m.localTracks.Audio})
	}
	if media.Video && m.localTracks.Video != nil && !m.queuedLocked(m.localTracks.Video) {
		tier, ladder := m.encoder.SelectLadder(m.engine.NetworkSignal())
		m.metrics.NetworkTier(tier)
		m.produceQueue = append(m.produceQueue, pendingProduce{track: m.localTracks.Video, encodings: ladder})
	}
}

func (m *CallSessionManager) queuedLocked(track ports.LocalTrack) bool {
	for _, item := range m.produceQueue {
		if item.track == track {
			return true
		}
	}
	return false
}

// dropQueuedLocked discards queued produces fed by a capture source that
// was toggled off before its produce command went out.
func (m *CallSessionManager) dropQueuedLocked(source domain.TrackSource) {
	kept := m.produceQueue[:0]
	for _, item := range m.produceQueue {
		if item.track.Source() != source {
			kept = append(kept, item)
		}
	}
	m.produceQueue = kept
}

func (m *CallSessionManager) enqueueProduceLocked(ctx context.Context, track ports.LocalTrack, encodings []domain.EncodingLayer) error {
	m.produceQueue = append(m.produceQueue, pendingProduce{track: track, encodings: encodings})

	conn := m.session.Connection
	if conn == nil || !m.transports.Connected(conn, domain.DirectionSend) {
		return nil // produced once the outbound transport comes up
	}
	return m.produceNextLocked(ctx)
}

func (m *CallSessionManager) produceNextLocked(ctx context.Context) error {
	conn := m.session.Connection
	if conn == nil || conn.Outbound == nil || len(m.produceQueue) == 0 {
		return nil
	}

	next := m.produceQueue[0]
	_, err := m.producers.Produce(ctx, conn, conn.Outbound.ID, next.track, next.encodings)
	if err == domain.ErrProducePending {
		return nil // retried when the outstanding produce confirms
	}
	m.produceQueue = m.produceQueue[1:]
	return err
}

func (m *CallSessionManager) handleProducerCreated(ctx context.Context, ev signaling.ProducerCreated) error {
	conn := m.session.Connection
	if conn == nil {
		return callerrors.NewProtocolViolation("producer-created before capability negotiation", nil).
			WithContext("producer_id", string(ev.ProducerID))
	}

	p, err := m.producers.Confirm(conn, ev.TransportID, ev.ProducerID)
	if err != nil {
		return err
	}
	m.metrics.ProducerOpened(p.Kind)

	return m.produceNextLocked(ctx)
}

func (m *CallSessionManager) handleConsumerCreated(ctx context.Context, ev signaling.ConsumerCreated) error {
	c, track, err := m.consumers.HandleCreated(ctx, m.session, m.roster, ev)
	if err != nil {
		return err
	}
	m.metrics.ConsumerOpened(c.Kind)
	m.sinks.RemoteTrack(c.Owner, track)
	return nil
}

func (m *CallSessionManager) handlePeerLeft(ev signaling.PeerLeft) {
	removed := m.consumers.RemoveForParticipant(m.session.Connection, ev.UserID)
	for _, c := range removed {
		m.metrics.ConsumerClosed(c.Kind)
	}
	if m.roster.Remove(ev.UserID) {
		m.metrics.ParticipantCount(m.roster.Count())
	}
	m.log.Infow("participant left",
		"participant_id", ev.UserID,
		"consumers_closed", len(removed),
	)
}

// onSpeakingChanged is the detector's transition callback; it runs as its
// own handling turn.
func (m *CallSessionManager) onSpeakingChanged(speaking bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return
	}
	m.session.Local.Speaking = speaking
	m.metrics.SpeakingTransition(speaking)

	cmd := signaling.SpeakingUpdate{CallID: m.session.ID, Speaking: speaking}
	if err := m.gateway.Send(context.Background(), cmd); err != nil {
		m.observeLocked(err)
	}
}

// observeLocked is the session-level error observer. Must be called with
// the manager lock held.
func (m *CallSessionManager) observeLocked(err error) {
	ce := callerrors.GetCallError(err)

	switch callerrors.SeverityOf(err) {
	case callerrors.SeverityFatal:
		m.log.Errorw("fatal call error, tearing down session", "error", err)
		m.teardownLocked("fatal error")
	case callerrors.SeverityDegrade:
		m.log.Warnw("media degraded, session continues", "error", err)
		if m.session != nil {
			m.session.Local.Media.Audio = false
			m.session.Local.Media.Video = false
		}
	case callerrors.SeverityRecoverable:
		m.log.Warnw("recoverable call error", "error", err)
		if ce != nil {
			if dir, ok := ce.Context["direction"].(string); ok {
				m.metrics.TransportFailure(domain.TransportDirection(dir))
			}
		}
	default:
		m.log.Debugw("ignoring protocol violation", "error", err)
	}
}

// teardownLocked dismantles the whole session graph: producers, consumers,
// transports, local capture, detector timer and the gateway subscription.
// Must be called with the manager lock held.
func (m *CallSessionManager) teardownLocked(reason string) {
	if m.session == nil {
		return
	}

	sess := m.session
	conn := sess.Connection

	m.producers.CloseAll(conn)
	m.consumers.CloseAll(conn)
	m.transports.CloseAll(conn)
	if conn != nil {
		conn.State = domain.ConnectionClosed
	}

	if m.localTracks.Audio != nil {
		_ = m.localTracks.Audio.Close()
	}
	if m.localTracks.Video != nil {
		_ = m.localTracks.Video.Close()
	}
	if m.screenTrack != nil {
		_ = m.screenTrack.Close()
	}
	m.localTracks = ports.LocalTracks{}
	m.screenTrack = nil

	if m.detector != nil {
		m.detector.Close()
		m.detector = nil
	}
	m.engine.Release()

	if m.sub != nil {
		m.sub.Unsubscribe()
		m.sub = nil
	}

	m.produceQueue = nil
	sess.State = domain.SessionIdle
	m.session = nil
	m.roster = nil

	m.metrics.SessionEnded(reason)
	m.log.Infow("call session ended", "session_id", sess.ID, "reason", reason)
}
