package services

import (
	"context"

	"go.uber.org/zap"

	"callkit/internal/core/domain"
	"callkit/internal/core/ports"
	"callkit/internal/core/signaling"
	callerrors "callkit/pkg/errors"
)

// ConsumerRegistry tracks remote inbound media handles and the participant
// that owns each of them. Remote producers announced before the inbound
// transport exists are dropped, never queued; consumers whose owner is not
// in the roster are dropped as well.
type ConsumerRegistry struct {
	gateway ports.SignalingGateway
	engine  ports.MediaEngine
	log     *zap.SugaredLogger

	tracks map[domain.ConsumerID]ports.RemoteTrack
}

func NewConsumerRegistry(gateway ports.SignalingGateway, engine ports.MediaEngine, log *zap.SugaredLogger) *ConsumerRegistry {
	return &ConsumerRegistry{
		gateway: gateway,
		engine:  engine,
		log:     log,
		tracks:  make(map[domain.ConsumerID]ports.RemoteTrack),
	}
}

// HandleRemoteProducer requests a consumer for a newly announced remote
// producer. Returns without sending when the inbound transport is not
// established yet.
func (r *ConsumerRegistry) HandleRemoteProducer(ctx context.Context, sess *domain.CallSession, ev signaling.NewRemoteProducer) error {
	conn := sess.Connection
	if conn == nil || conn.Inbound == nil {
		r.log.Warnw("dropping remote producer announcement, no inbound transport",
			"producer_id", ev.ProducerID,
			"owner_id", ev.OwnerID,
		)
		return nil
	}
	if !conn.CapabilityProfile.Valid() {
		return callerrors.NewProtocolViolation("remote producer announced before capability negotiation", domain.ErrNoProfile).
			WithContext("producer_id", string(ev.ProducerID))
	}

	cmd := signaling.Consume{
		RoomID:       sess.ChannelID,
		TransportID:  conn.Inbound.ID,
		ProducerID:   ev.ProducerID,
		Capabilities: conn.CapabilityProfile.RTPCapabilities,
	}
	return r.gateway.Send(ctx, cmd)
}

// HandleCreated registers the consumer granted by the coordinator,
// materializes its inbound track and issues the resume command. The owner
// must already be in the roster; otherwise the consumer is dropped.
func (r *ConsumerRegistry) HandleCreated(ctx context.Context, sess *domain.CallSession, roster *ParticipantDirectory, ev signaling.ConsumerCreated) (*domain.Consumer, ports.RemoteTrack, error) {
	conn := sess.Connection
	if conn == nil || conn.Inbound == nil {
		return nil, nil, callerrors.NewProtocolViolation("consumer-created without inbound transport", domain.ErrNoInboundTransport).
			WithContext("consumer_id", string(ev.ConsumerID))
	}
	if _, ok := roster.Get(ev.OwnerID); !ok {
		r.log.Warnw("dropping consumer for unknown participant",
			"consumer_id", ev.ConsumerID,
			"owner_id", ev.OwnerID,
		)
		return nil, nil, callerrors.NewProtocolViolation("consumer owner not in roster", domain.ErrUnknownParticipant).
			WithContext("consumer_id", string(ev.ConsumerID)).
			WithContext("owner_id", string(ev.OwnerID))
	}

	c := &domain.Consumer{
		ID:         ev.ConsumerID,
		ProducerID: ev.ProducerID,
		Kind:       ev.Kind,
		Owner:      ev.OwnerID,
	}
	conn.Consumers[c.ID] = c

	track, err := r.engine.CreateReceiver(ctx, ev.TransportID, ev.ConsumerID, ev.ProducerID, ev.Kind, ev.RTPParams)
	if err != nil {
		delete(conn.Consumers, c.ID)
		return nil, nil, callerrors.NewTransportError("failed to materialize consumer track", err).
			WithContext("consumer_id", string(ev.ConsumerID))
	}
	r.tracks[c.ID] = track

	if err := r.gateway.Send(ctx, signaling.ResumeConsumer{ConsumerID: c.ID}); err != nil {
		return nil, nil, err
	}

	r.log.Infow("consumer created",
		"consumer_id", c.ID,
		"producer_id", c.ProducerID,
		"kind", c.Kind,
		"owner_id", c.Owner,
	)
	return c, track, nil
}

// HandleResumed acknowledges the coordinator's resume confirmation.
func (r *ConsumerRegistry) HandleResumed(conn *domain.Connection, ev signaling.ConsumerResumed) error {
	if conn == nil {
		return domain.ErrNoActiveSession
	}
	if _, ok := conn.Consumers[ev.ConsumerID]; !ok {
		return callerrors.NewProtocolViolation("consumer-resumed for unknown consumer", domain.ErrUnknownConsumer).
			WithContext("consumer_id", string(ev.ConsumerID))
	}
	r.log.Debugw("consumer resumed", "consumer_id", ev.ConsumerID)
	return nil
}

// RemoveForParticipant closes and removes every consumer owned by the
// departing participant, returning the removed entries.
func (r *ConsumerRegistry) RemoveForParticipant(conn *domain.Connection, owner domain.ParticipantID) []*domain.Consumer {
	if conn == nil {
		return nil
	}

	var removed []*domain.Consumer
	for id, c := range conn.Consumers {
		if c.Owner != owner {
			continue
		}
		r.closeTrack(id)
		delete(conn.Consumers, id)
		removed = append(removed, c)
	}
	return removed
}

// CloseAll drops every consumer and closes its track.
func (r *ConsumerRegistry) CloseAll(conn *domain.Connection) {
	for id := range r.tracks {
		r.closeTrack(id)
	}
	if conn != nil {
		for id := range conn.Consumers {
			delete(conn.Consumers, id)
		}
	}
}

func (r *ConsumerRegistry) closeTrack(id domain.ConsumerID) {
	track, ok := r.tracks[id]
	if !ok {
		return
	}
	if err := track.Close(); err != nil {
		r.log.Warnw("failed to close consumer track", "consumer_id", id, "error", err)
	}
	delete(r.tracks, id)
}
