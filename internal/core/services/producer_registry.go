package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callkit/internal/core/domain"
	"callkit/internal/core/ports"
	"callkit/internal/core/signaling"
	callerrors "callkit/pkg/errors"
)

// ProducerRegistry tracks locally originated media producers. Produce
// registers a provisional entry under a placeholder token so the caller
// gets a usable handle synchronously; when the coordinator reports the
// durable id for the same outbound transport, the placeholder is promoted
// exactly once and removed from the map. At most one placeholder may be
// outstanding per transport; a second Produce while one is pending is
// rejected with ErrProducePending.
type ProducerRegistry struct {
	gateway ports.SignalingGateway
	log     *zap.SugaredLogger

	pending map[domain.TransportID]*domain.Producer
}

func NewProducerRegistry(gateway ports.SignalingGateway, log *zap.SugaredLogger) *ProducerRegistry {
	return &ProducerRegistry{
		gateway: gateway,
		log:     log,
		pending: make(map[domain.TransportID]*domain.Producer),
	}
}

// Produce registers a provisional producer for a local track and sends the
// produce command. Encodings are only meaningful for video kinds.
func (r *ProducerRegistry) Produce(ctx context.Context, conn *domain.Connection, transportID domain.TransportID, track ports.LocalTrack, encodings []domain.EncodingLayer) (*domain.Producer, error) {
	if _, exists := r.pending[transportID]; exists {
		return nil, domain.ErrProducePending
	}

	p := &domain.Producer{
		Token:  uuid.NewString(),
		Kind:   track.Kind(),
		Source: track.Source(),
	}
	conn.Producers[p.Key()] = p
	r.pending[transportID] = p

	cmd := signaling.Produce{
		TransportID: transportID,
		Kind:        p.Kind,
		RTPParams:   track.RTPParameters(),
		Encodings:   encodings,
	}
	if err := r.gateway.Send(ctx, cmd); err != nil {
		delete(conn.Producers, p.Key())
		delete(r.pending, transportID)
		return nil, err
	}

	r.log.Infow("producer requested",
		"token", p.Token,
		"kind", p.Kind,
		"source", p.Source,
		"transport_id", transportID,
	)
	return p, nil
}

// Confirm promotes the transport's outstanding placeholder to the durable
// id announced by the coordinator.
func (r *ProducerRegistry) Confirm(conn *domain.Connection, transportID domain.TransportID, id domain.ProducerID) (*domain.Producer, error) {
	p, ok := r.pending[transportID]
	if !ok {
		return nil, callerrors.NewProtocolViolation("producer-created without outstanding produce", domain.ErrUnknownProducer).
			WithContext("transport_id", string(transportID)).
			WithContext("producer_id", string(id))
	}
	if _, taken := conn.Producers[string(id)]; taken {
		// durable keys are unique per connection; keep the placeholder
		// pending so a correct confirmation can still land
		return nil, callerrors.NewProtocolViolation("duplicate producer id", nil).
			WithContext("transport_id", string(transportID)).
			WithContext("producer_id", string(id))
	}
	delete(r.pending, transportID)

	delete(conn.Producers, p.Key())
	if !p.Confirm(id) {
		// cannot happen while the entry is still pending; guard anyway
		return nil, callerrors.NewProtocolViolation("producer already confirmed", nil).
			WithContext("producer_id", string(id))
	}
	conn.Producers[p.Key()] = p

	r.log.Infow("producer confirmed", "producer_id", id, "kind", p.Kind, "source", p.Source)
	return p, nil
}

// FindBySource returns the producer fed by a capture source, if any.
func (r *ProducerRegistry) FindBySource(conn *domain.Connection, source domain.TrackSource) *domain.Producer {
	for _, p := range conn.Producers {
		if p.Source == source {
			return p
		}
	}
	return nil
}

// Pause pauses a confirmed producer and notifies the coordinator.
func (r *ProducerRegistry) Pause(ctx context.Context, conn *domain.Connection, key string) error {
	p, ok := conn.Producers[key]
	if !ok {
		return domain.ErrUnknownProducer
	}
	p.Paused = true
	if !p.Confirmed() {
		return nil
	}
	return r.gateway.Send(ctx, signaling.PauseProducer{ProducerID: p.ID})
}

// Resume resumes a paused producer and notifies the coordinator.
func (r *ProducerRegistry) Resume(ctx context.Context, conn *domain.Connection, key string) error {
	p, ok := conn.Producers[key]
	if !ok {
		return domain.ErrUnknownProducer
	}
	p.Paused = false
	if !p.Confirmed() {
		return nil
	}
	return r.gateway.Send(ctx, signaling.ResumeProducer{ProducerID: p.ID})
}

// Close removes a producer and notifies the coordinator when the producer
// was already confirmed. Unconfirmed placeholders are dropped locally and
// their pending slot freed.
func (r *ProducerRegistry) Close(ctx context.Context, conn *domain.Connection, key string) error {
	p, ok := conn.Producers[key]
	if !ok {
		return domain.ErrUnknownProducer
	}
	delete(conn.Producers, key)

	if !p.Confirmed() {
		for tid, pending := range r.pending {
			if pending == p {
				delete(r.pending, tid)
			}
		}
		return nil
	}
	return r.gateway.Send(ctx, signaling.CloseProducer{ProducerID: p.ID})
}

// CloseAll drops every producer without notifying the coordinator; used
// during teardown where the end command already covers the whole session.
func (r *ProducerRegistry) CloseAll(conn *domain.Connection) {
	if conn != nil {
		for key := range conn.Producers {
			delete(conn.Producers, key)
		}
	}
	for tid := range r.pending {
		delete(r.pending, tid)
	}
}
