package services

import (
	"context"

	"go.uber.org/zap"

	"callkit/internal/core/domain"
	"callkit/internal/core/ports"
	"callkit/internal/core/signaling"
	callerrors "callkit/pkg/errors"
)

// TransportCoordinator establishes the two logical transports of a
// connection, one per direction, each through a two-phase handshake: the
// coordinator issues remote parameters (transport-created), the local
// engine instantiates its half and sends back its DTLS parameters, and
// transport-connected resolves the transport. A handshake failure is
// scoped to that transport; the sibling and the session stay up.
//
// All methods run inside the owning session's handling turn.
type TransportCoordinator struct {
	gateway ports.SignalingGateway
	engine  ports.MediaEngine
	log     *zap.SugaredLogger

	handles map[domain.TransportID]ports.MediaTransport
}

func NewTransportCoordinator(gateway ports.SignalingGateway, engine ports.MediaEngine, log *zap.SugaredLogger) *TransportCoordinator {
	return &TransportCoordinator{
		gateway: gateway,
		engine:  engine,
		log:     log,
		handles: make(map[domain.TransportID]ports.MediaTransport),
	}
}

// RequestTransports asks the coordinator to create both transport halves.
func (tc *TransportCoordinator) RequestTransports(ctx context.Context, channelID domain.ChannelID) error {
	for _, dir := range []domain.TransportDirection{domain.DirectionSend, domain.DirectionRecv} {
		cmd := signaling.CreateTransport{RoomID: channelID, Direction: dir}
		if err := tc.gateway.Send(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// HandleCreated instantiates the local transport half and starts the
// connect round trip.
func (tc *TransportCoordinator) HandleCreated(ctx context.Context, conn *domain.Connection, ev signaling.TransportCreated) error {
	t := &domain.Transport{
		ID:        ev.TransportID,
		Direction: ev.Direction,
		State:     domain.ConnectionConnecting,
	}
	switch ev.Direction {
	case domain.DirectionSend:
		conn.Outbound = t
	case domain.DirectionRecv:
		conn.Inbound = t
	default:
		return callerrors.NewProtocolViolation("transport-created with unknown direction", nil).
			WithContext("direction", string(ev.Direction))
	}

	handle, err := tc.engine.CreateTransport(ctx, ports.TransportParams{
		ID:            ev.TransportID,
		Direction:     ev.Direction,
		ICEParams:     ev.ICEParams,
		ICECandidates: ev.ICECandidates,
		DTLSParams:    ev.DTLSParams,
	})
	if err != nil {
		t.State = domain.ConnectionFailed
		return callerrors.NewTransportError("failed to create local transport", err).
			WithContext("transport_id", string(ev.TransportID)).
			WithContext("direction", string(ev.Direction))
	}

	dtls, err := handle.LocalParameters()
	if err != nil {
		t.State = domain.ConnectionFailed
		_ = handle.Close()
		return callerrors.NewTransportError("failed to read local transport parameters", err).
			WithContext("transport_id", string(ev.TransportID))
	}

	tc.handles[ev.TransportID] = handle

	cmd := signaling.ConnectTransport{TransportID: ev.TransportID, DTLSParams: dtls}
	if err := tc.gateway.Send(ctx, cmd); err != nil {
		return err
	}

	tc.log.Infow("transport handshake started",
		"transport_id", ev.TransportID,
		"direction", ev.Direction,
	)
	return nil
}

// HandleConnected resolves the handshake for one transport.
func (tc *TransportCoordinator) HandleConnected(conn *domain.Connection, ev signaling.TransportConnected) error {
	t := conn.TransportByID(ev.TransportID)
	if t == nil {
		return callerrors.NewProtocolViolation("transport-connected for unknown transport", domain.ErrUnknownTransport).
			WithContext("transport_id", string(ev.TransportID))
	}

	t.State = domain.ConnectionConnected
	tc.log.Infow("transport connected",
		"transport_id", ev.TransportID,
		"direction", t.Direction,
	)
	return nil
}

// Connected reports whether the transport for a direction has completed
// its handshake.
func (tc *TransportCoordinator) Connected(conn *domain.Connection, dir domain.TransportDirection) bool {
	var t *domain.Transport
	if dir == domain.DirectionSend {
		t = conn.Outbound
	} else {
		t = conn.Inbound
	}
	return t != nil && t.State == domain.ConnectionConnected
}

// CloseAll tears down both transport halves.
func (tc *TransportCoordinator) CloseAll(conn *domain.Connection) {
	for id, handle := range tc.handles {
		if err := handle.Close(); err != nil {
			tc.log.Warnw("failed to close transport handle", "transport_id", id, "error", err)
		}
		delete(tc.handles, id)
	}
	if conn == nil {
		return
	}
	if conn.Outbound != nil {
		conn.Outbound.State = domain.ConnectionClosed
	}
	if conn.Inbound != nil {
		conn.Inbound.State = domain.ConnectionClosed
	}
}
