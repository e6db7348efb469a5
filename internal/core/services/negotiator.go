package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"callkit/internal/core/domain"
	"callkit/internal/core/ports"
	callerrors "callkit/pkg/errors"
)

// MediaCapabilityNegotiator loads the local media engine against the
// coordinator's capability description. Without a validated profile no
// media-plane operation may proceed, so any failure here is fatal to the
// session.
type MediaCapabilityNegotiator struct {
	engine ports.MediaEngine
	log    *zap.SugaredLogger
}

func NewMediaCapabilityNegotiator(engine ports.MediaEngine, log *zap.SugaredLogger) *MediaCapabilityNegotiator {
	return &MediaCapabilityNegotiator{
		engine: engine,
		log:    log,
	}
}

// Negotiate produces the session's capability profile.
func (n *MediaCapabilityNegotiator) Negotiate(ctx context.Context, remote json.RawMessage) (domain.CapabilityProfile, error) {
	if len(remote) == 0 {
		return domain.CapabilityProfile{}, callerrors.NewNegotiationError("empty remote capability description", nil)
	}

	profile, err := n.engine.LoadCapabilities(ctx, remote)
	if err != nil {
		return domain.CapabilityProfile{}, callerrors.NewNegotiationError("failed to load media capabilities", err)
	}
	if !profile.Valid() {
		return domain.CapabilityProfile{}, callerrors.NewNegotiationError("media engine produced an empty capability profile", nil)
	}

	n.log.Infow("capability profile negotiated", "profile_bytes", len(profile.RTPCapabilities))
	return profile, nil
}
