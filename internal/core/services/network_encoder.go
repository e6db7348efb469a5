package services

import (
	"go.uber.org/zap"

	"callkit/internal/core/domain"
)

// NetworkAdaptiveEncoder classifies the local link into a tier and selects
// the simulcast ladder attached to outbound video producers. The ladder is
// fixed at producer creation time; it is never renegotiated mid-session.
// Callers change quality explicitly via SetPreferredTier, which only
// affects producers created afterwards.
type NetworkAdaptiveEncoder struct {
	log       *zap.SugaredLogger
	preferred domain.NetworkTier // empty means follow the network signal
}

func NewNetworkAdaptiveEncoder(log *zap.SugaredLogger) *NetworkAdaptiveEncoder {
	return &NetworkAdaptiveEncoder{log: log}
}

// Classify maps a network signal to a tier. The effective-type hint wins
// over the downlink estimate; with no signal at all the tier defaults to
// medium.
func (e *NetworkAdaptiveEncoder) Classify(sig domain.NetworkSignal) domain.NetworkTier {
	switch sig.EffectiveType {
	case "2g", "slow-2g":
		return domain.TierSlow
	case "3g":
		return domain.TierMedium
	case "4g":
		return domain.TierFast
	}

	if sig.DownlinkKnown {
		switch {
		case sig.DownlinkMbps < 1:
			return domain.TierSlow
		case sig.DownlinkMbps < 5:
			return domain.TierMedium
		default:
			return domain.TierFast
		}
	}

	return domain.TierMedium
}

// Ladder returns the simulcast layers for a tier, lowest layer first.
func (e *NetworkAdaptiveEncoder) Ladder(tier domain.NetworkTier) []domain.EncodingLayer {
	low := domain.EncodingLayer{MaxBitrate: 150, ScaleDownBy: 4, MaxFramerate: 15}
	mid := domain.EncodingLayer{MaxBitrate: 500, ScaleDownBy: 2, MaxFramerate: 30}
	high := domain.EncodingLayer{MaxBitrate: 1200, ScaleDownBy: 1, MaxFramerate: 30}

	switch tier {
	case domain.TierSlow:
		return []domain.EncodingLayer{low}
	case domain.TierFast:
		return []domain.EncodingLayer{low, mid, high}
	default:
		return []domain.EncodingLayer{low, mid}
	}
}

// SelectLadder resolves the tier (preferred override first, then the
// signal) and returns it with its ladder.
func (e *NetworkAdaptiveEncoder) SelectLadder(sig domain.NetworkSignal) (domain.NetworkTier, []domain.EncodingLayer) {
	tier := e.preferred
	if tier == "" {
		tier = e.Classify(sig)
	}

	ladder := e.Ladder(tier)
	e.log.Infow("encoding ladder selected",
		"tier", tier,
		"layers", len(ladder),
		"effective_type", sig.EffectiveType,
		"downlink_mbps", sig.DownlinkMbps,
	)
	return tier, ladder
}

// SetPreferredTier pins the tier for subsequently created video producers.
func (e *NetworkAdaptiveEncoder) SetPreferredTier(tier domain.NetworkTier) {
	e.preferred = tier
}

// ClearPreferredTier returns ladder selection to the network signal.
func (e *NetworkAdaptiveEncoder) ClearPreferredTier() {
	e.preferred = ""
}
