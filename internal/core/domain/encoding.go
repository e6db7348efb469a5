package domain

type NetworkTier string

const (
	TierSlow   NetworkTier = "slow"
	TierMedium NetworkTier = "medium"
	TierFast   NetworkTier = "fast"
)

// EncodingLayer is one simulcast rung of the outbound video ladder.
type EncodingLayer struct {
	MaxBitrate   int `json:"max_bitrate"` // kbps
	ScaleDownBy  int `json:"scale_down_by"`
	MaxFramerate int `json:"max_framerate"`
}

// NetworkSignal carries whatever the platform can tell us about the local
// link. EffectiveType mirrors the navigator connection hint ("2g", "3g",
// "4g", "slow-2g") and is empty when unavailable; DownlinkMbps is only
// meaningful when DownlinkKnown is set.
type NetworkSignal struct {
	EffectiveType string
	DownlinkMbps  float64
	DownlinkKnown bool
}
