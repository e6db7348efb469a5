package ports

import "callkit/internal/core/domain"

// MetricsRecorder receives call lifecycle measurements. Implemented by the
// monitoring adapter; a nil-safe no-op is used when monitoring is disabled.
type MetricsRecorder interface {
	SessionStarted()
	SessionEnded(reason string)
	ProducerOpened(kind domain.MediaKind)
	ProducerClosed(kind domain.MediaKind)
	ConsumerOpened(kind domain.MediaKind)
	ConsumerClosed(kind domain.MediaKind)
	ParticipantCount(n int)
	NetworkTier(tier domain.NetworkTier)
	SpeakingTransition(speaking bool)
	TransportFailure(direction domain.TransportDirection)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) SessionStarted()                                {}
func (NopMetrics) SessionEnded(string)                            {}
func (NopMetrics) ProducerOpened(domain.MediaKind)                {}
func (NopMetrics) ProducerClosed(domain.MediaKind)                {}
func (NopMetrics) ConsumerOpened(domain.MediaKind)                {}
func (NopMetrics) ConsumerClosed(domain.MediaKind)                {}
func (NopMetrics) ParticipantCount(int)                           {}
func (NopMetrics) NetworkTier(domain.NetworkTier)                 {}
func (NopMetrics) SpeakingTransition(bool)                        {}
func (NopMetrics) TransportFailure(domain.TransportDirection)     {}
