// Package monitoring implements the MetricsRecorder port with Prometheus
// collectors.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"callkit/internal/core/domain"
)

// tierValue maps tiers onto a gauge scale for alerting thresholds.
var tierValue = map[domain.NetworkTier]float64{
	domain.TierSlow:   0,
	domain.TierMedium: 1,
	domain.TierFast:   2,
}

// PrometheusCollector records call lifecycle measurements.
type PrometheusCollector struct {
	activeSessions      prometheus.Gauge
	sessionsTotal       prometheus.Counter
	sessionEndsTotal    *prometheus.CounterVec
	producers           *prometheus.GaugeVec
	consumers           *prometheus.GaugeVec
	participants        prometheus.Gauge
	networkTier         prometheus.Gauge
	speakingTransitions *prometheus.CounterVec
	transportFailures   *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		activeSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "callkit_active_sessions",
			Help: "Number of active call sessions (0 or 1)",
		}),
		sessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callkit_sessions_total",
			Help: "Total number of call sessions started",
		}),
		sessionEndsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callkit_session_ends_total",
			Help: "Total number of session teardowns by reason",
		}, []string{"reason"}),
		producers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "callkit_producers",
			Help: "Number of open local producers by kind",
		}, []string{"kind"}),
		consumers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "callkit_consumers",
			Help: "Number of open remote consumers by kind",
		}, []string{"kind"}),
		participants: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "callkit_participants",
			Help: "Number of remote participants in the roster",
		}),
		networkTier: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "callkit_network_tier",
			Help: "Current network tier (0=slow, 1=medium, 2=fast)",
		}),
		speakingTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callkit_speaking_transitions_total",
			Help: "Total speaking state transitions by direction",
		}, []string{"to"}),
		transportFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callkit_transport_failures_total",
			Help: "Total transport handshake failures by direction",
		}, []string{"direction"}),
	}
}

func (c *PrometheusCollector) SessionStarted() {
	c.activeSessions.Set(1)
	c.sessionsTotal.Inc()
}

func (c *PrometheusCollector) SessionEnded(reason string) {
	c.activeSessions.Set(0)
	c.sessionEndsTotal.WithLabelValues(reason).Inc()
	c.participants.Set(0)
	for _, kind := range []domain.MediaKind{domain.KindAudio, domain.KindVideo} {
		c.producers.WithLabelValues(string(kind)).Set(0)
		c.consumers.WithLabelValues(string(kind)).Set(0)
	}
}

func (c *PrometheusCollector) ProducerOpened(kind domain.MediaKind) {
	c.producers.WithLabelValues(string(kind)).Inc()
}

func (c *PrometheusCollector) ProducerClosed(kind domain.MediaKind) {
	c.producers.WithLabelValues(string(kind)).Dec()
}

func (c *PrometheusCollector) ConsumerOpened(kind domain.MediaKind) {
	c.consumers.WithLabelValues(string(kind)).Inc()
}

func (c *PrometheusCollector) ConsumerClosed(kind domain.MediaKind) {
	c.consumers.WithLabelValues(string(kind)).Dec()
}

func (c *PrometheusCollector) ParticipantCount(n int) {
	c.participants.Set(float64(n))
}

func (c *PrometheusCollector) NetworkTier(tier domain.NetworkTier) {
	c.networkTier.Set(tierValue[tier])
}

func (c *PrometheusCollector) SpeakingTransition(speaking bool) {
	to := "silent"
	if speaking {
		to = "speaking"
	}
	c.speakingTransitions.WithLabelValues(to).Inc()
}

func (c *PrometheusCollector) TransportFailure(direction domain.TransportDirection) {
	c.transportFailures.WithLabelValues(string(direction)).Inc()
}
