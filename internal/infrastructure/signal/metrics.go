package signal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callkit_signaling_events_total",
		Help: "Total inbound signaling events by type",
	}, []string{"type"})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callkit_signaling_commands_total",
		Help: "Total outbound signaling commands by type",
	}, []string{"type"})

	malformedFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callkit_signaling_malformed_frames_total",
		Help: "Total inbound frames discarded as malformed",
	})
)
