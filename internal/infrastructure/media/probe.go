package media

import (
	"sync"
	"time"

	"github.com/pion/rtcp"

	"callkit/internal/core/domain"
)

// probeStaleAfter bounds how long a REMB estimate stays trustworthy.
const probeStaleAfter = 10 * time.Second

// DownlinkProbe derives a link estimate from the coordinator's REMB
// (receiver estimated maximum bitrate) feedback on the RTCP return path.
// With no fresh estimate the signal is unknown and classification falls
// back to its conservative default.
type DownlinkProbe struct {
	mu         sync.RWMutex
	bitrateBps float64
	updatedAt  time.Time
}

func NewDownlinkProbe() *DownlinkProbe {
	return &DownlinkProbe{}
}

// Observe scans a batch of RTCP packets for REMB feedback.
func (p *DownlinkProbe) Observe(pkts []rtcp.Packet) {
	for _, pkt := range pkts {
		remb, ok := pkt.(*rtcp.ReceiverEstimatedMaximumBitrate)
		if !ok {
			continue
		}
		p.mu.Lock()
		p.bitrateBps = float64(remb.Bitrate)
		p.updatedAt = time.Now()
		p.mu.Unlock()
	}
}

// ObserveRaw parses a raw RTCP datagram and feeds it to Observe.
func (p *DownlinkProbe) ObserveRaw(raw []byte) error {
	pkts, err := rtcp.Unmarshal(raw)
	if err != nil {
		return err
	}
	p.Observe(pkts)
	return nil
}

// Signal reports the current downlink estimate in Mbps.
func (p *DownlinkProbe) Signal() domain.NetworkSignal {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.updatedAt.IsZero() || time.Since(p.updatedAt) > probeStaleAfter {
		return domain.NetworkSignal{}
	}
	return domain.NetworkSignal{
		DownlinkMbps:  p.bitrateBps / 1e6,
		DownlinkKnown: true,
	}
}
