package domain

import "encoding/json"

type SessionID string
type ChannelID string
type ParticipantID string
type TransportID string
type ProducerID string
type ConsumerID string

type SessionState string

const (
	SessionIdle   SessionState = "idle"
	SessionActive SessionState = "active"
)

type ConnectionState string

const (
	ConnectionNew          ConnectionState = "new"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionFailed       ConnectionState = "failed"
	ConnectionClosed       ConnectionState = "closed"
)

type TransportDirection string

const (
	DirectionSend TransportDirection = "send"
	DirectionRecv TransportDirection = "recv"
)

// CapabilityProfile is the validated result of loading the local media
// engine against the coordinator's capability description. Opaque to the
// session core; only the media engine interprets it.
type CapabilityProfile struct {
	RTPCapabilities json.RawMessage
}

func (p CapabilityProfile) Valid() bool {
	return len(p.RTPCapabilities) > 0
}

// CallSession is the root entity of one call. At most one session may be
// active per client at any time.
type CallSession struct {
	ID           SessionID
	ChannelID    ChannelID
	State        SessionState
	Participants map[ParticipantID]*Participant
	Local        *Participant
	Connection   *Connection
}

func NewCallSession(id SessionID, channelID ChannelID, local *Participant) *CallSession {
	return &CallSession{
		ID:           id,
		ChannelID:    channelID,
		State:        SessionActive,
		Participants: make(map[ParticipantID]*Participant),
		Local:        local,
	}
}

// Connection holds the media-plane state of a session: the negotiated
// capability profile, the two logical transports and the producer/consumer
// maps. Mutated only by the owning session's handling turn.
type Connection struct {
	State             ConnectionState
	CapabilityProfile CapabilityProfile
	Outbound          *Transport
	Inbound           *Transport
	Producers         map[string]*Producer
	Consumers         map[ConsumerID]*Consumer
}

func NewConnection(profile CapabilityProfile) *Connection {
	return &Connection{
		State:             ConnectionNew,
		CapabilityProfile: profile,
		Producers:         make(map[string]*Producer),
		Consumers:         make(map[ConsumerID]*Consumer),
	}
}

// Transport tracks the lifecycle of one logical media transport.
type Transport struct {
	ID        TransportID
	Direction TransportDirection
	State     ConnectionState
}

func (c *Connection) TransportByID(id TransportID) *Transport {
	if c.Outbound != nil && c.Outbound.ID == id {
		return c.Outbound
	}
	if c.Inbound != nil && c.Inbound.ID == id {
		return c.Inbound
	}
	return nil
}
