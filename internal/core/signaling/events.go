// Package signaling defines the closed, typed message set exchanged with
// the media-relay coordinator. Wire payloads are validated and parsed into
// these variants at the gateway boundary; nothing untyped enters the core.
package signaling

import (
	"encoding/json"

	"callkit/internal/core/domain"
)

type EventType string

const (
	EventCapabilityDescription EventType = "capability-description"
	EventTransportCreated      EventType = "transport-created"
	EventTransportConnected    EventType = "transport-connected"
	EventProducerCreated       EventType = "producer-created"
	EventNewRemoteProducer     EventType = "new-remote-producer"
	EventConsumerCreated       EventType = "consumer-created"
	EventConsumerResumed       EventType = "consumer-resumed"
	EventPeerJoined            EventType = "peer-joined"
	EventPeerLeft              EventType = "peer-left"
	EventMediaStateChanged     EventType = "media-state-changed"
	EventScreenShareChanged    EventType = "screen-share-changed"
	EventSpeakingChanged       EventType = "speaking-changed"
)

// Event is one inbound coordinator notification.
type Event interface {
	EventType() EventType
}

type CapabilityDescription struct {
	RoomID       domain.ChannelID `json:"room_id"`
	Capabilities json.RawMessage  `json:"capabilities"`
}

type TransportCreated struct {
	RoomID        domain.ChannelID          `json:"room_id"`
	Direction     domain.TransportDirection `json:"direction"`
	TransportID   domain.TransportID        `json:"transport_id"`
	ICEParams     json.RawMessage           `json:"ice_params"`
	ICECandidates json.RawMessage           `json:"ice_candidates"`
	DTLSParams    json.RawMessage           `json:"dtls_params"`
}

type TransportConnected struct {
	TransportID domain.TransportID `json:"transport_id"`
}

type ProducerCreated struct {
	TransportID domain.TransportID `json:"transport_id"`
	ProducerID  domain.ProducerID  `json:"producer_id"`
}

type NewRemoteProducer struct {
	RoomID     domain.ChannelID     `json:"room_id"`
	ProducerID domain.ProducerID    `json:"producer_id"`
	OwnerID    domain.ParticipantID `json:"producer_user_id"`
	Kind       domain.MediaKind     `json:"kind"`
}

type ConsumerCreated struct {
	RoomID      domain.ChannelID     `json:"room_id"`
	TransportID domain.TransportID   `json:"transport_id"`
	ProducerID  domain.ProducerID    `json:"producer_id"`
	ConsumerID  domain.ConsumerID    `json:"consumer_id"`
	Kind        domain.MediaKind     `json:"kind"`
	RTPParams   json.RawMessage      `json:"rtp_params"`
	OwnerID     domain.ParticipantID `json:"producer_user_id"`
}

type ConsumerResumed struct {
	ConsumerID domain.ConsumerID `json:"consumer_id"`
}

type PeerJoined struct {
	RoomID      domain.ChannelID     `json:"room_id"`
	UserID      domain.ParticipantID `json:"user_id"`
	DisplayName string               `json:"display_name"`
}

type PeerLeft struct {
	RoomID domain.ChannelID     `json:"room_id"`
	UserID domain.ParticipantID `json:"user_id"`
}

type MediaStateChanged struct {
	UserID domain.ParticipantID `json:"user_id"`
	Audio  bool                 `json:"audio"`
	Video  bool                 `json:"video"`
}

type ScreenShareChanged struct {
	UserID domain.ParticipantID `json:"user_id"`
	Active bool                 `json:"active"`
}

type SpeakingChanged struct {
	UserID   domain.ParticipantID `json:"user_id"`
	Speaking bool                 `json:"speaking"`
}

func (CapabilityDescription) EventType() EventType { return EventCapabilityDescription }
func (TransportCreated) EventType() EventType      { return EventTransportCreated }
func (TransportConnected) EventType() EventType    { return EventTransportConnected }
func (ProducerCreated) EventType() EventType       { return EventProducerCreated }
func (NewRemoteProducer) EventType() EventType     { return EventNewRemoteProducer }
func (ConsumerCreated) EventType() EventType       { return EventConsumerCreated }
func (ConsumerResumed) EventType() EventType       { return EventConsumerResumed }
func (PeerJoined) EventType() EventType            { return EventPeerJoined }
func (PeerLeft) EventType() EventType              { return EventPeerLeft }
func (MediaStateChanged) EventType() EventType     { return EventMediaStateChanged }
func (ScreenShareChanged) EventType() EventType    { return EventScreenShareChanged }
func (SpeakingChanged) EventType() EventType       { return EventSpeakingChanged }
