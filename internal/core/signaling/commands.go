package signaling

import (
	"encoding/json"

	"callkit/internal/core/domain"
)

type CommandType string

const (
	CommandRequestCapabilities CommandType = "request-capabilities"
	CommandCreateTransport     CommandType = "create-transport"
	CommandConnectTransport    CommandType = "connect-transport"
	CommandProduce             CommandType = "produce"
	CommandPauseProducer       CommandType = "pause-producer"
	CommandResumeProducer      CommandType = "resume-producer"
	CommandCloseProducer       CommandType = "close-producer"
	CommandConsume             CommandType = "consume"
	CommandResumeConsumer      CommandType = "resume-consumer"
	CommandMediaStateUpdate    CommandType = "media-state-changed"
	CommandScreenShareUpdate   CommandType = "screen-share-changed"
	CommandSpeakingUpdate      CommandType = "speaking-changed"
	CommandJoin                CommandType = "join"
	CommandEnd                 CommandType = "end"
)

// Command is one outbound request or notification to the coordinator.
type Command interface {
	CommandType() CommandType
}

type RequestCapabilities struct {
	RoomID domain.ChannelID `json:"room_id"`
}

type CreateTransport struct {
	RoomID    domain.ChannelID          `json:"room_id"`
	Direction domain.TransportDirection `json:"direction"`
}

type ConnectTransport struct {
	TransportID domain.TransportID `json:"transport_id"`
	DTLSParams  json.RawMessage    `json:"dtls_params"`
}

type Produce struct {
	TransportID domain.TransportID     `json:"transport_id"`
	Kind        domain.MediaKind       `json:"kind"`
	RTPParams   json.RawMessage        `json:"rtp_params"`
	Encodings   []domain.EncodingLayer `json:"encodings,omitempty"`
}

type PauseProducer struct {
	ProducerID domain.ProducerID `json:"producer_id"`
}

type ResumeProducer struct {
	ProducerID domain.ProducerID `json:"producer_id"`
}

type CloseProducer struct {
	ProducerID domain.ProducerID `json:"producer_id"`
}

type Consume struct {
	RoomID       domain.ChannelID   `json:"room_id"`
	TransportID  domain.TransportID `json:"transport_id"`
	ProducerID   domain.ProducerID  `json:"producer_id"`
	Capabilities json.RawMessage    `json:"capabilities"`
}

type ResumeConsumer struct {
	ConsumerID domain.ConsumerID `json:"consumer_id"`
}

type MediaStateUpdate struct {
	CallID domain.SessionID `json:"call_id"`
	Audio  bool             `json:"audio"`
	Video  bool             `json:"video"`
}

type ScreenShareUpdate struct {
	CallID domain.SessionID `json:"call_id"`
	Active bool             `json:"active"`
}

type SpeakingUpdate struct {
	CallID   domain.SessionID `json:"call_id"`
	Speaking bool             `json:"speaking"`
}

type Join struct {
	CallID    domain.SessionID `json:"call_id"`
	ChannelID domain.ChannelID `json:"channel_id"`
}

type End struct {
	CallID domain.SessionID `json:"call_id"`
}

func (RequestCapabilities) CommandType() CommandType { return CommandRequestCapabilities }
func (CreateTransport) CommandType() CommandType     { return CommandCreateTransport }
func (ConnectTransport) CommandType() CommandType    { return CommandConnectTransport }
func (Produce) CommandType() CommandType             { return CommandProduce }
func (PauseProducer) CommandType() CommandType       { return CommandPauseProducer }
func (ResumeProducer) CommandType() CommandType      { return CommandResumeProducer }
func (CloseProducer) CommandType() CommandType       { return CommandCloseProducer }
func (Consume) CommandType() CommandType             { return CommandConsume }
func (ResumeConsumer) CommandType() CommandType      { return CommandResumeConsumer }
func (MediaStateUpdate) CommandType() CommandType    { return CommandMediaStateUpdate }
func (ScreenShareUpdate) CommandType() CommandType   { return CommandScreenShareUpdate }
func (SpeakingUpdate) CommandType() CommandType      { return CommandSpeakingUpdate }
func (Join) CommandType() CommandType                { return CommandJoin }
func (End) CommandType() CommandType                 { return CommandEnd }
