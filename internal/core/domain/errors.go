package domain

import "errors"

var (
	ErrSessionActive      = errors.New("a call session is already active")
	ErrNoActiveSession    = errors.New("no active call session")
	ErrProducePending     = errors.New("a produce request is already pending on this transport")
	ErrUnknownTransport   = errors.New("transport not found")
	ErrUnknownProducer    = errors.New("producer not found")
	ErrUnknownConsumer    = errors.New("consumer not found")
	ErrUnknownParticipant = errors.New("participant not found")
	ErrNoInboundTransport = errors.New("inbound transport not established")
	ErrNoProfile          = errors.New("capability profile not negotiated")
)
