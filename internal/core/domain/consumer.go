package domain

// Consumer is a locally received inbound media stream handle tied to a
// remote producer. Owner must reference a participant present in the
// roster; consumers announced for unknown participants are dropped.
type Consumer struct {
	ID         ConsumerID
	ProducerID ProducerID
	Kind       MediaKind
	Owner      ParticipantID
}
