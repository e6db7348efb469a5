package ports

import (
	"context"

	"callkit/internal/core/signaling"
)

// Subscription is an explicit handle for one gateway event listener.
// Dropping the handle without calling Unsubscribe leaks the listener.
type Subscription interface {
	Unsubscribe()
}

// SignalingGateway is the session core's only channel to the media-relay
// coordinator. Implementations parse the wire format into the typed
// signaling set before publishing; malformed traffic never reaches
// subscribers.
type SignalingGateway interface {
	Send(ctx context.Context, cmd signaling.Command) error
	Subscribe(fn func(signaling.Event)) Subscription
	Close() error
}
