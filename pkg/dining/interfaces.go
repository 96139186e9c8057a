package dining

import "context"

// DeliveryFunc receives the raw wire payload of an envelope from a transport.
type DeliveryFunc func(ctx context.Context, payload []byte)

// Transport is the push/pub-sub service the satellites talk through.
// Delivery is at-least-once with no ordering guarantee.
type Transport interface {
	// Subscribe starts delivering envelopes published to channel. Subscribing
	// again to the same channel replaces the previous delivery target.
	Subscribe(ctx context.Context, channel Channel, deliver DeliveryFunc) error

	// Unsubscribe stops delivery for channel. Unknown channels are a no-op.
	Unsubscribe(ctx context.Context, channel Channel) error

	// Publish sends payload to every subscriber of channel. Fire-and-forget:
	// a nil error only means the transport accepted the message.
	Publish(ctx context.Context, channel Channel, payload []byte) error
}

// ObjectStore fetches objects by type name and id.
type ObjectStore interface {
	// Fetch decodes the object into dest. A missing object yields an error
	// wrapping ErrNotFound.
	Fetch(ctx context.Context, kind ObjectKind, id string, dest any) error
}

// ObjectRepository is an ObjectStore that can also persist objects. Senders
// must Save before they notify, since receivers fetch by id.
type ObjectRepository interface {
	ObjectStore
	Save(ctx context.Context, kind ObjectKind, id string, obj any) error
}
