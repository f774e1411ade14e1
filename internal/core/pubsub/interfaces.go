// Package pubsub is the broker abstraction behind migrated-event intake and
// indexed-event notifications.
package pubsub

import (
	"context"
	"time"
)

// Message is one delivery. Exactly one of Ack, Nak, NakWithDelay or Term
// must be called on it.
type Message interface {
	Data() []byte
	Subject() string

	// Ack removes the message from the stream.
	Ack() error
	// Nak redelivers the message right away.
	Nak() error
	// NakWithDelay redelivers the message once delay has passed.
	NakWithDelay(delay time.Duration) error
	// Term drops the message for good.
	Term() error

	// Metadata reports how often the message has been delivered.
	Metadata() (MessageMetadata, error)
}

// MessageMetadata describes a delivery.
type MessageMetadata struct {
	// NumDelivered counts deliveries, starting at 1.
	NumDelivered uint64
	// Timestamp is when the message was stored.
	Timestamp time.Time
	Stream    string
	Consumer  string
}

// Publisher publishes messages to a stream.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// Consumer delivers messages of a durable consumer.
type Consumer interface {
	// Subscribe returns a channel of deliveries that is closed once ctx is
	// canceled. The caller settles every message it receives.
	Subscribe(ctx context.Context) (<-chan Message, error)
}
