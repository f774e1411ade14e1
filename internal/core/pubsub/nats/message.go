package nats

import (
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/eventidx/eventidx/internal/core/pubsub"
)

type natsMessage struct {
	jetstream.Msg
}

// WrapMessage adapts a JetStream delivery to pubsub.Message.
func WrapMessage(msg jetstream.Msg) pubsub.Message {
	return natsMessage{Msg: msg}
}

func (m natsMessage) NakWithDelay(delay time.Duration) error {
	if delay <= 0 {
		return m.Msg.Nak()
	}
	return m.Msg.NakWithDelay(delay)
}

func (m natsMessage) Metadata() (pubsub.MessageMetadata, error) {
	md, err := m.Msg.Metadata()
	if err != nil {
		return pubsub.MessageMetadata{}, err
	}
	return pubsub.MessageMetadata{
		NumDelivered: md.NumDelivered,
		Timestamp:    md.Timestamp,
		Stream:       md.Stream,
		Consumer:     md.Consumer,
	}, nil
}
