package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/eventidx/eventidx/internal/core/pubsub"
)

// jetStreamConsumer implements pubsub.Consumer using NATS JetStream.
type jetStreamConsumer struct {
	js   JetStream
	opts pubsub.ConsumerOptions
}

// NewConsumer creates a new Consumer backed by NATS JetStream.
func NewConsumer(js JetStream, opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream cannot be nil")
	}
	if opts.StreamName == "" {
		return nil, fmt.Errorf("stream name is required")
	}

	defaults := pubsub.DefaultConsumerOptions()
	if opts.Prefetch <= 0 {
		opts.Prefetch = defaults.Prefetch
	}
	if opts.AckWait <= 0 {
		opts.AckWait = defaults.AckWait
	}
	if opts.ConsumerName == "" {
		opts.ConsumerName = "consumer"
	}
	if opts.FilterSubject == "" {
		opts.FilterSubject = opts.StreamName + ".>"
	}

	return &jetStreamConsumer{js: js, opts: opts}, nil
}

// Subscribe starts consuming messages and returns a channel.
// At most Prefetch messages are outstanding (delivered but not acked) at once.
func (c *jetStreamConsumer) Subscribe(ctx context.Context) (<-chan pubsub.Message, error) {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     c.opts.StreamName,
		Subjects: []string{streamSubject(c.opts)},
		Storage:  storageType(c.opts.Storage),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.opts.StreamName, jetstream.ConsumerConfig{
		Durable:       c.opts.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.opts.AckWait,
		MaxAckPending: c.opts.Prefetch,
		FilterSubject: c.opts.FilterSubject,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	msgCh := make(chan pubsub.Message, c.opts.Prefetch)

	// mu guards closed so the handler never sends on a closed channel.
	var (
		mu     sync.RWMutex
		closed bool
	)

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		mu.RLock()
		defer mu.RUnlock()
		if closed {
			_ = msg.Nak()
			return
		}
		select {
		case msgCh <- WrapMessage(msg):
		case <-ctx.Done():
			_ = msg.Nak()
		}
	}, jetstream.PullMaxMessages(c.opts.Prefetch))
	if err != nil {
		close(msgCh)
		return nil, fmt.Errorf("failed to start consumer: %w", err)
	}

	slog.Info("Consumer subscribed",
		"stream", c.opts.StreamName,
		"consumer", c.opts.ConsumerName,
		"prefetch", c.opts.Prefetch)

	go func() {
		<-ctx.Done()
		cc.Stop()
		mu.Lock()
		closed = true
		close(msgCh)
		mu.Unlock()
		slog.Info("Consumer stopped", "stream", c.opts.StreamName, "consumer", c.opts.ConsumerName)
	}()

	return msgCh, nil
}

// streamSubject keeps consumers that filter different subjects of one
// stream from overwriting each other's stream config.
func streamSubject(opts pubsub.ConsumerOptions) string {
	if strings.HasPrefix(opts.FilterSubject, opts.StreamName+".") {
		return opts.StreamName + ".>"
	}
	return opts.FilterSubject
}

func storageType(s pubsub.StorageType) jetstream.StorageType {
	if s == pubsub.FileStorage {
		return jetstream.FileStorage
	}
	return jetstream.MemoryStorage
}
