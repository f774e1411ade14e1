package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/eventidx/eventidx/internal/core/pubsub"
)

type jetStreamPublisher struct {
	js     JetStream
	prefix string
	opts   []jetstream.PublishOpt
	onPub  func(subject string, err error, latency time.Duration)
}

// NewPublisher creates a JetStream publisher, first ensuring opts.StreamName
// exists when one is given.
func NewPublisher(ctx context.Context, js JetStream, opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream cannot be nil")
	}

	p := &jetStreamPublisher{js: js, prefix: opts.SubjectPrefix, onPub: opts.OnPublish}
	if opts.RetryAttempts > 0 {
		p.opts = append(p.opts, jetstream.WithRetryAttempts(opts.RetryAttempts))
	}

	if opts.StreamName != "" {
		subject := opts.StreamName + ".>"
		if opts.SubjectPrefix != "" {
			subject = opts.SubjectPrefix + ".>"
		}
		if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     opts.StreamName,
			Subjects: []string{subject},
			Storage:  storageType(opts.Storage),
		}); err != nil {
			return nil, fmt.Errorf("failed to ensure stream %s: %w", opts.StreamName, err)
		}
		p.opts = append(p.opts, jetstream.WithExpectStream(opts.StreamName))
	}
	return p, nil
}

func (p *jetStreamPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if p.prefix != "" {
		subject = p.prefix + "." + subject
	}

	start := time.Now()
	_, err := p.js.Publish(ctx, subject, data, p.opts...)
	if p.onPub != nil {
		p.onPub(subject, err, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close is a no-op; the Provider owns the connection.
func (p *jetStreamPublisher) Close() error {
	return nil
}
