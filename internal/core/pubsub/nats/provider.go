package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eventidx/eventidx/internal/core/pubsub"
)

type natsConnection interface {
	Close()
}

// Seams replaced in tests.
type (
	natsConnectFunc  func(url string, opts ...nats.Option) (natsConnection, error)
	jetStreamFactory func(nc *nats.Conn) (JetStream, error)
	natsConnCaster   func(nc natsConnection) (*nats.Conn, bool)
)

var defaultNatsConnect natsConnectFunc = func(url string, opts ...nats.Option) (natsConnection, error) {
	return nats.Connect(url, opts...)
}

var defaultJetStreamFactory jetStreamFactory = NewJetStream

var defaultNatsConnCaster natsConnCaster = func(nc natsConnection) (*nats.Conn, bool) {
	natsConn, ok := nc.(*nats.Conn)
	return natsConn, ok
}

// Provider owns the NATS connection. Work queues, the migration consumers
// and the notification publisher share its JetStream context.
type Provider struct {
	url              string
	name             string
	connectTimeout   time.Duration
	nc               natsConnection
	js               JetStream
	natsConnect      natsConnectFunc
	jetStreamFactory jetStreamFactory
	natsConnCaster   natsConnCaster
}

// NewProvider creates a Provider. Call Connect before use.
func NewProvider(url, name string, connectTimeout time.Duration) *Provider {
	return &Provider{
		url:              url,
		name:             name,
		connectTimeout:   connectTimeout,
		natsConnect:      defaultNatsConnect,
		jetStreamFactory: defaultJetStreamFactory,
		natsConnCaster:   defaultNatsConnCaster,
	}
}

// Connect establishes the NATS connection and initializes JetStream.
func (p *Provider) Connect(ctx context.Context) error {
	connectFn := p.natsConnect
	if connectFn == nil {
		connectFn = defaultNatsConnect
	}

	logger := slog.Default().With("component", "nats", "url", p.url)
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", "server", nc.ConnectedUrl())
		}),
	}
	if p.name != "" {
		opts = append(opts, nats.Name(p.name))
	}
	if p.connectTimeout > 0 {
		opts = append(opts, nats.Timeout(p.connectTimeout))
	}

	nc, err := connectFn(p.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.url, err)
	}
	p.nc = nc

	caster := p.natsConnCaster
	if caster == nil {
		caster = defaultNatsConnCaster
	}

	natsConn, ok := caster(nc)
	if !ok {
		// Test connections carry no JetStream; tests set js directly.
		logger.Info("Connected to NATS without JetStream")
		return nil
	}

	jsFactory := p.jetStreamFactory
	if jsFactory == nil {
		jsFactory = defaultJetStreamFactory
	}

	js, err := jsFactory(natsConn)
	if err != nil {
		nc.Close()
		p.nc = nil
		return fmt.Errorf("failed to create JetStream: %w", err)
	}
	p.js = js

	logger.Info("Connected to NATS")
	return nil
}

// JetStream returns the connected JetStream context, or nil before Connect.
func (p *Provider) JetStream() JetStream {
	return p.js
}

// NewPublisher creates a new Publisher backed by NATS JetStream.
func (p *Provider) NewPublisher(ctx context.Context, opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if p.js == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return NewPublisher(ctx, p.js, opts)
}

// NewConsumer creates a new Consumer backed by NATS JetStream.
func (p *Provider) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	if p.js == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return NewConsumer(p.js, opts)
}

// Close closes the NATS connection.
func (p *Provider) Close() error {
	if p.nc != nil {
		slog.Info("Closing NATS connection...")
		p.nc.Close()
		p.nc = nil
		p.js = nil
	}
	return nil
}
