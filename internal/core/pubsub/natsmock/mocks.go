// Package natsmock provides testify mocks of the JetStream client interfaces.
package natsmock

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/mock"
)

// MockJetStream is a mock implementation of the JetStream interface for testing.
type MockJetStream struct {
	mock.Mock
}

func (m *MockJetStream) CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.Stream), args.Error(1)
}

func (m *MockJetStream) CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	args := m.Called(ctx, stream, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.Consumer), args.Error(1)
}

func (m *MockJetStream) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	args := m.Called(ctx, subject, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jetstream.PubAck), args.Error(1)
}

// MockStream is a mock implementation of jetstream.Stream for testing.
type MockStream struct {
	mock.Mock
	jetstream.Stream
}

func (m *MockStream) Info(ctx context.Context, opts ...jetstream.StreamInfoOpt) (*jetstream.StreamInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jetstream.StreamInfo), args.Error(1)
}

// MockConsumer is a mock implementation of jetstream.Consumer for testing.
type MockConsumer struct {
	mock.Mock
	jetstream.Consumer
	handlerCh chan jetstream.MessageHandler
}

// NewMockConsumer creates a new MockConsumer with handler channel.
func NewMockConsumer() *MockConsumer {
	return &MockConsumer{
		handlerCh: make(chan jetstream.MessageHandler, 1),
	}
}

func (m *MockConsumer) Consume(handler jetstream.MessageHandler, opts ...jetstream.PullConsumeOpt) (jetstream.ConsumeContext, error) {
	args := m.Called(handler)
	if m.handlerCh != nil {
		select {
		case m.handlerCh <- handler:
		default:
		}
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.ConsumeContext), args.Error(1)
}

func (m *MockConsumer) Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error) {
	args := m.Called(batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.MessageBatch), args.Error(1)
}

// HandlerCh returns a channel that receives the message handler when Consume is called.
func (m *MockConsumer) HandlerCh() <-chan jetstream.MessageHandler {
	return m.handlerCh
}

// MockConsumeContext is a mock implementation of jetstream.ConsumeContext for testing.
type MockConsumeContext struct {
	mock.Mock
	jetstream.ConsumeContext
	stopCh chan struct{}
}

func NewMockConsumeContext() *MockConsumeContext {
	return &MockConsumeContext{
		stopCh: make(chan struct{}),
	}
}

func (m *MockConsumeContext) Stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	m.Called()
}

// Stopped is closed once Stop has been called.
func (m *MockConsumeContext) Stopped() <-chan struct{} {
	return m.stopCh
}

// MessageBatch is a canned jetstream.MessageBatch.
type MessageBatch struct {
	ch  chan jetstream.Msg
	err error
}

// NewMessageBatch returns a closed batch delivering msgs then reporting err.
func NewMessageBatch(err error, msgs ...jetstream.Msg) *MessageBatch {
	ch := make(chan jetstream.Msg, len(msgs))
	for _, msg := range msgs {
		ch <- msg
	}
	close(ch)
	return &MessageBatch{ch: ch, err: err}
}

func (b *MessageBatch) Messages() <-chan jetstream.Msg { return b.ch }
func (b *MessageBatch) Error() error                   { return b.err }

// MockMsg is a mock implementation of jetstream.Msg for testing.
type MockMsg struct {
	mock.Mock
	jetstream.Msg
	data    []byte
	subject string
}

func NewMockMsg(subject string, data []byte) *MockMsg {
	return &MockMsg{subject: subject, data: data}
}

func (m *MockMsg) Data() []byte         { return m.data }
func (m *MockMsg) Subject() string      { return m.subject }
func (m *MockMsg) Reply() string        { return "" }
func (m *MockMsg) Headers() nats.Header { return nil }

func (m *MockMsg) Ack() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockMsg) Nak() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockMsg) NakWithDelay(d time.Duration) error {
	args := m.Called(d)
	return args.Error(0)
}

func (m *MockMsg) Term() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockMsg) TermWithReason(reason string) error {
	args := m.Called(reason)
	return args.Error(0)
}

func (m *MockMsg) InProgress() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockMsg) DoubleAck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockMsg) Metadata() (*jetstream.MsgMetadata, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jetstream.MsgMetadata), args.Error(1)
}
