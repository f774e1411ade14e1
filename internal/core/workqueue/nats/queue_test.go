package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eventidx/eventidx/internal/core/pubsub/natsmock"
	"github.com/eventidx/eventidx/internal/core/workqueue"
	"github.com/eventidx/eventidx/pkg/model"
)

type fixture struct {
	js       *natsmock.MockJetStream
	stream   *natsmock.MockStream
	consumer *natsmock.MockConsumer
	queue    *Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		js:       new(natsmock.MockJetStream),
		stream:   new(natsmock.MockStream),
		consumer: natsmock.NewMockConsumer(),
	}
	f.js.On("CreateOrUpdateStream", mock.Anything, mock.MatchedBy(func(cfg jetstream.StreamConfig) bool {
		return cfg.Name == "event_summary_index_queue" &&
			cfg.Retention == jetstream.WorkQueuePolicy &&
			cfg.Subjects[0] == "workqueue.event_summary_index_queue"
	})).Return(f.stream, nil)
	f.js.On("CreateOrUpdateConsumer", mock.Anything, "event_summary_index_queue", mock.MatchedBy(func(cfg jetstream.ConsumerConfig) bool {
		return cfg.Durable == "event_summary_index_queue" &&
			cfg.AckPolicy == jetstream.AckExplicitPolicy &&
			cfg.AckWait == time.Minute
	})).Return(f.consumer, nil)

	q, err := New(context.Background(), f.js, Config{Name: "event_summary_index_queue", AckWait: time.Minute}, nil)
	require.NoError(t, err)
	f.queue = q
	return f
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), nil, Config{Name: "q"}, nil)
	assert.ErrorContains(t, err, "jetstream cannot be nil")

	_, err = New(context.Background(), new(natsmock.MockJetStream), Config{}, nil)
	assert.ErrorContains(t, err, "queue name is required")

	js := new(natsmock.MockJetStream)
	js.On("CreateOrUpdateStream", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
	_, err = New(context.Background(), js, Config{Name: "q"}, nil)
	assert.ErrorContains(t, err, "failed to ensure stream q")
}

func TestQueue_Enqueue(t *testing.T) {
	f := newFixture(t)
	f.js.On("Publish", mock.Anything, "workqueue.event_summary_index_queue", []byte(`{"uuid":"a","ts":7}`)).
		Return(&jetstream.PubAck{}, nil).Once()

	require.NoError(t, f.queue.Enqueue(context.Background(), []workqueue.Task{workqueue.NewTask("a", 7)}))
	f.js.AssertExpectations(t)
}

func TestQueue_EnqueueUnavailable(t *testing.T) {
	f := newFixture(t)
	f.js.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil, nats.ErrNoResponders)

	err := f.queue.Enqueue(context.Background(), []workqueue.Task{workqueue.NewTask("a", 7)})
	assert.ErrorIs(t, err, workqueue.ErrUnavailable)
}

func TestQueue_PollDecodesAndTermsGarbage(t *testing.T) {
	f := newFixture(t)
	good := natsmock.NewMockMsg("workqueue.event_summary_index_queue", []byte(`{"uuid":"a","ts":7}`))
	bad := natsmock.NewMockMsg("workqueue.event_summary_index_queue", []byte(`not json`))
	bad.On("Term").Return(nil)
	f.consumer.On("Fetch", 10).Return(natsmock.NewMessageBatch(nil, good, bad), nil)

	got, err := f.queue.Poll(context.Background(), 10, 250*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].UUID)
	assert.Equal(t, int64(7), got[0].Timestamp)
	assert.Same(t, good, got[0].Handle())
	bad.AssertCalled(t, "Term")
}

func TestQueue_PollTimeoutIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.consumer.On("Fetch", 10).Return(natsmock.NewMessageBatch(nats.ErrTimeout), nil)

	got, err := f.queue.Poll(context.Background(), 10, 250*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueue_PollErrors(t *testing.T) {
	f := newFixture(t)
	f.consumer.On("Fetch", 10).Return(nil, nats.ErrConnectionClosed).Once()
	_, err := f.queue.Poll(context.Background(), 10, time.Millisecond)
	assert.ErrorIs(t, err, workqueue.ErrUnavailable)

	f.consumer.On("Fetch", 10).Return(natsmock.NewMessageBatch(nats.ErrConnectionClosed), nil).Once()
	_, err = f.queue.Poll(context.Background(), 10, time.Millisecond)
	assert.ErrorIs(t, err, workqueue.ErrUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.queue.Poll(ctx, 10, time.Millisecond)
	assert.ErrorIs(t, err, model.ErrCanceled)
}

func TestQueue_AcknowledgeIgnoresAlreadyAcked(t *testing.T) {
	f := newFixture(t)
	first := natsmock.NewMockMsg("s", nil)
	first.On("DoubleAck", mock.Anything).Return(nil)
	second := natsmock.NewMockMsg("s", nil)
	second.On("DoubleAck", mock.Anything).Return(jetstream.ErrMsgAlreadyAckd)

	tasks := []workqueue.Task{
		workqueue.NewTask("a", 1).WithHandle(first),
		workqueue.NewTask("b", 2).WithHandle(second),
		workqueue.NewTask("unclaimed", 3),
	}
	require.NoError(t, f.queue.Acknowledge(context.Background(), tasks))
	first.AssertExpectations(t)
	second.AssertExpectations(t)

	failing := natsmock.NewMockMsg("s", nil)
	failing.On("DoubleAck", mock.Anything).Return(nats.ErrTimeout)
	err := f.queue.Acknowledge(context.Background(), []workqueue.Task{workqueue.NewTask("c", 4).WithHandle(failing)})
	assert.ErrorIs(t, err, workqueue.ErrUnavailable)
}

func TestQueue_Release(t *testing.T) {
	f := newFixture(t)
	msg := natsmock.NewMockMsg("s", nil)
	msg.On("Nak").Return(nil)

	require.NoError(t, f.queue.Release(context.Background(), []workqueue.Task{workqueue.NewTask("a", 1).WithHandle(msg)}))
	msg.AssertCalled(t, "Nak")
}

func TestQueue_Size(t *testing.T) {
	f := newFixture(t)
	f.stream.On("Info", mock.Anything).Return(&jetstream.StreamInfo{State: jetstream.StreamState{Msgs: 42}}, nil).Once()
	f.stream.On("Info", mock.Anything).Return(nil, nats.ErrConnectionClosed).Once()

	size, err := f.queue.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), size)

	_, err = f.queue.Size(context.Background())
	assert.ErrorIs(t, err, workqueue.ErrUnavailable)
}
