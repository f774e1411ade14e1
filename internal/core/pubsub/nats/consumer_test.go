package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eventidx/eventidx/internal/core/pubsub"
	"github.com/eventidx/eventidx/internal/core/pubsub/natsmock"
)

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(nil, pubsub.ConsumerOptions{StreamName: "S"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "jetstream cannot be nil")

	_, err = NewConsumer(new(natsmock.MockJetStream), pubsub.ConsumerOptions{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "stream name is required")
}

func TestNewConsumer_Defaults(t *testing.T) {
	c, err := NewConsumer(new(natsmock.MockJetStream), pubsub.ConsumerOptions{StreamName: "MIGRATION"})
	require.NoError(t, err)

	jc := c.(*jetStreamConsumer)
	assert.Equal(t, 100, jc.opts.Prefetch)
	assert.Equal(t, 30*time.Second, jc.opts.AckWait)
	assert.Equal(t, "consumer", jc.opts.ConsumerName)
	assert.Equal(t, "MIGRATION.>", jc.opts.FilterSubject)
}

func TestConsumer_Subscribe_StreamError(t *testing.T) {
	mockJS := new(natsmock.MockJetStream)
	mockJS.On("CreateOrUpdateStream", mock.Anything, mock.Anything).Return(nil, errors.New("stream error"))

	c, err := NewConsumer(mockJS, pubsub.ConsumerOptions{StreamName: "S"})
	require.NoError(t, err)

	_, err = c.Subscribe(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ensure stream")
}

func TestConsumer_Subscribe_ConsumerError(t *testing.T) {
	mockJS := new(natsmock.MockJetStream)
	mockJS.On("CreateOrUpdateStream", mock.Anything, mock.Anything).Return(nil, nil)
	mockJS.On("CreateOrUpdateConsumer", mock.Anything, "S", mock.Anything).Return(nil, errors.New("consumer error"))

	c, err := NewConsumer(mockJS, pubsub.ConsumerOptions{StreamName: "S"})
	require.NoError(t, err)

	_, err = c.Subscribe(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create consumer")
}

func TestConsumer_Subscribe_ConsumeError(t *testing.T) {
	mockJS := new(natsmock.MockJetStream)
	mockConsumer := natsmock.NewMockConsumer()
	mockJS.On("CreateOrUpdateStream", mock.Anything, mock.Anything).Return(nil, nil)
	mockJS.On("CreateOrUpdateConsumer", mock.Anything, "S", mock.Anything).Return(mockConsumer, nil)
	mockConsumer.On("Consume", mock.Anything).Return(nil, errors.New("consume error"))

	c, err := NewConsumer(mockJS, pubsub.ConsumerOptions{StreamName: "S"})
	require.NoError(t, err)

	_, err = c.Subscribe(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start consumer")
}

func TestConsumer_Subscribe_DeliversAndBoundsPrefetch(t *testing.T) {
	mockJS := new(natsmock.MockJetStream)
	mockConsumer := natsmock.NewMockConsumer()
	mockCC := natsmock.NewMockConsumeContext()

	mockJS.On("CreateOrUpdateStream", mock.Anything, mock.MatchedBy(func(cfg jetstream.StreamConfig) bool {
		return cfg.Name == "MIGRATION" && cfg.Subjects[0] == "migration.events.>"
	})).Return(nil, nil)
	mockJS.On("CreateOrUpdateConsumer", mock.Anything, "MIGRATION", mock.MatchedBy(func(cfg jetstream.ConsumerConfig) bool {
		return cfg.Durable == "indexer" &&
			cfg.MaxAckPending == 5 &&
			cfg.AckPolicy == jetstream.AckExplicitPolicy &&
			cfg.FilterSubject == "migration.events.>"
	})).Return(mockConsumer, nil)
	mockConsumer.On("Consume", mock.Anything).Return(mockCC, nil)
	mockCC.On("Stop").Return()

	c, err := NewConsumer(mockJS, pubsub.ConsumerOptions{
		StreamName:    "MIGRATION",
		ConsumerName:  "indexer",
		FilterSubject: "migration.events.>",
		Prefetch:      5,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := c.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, cap(msgs))

	handler := <-mockConsumer.HandlerCh()
	handler(natsmock.NewMockMsg("migration.events.a", []byte("a")))

	select {
	case msg := <-msgs:
		assert.Equal(t, "migration.events.a", msg.Subject())
		assert.Equal(t, []byte("a"), msg.Data())
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case <-mockCC.Stopped():
	case <-time.After(time.Second):
		t.Fatal("consume context not stopped")
	}
	for range msgs {
	}

	// Deliveries after shutdown are handed back to the broker.
	late := natsmock.NewMockMsg("migration.events.b", []byte("b"))
	late.On("Nak").Return(nil)
	handler(late)
	late.AssertCalled(t, "Nak")
}

func TestStreamSubject(t *testing.T) {
	assert.Equal(t, "migrated.>", streamSubject(pubsub.ConsumerOptions{StreamName: "migrated", FilterSubject: "migrated.summary"}))
	assert.Equal(t, "migrated.>", streamSubject(pubsub.ConsumerOptions{StreamName: "migrated", FilterSubject: "migrated.>"}))
	assert.Equal(t, "events.summary", streamSubject(pubsub.ConsumerOptions{StreamName: "migrated", FilterSubject: "events.summary"}))
}
