package nats

import (
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eventidx/eventidx/internal/core/pubsub/natsmock"
)

func TestNatsMessage_Controls(t *testing.T) {
	raw := natsmock.NewMockMsg("s", []byte("payload"))
	raw.On("Ack").Return(nil)
	raw.On("Nak").Return(nil)
	raw.On("NakWithDelay", time.Second).Return(nil)
	raw.On("Term").Return(errors.New("term failed"))

	msg := WrapMessage(raw)
	assert.Equal(t, []byte("payload"), msg.Data())
	assert.Equal(t, "s", msg.Subject())
	assert.NoError(t, msg.Ack())
	assert.NoError(t, msg.Nak())
	assert.NoError(t, msg.NakWithDelay(time.Second))
	assert.EqualError(t, msg.Term(), "term failed")
	raw.AssertExpectations(t)
}

func TestNatsMessage_NakWithoutDelay(t *testing.T) {
	raw := natsmock.NewMockMsg("s", nil)
	raw.On("Nak").Return(nil)

	assert.NoError(t, WrapMessage(raw).NakWithDelay(0))
	raw.AssertCalled(t, "Nak")
	raw.AssertNotCalled(t, "NakWithDelay", mock.Anything)
}

func TestNatsMessage_Metadata(t *testing.T) {
	ts := time.Now()
	raw := natsmock.NewMockMsg("s", nil)
	raw.On("Metadata").Return(&jetstream.MsgMetadata{
		NumDelivered: 2,
		Timestamp:    ts,
		Stream:       "MIGRATION",
		Consumer:     "indexer",
	}, nil).Once()
	raw.On("Metadata").Return(nil, errors.New("not a jetstream message")).Once()

	md, err := WrapMessage(raw).Metadata()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), md.NumDelivered)
	assert.Equal(t, ts, md.Timestamp)
	assert.Equal(t, "MIGRATION", md.Stream)
	assert.Equal(t, "indexer", md.Consumer)

	_, err = WrapMessage(raw).Metadata()
	assert.Error(t, err)
}
