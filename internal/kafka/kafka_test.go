package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return m.Called(ctx, msgs).Error(0)
}

func (m *MockWriter) Close() error { return nil }

func TestPublishTicketIssued(t *testing.T) {
	w := new(MockWriter)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(nil)
	p := &Producer{Writer: w, Topics: Topics{TicketIssued: "issued", DeliveryRequested: "delivery"}, logger: logger.NewNop()}

	id := uuid.New()
	require.NoError(t, p.PublishTicketIssued(context.Background(), models.TicketIssuedEvent{TicketID: id, Quantity: 2}))

	msgs := w.Calls[0].Arguments.Get(1).([]kafka.Message)
	require.Len(t, msgs, 1)
	assert.Equal(t, "issued", msgs[0].Topic)
	assert.Equal(t, id.String(), string(msgs[0].Key))

	var ev models.TicketIssuedEvent
	require.NoError(t, json.Unmarshal(msgs[0].Value, &ev))
	assert.Equal(t, 2, ev.Quantity)
}

func TestPublishWrapsError(t *testing.T) {
	w := new(MockWriter)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	p := &Producer{Writer: w, Topics: Topics{DeliveryRequested: "delivery"}, logger: logger.NewNop()}

	err := p.PublishDeliveryRequest(context.Background(), models.DeliveryRequest{TicketID: "t1"})
	assert.ErrorContains(t, err, "publish to delivery")
}

// fakeReader hands out queued messages then blocks until ctx is done.
type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumerCommitsEvenOnHandlerError(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Offset: 1}, {Offset: 2}}}
	c := NewConsumerWithReader(r, "delivery", logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var seen []int64
	err := c.Run(ctx, func(_ context.Context, m kafka.Message) error {
		seen = append(seen, m.Offset)
		if m.Offset == 1 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, seen)
	assert.Equal(t, []int64{1, 2}, r.committed)
}
