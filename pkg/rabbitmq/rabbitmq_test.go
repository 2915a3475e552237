package rabbitmq

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAck) Nack(multiple, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func TestSettle_AcksHandledMessage(t *testing.T) {
	ack := &fakeAck{}
	var gotKey string
	settle(zap.NewNop(), func(routingKey string, body []byte) error {
		gotKey = routingKey
		return nil
	}, "order.paid", []byte(`{}`), 1, ack)

	assert.Equal(t, "order.paid", gotKey)
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestSettle_RequeuesOnError(t *testing.T) {
	ack := &fakeAck{}
	settle(zap.NewNop(), func(string, []byte) error {
		return errors.New("downstream unavailable")
	}, "order.created", nil, 2, ack)

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{URL: "amqp://localhost"}.withDefaults()
	assert.Equal(t, DefaultExchange, cfg.Exchange)
	assert.Equal(t, DefaultQueue, cfg.Queue)

	cfg = Config{Exchange: "x", Queue: "q"}.withDefaults()
	assert.Equal(t, "x", cfg.Exchange)
	assert.Equal(t, "q", cfg.Queue)
}
