package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNew_NoBrokers(t *testing.T) {
	assert.Nil(t, New(nil, "payments"))
	assert.Nil(t, New([]string{"localhost:9092"}, ""))

	var bus *Bus
	assert.NoError(t, bus.Publish(context.Background(), "k", map[string]string{}))
	assert.NoError(t, bus.Close())
}

func TestNew_WithBrokers(t *testing.T) {
	bus := New([]string{"localhost:9092"}, "payments.phonepe")
	require.NotNil(t, bus)
	assert.Equal(t, "payments.phonepe", bus.Topic())

	w, ok := bus.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "payments.phonepe", w.Topic)
	assert.True(t, w.Async, "publishing must not wait on the broker")
	require.NotNil(t, w.Completion)
	w.Completion([]kafka.Message{{Key: []byte("ORD-1")}}, errors.New("broker unreachable"))
	w.Completion(nil, nil)
}

func TestBus_Publish(t *testing.T) {
	w := &fakeWriter{}
	bus := NewWithWriter(w, "payments")

	err := bus.Publish(context.Background(), "ORD-1", map[string]any{"type": "payment.initiated", "ok": true})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	assert.Equal(t, "ORD-1", string(w.msgs[0].Key))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "payment.initiated", decoded["type"])

	require.NoError(t, bus.Close())
	assert.True(t, w.closed)
}

func TestBus_PublishError(t *testing.T) {
	bus := NewWithWriter(&fakeWriter{err: errors.New("broker down")}, "payments")

	err := bus.Publish(context.Background(), "ORD-1", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	assert.Error(t, bus.Publish(context.Background(), "ORD-1", make(chan int)))
}
