package eventbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessEventBus_Publish(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(nil)
	consumer := &recordingConsumer{eventTypes: []string{"ledger.credits.granted"}}
	bus.RegisterConsumer(consumer)

	event := newEvent("ledger.credits.granted")
	event.Payload = json.RawMessage(`{"problem_credits":5}`)
	envelope, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "ledger.credits.granted", envelope))

	require.Equal(t, 1, consumer.count())
	got := consumer.events[0]
	assert.Equal(t, event.EventID, got.EventID)

	var body struct {
		ProblemCredits int `json:"problem_credits"`
	}
	require.NoError(t, got.Decode(&body))
	assert.Equal(t, 5, body.ProblemCredits)
}

func TestInProcessEventBus_FillsRoutingKey(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(nil)
	consumer := &recordingConsumer{eventTypes: []string{"ledger.payment.applied"}}
	bus.RegisterConsumer(consumer)

	require.NoError(t, bus.Publish(context.Background(), "ledger.payment.applied", []byte(`{"payload":{}}`)))

	require.Equal(t, 1, consumer.count())
	assert.Equal(t, "ledger.payment.applied", consumer.events[0].RoutingKey)
}

func TestInProcessEventBus_ConsumerErrorIsReturned(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(nil)
	bus.RegisterConsumer(&recordingConsumer{eventTypes: []string{"x.y"}, err: errors.New("down")})

	envelope, err := json.Marshal(newEvent("x.y"))
	require.NoError(t, err)

	assert.Error(t, bus.Publish(context.Background(), "x.y", envelope))
}

func TestInProcessEventBus_DropsMalformedEnvelope(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(nil)
	consumer := &recordingConsumer{eventTypes: []string{"x.y"}}
	bus.RegisterConsumer(consumer)

	assert.NoError(t, bus.Publish(context.Background(), "x.y", []byte("not json")))
	assert.Equal(t, 0, consumer.count())
	assert.NoError(t, bus.Close())
}

func TestConsumerFunc(t *testing.T) {
	called := false
	fn := eventbus.ConsumerFunc{
		Types: []string{"a.b"},
		Handler: func(context.Context, *eventbus.ConsumedEvent) error {
			called = true
			return nil
		},
	}

	assert.Equal(t, []string{"a.b"}, fn.EventTypes())
	require.NoError(t, fn.Handle(context.Background(), newEvent("a.b")))
	assert.True(t, called)
}
