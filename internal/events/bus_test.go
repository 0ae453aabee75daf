package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mkarim-dev/backend-bazar/internal/events"
)

type stubStore struct {
	lastTopic   string
	lastPayload []byte
}

func (s *stubStore) InsertDomainEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	s.lastTopic = topic
	s.lastPayload = payload
	return events.Event{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}, nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	aggregate := uuid.New()
	ctx := context.Background()
	event, err := bus.Emit(ctx, events.TopicOrderCreated, aggregate, map[string]any{"orderId": "123"})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, store.lastTopic)
	require.JSONEq(t, `{"orderId":"123"}`, string(store.lastPayload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "123", decoded["orderId"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, "  ", uuid.New(), nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, events.TopicOrderPaid, uuid.Nil, nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, events.TopicOrderPaid, uuid.New(), "not-json{")
	require.Error(t, err)
}

func TestEmitNotifierFailureKeepsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{err: errors.New("smtp down")}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	event, err := bus.Emit(context.Background(), events.TopicOrderPaid, uuid.New(), nil)
	require.Error(t, err)
	require.NotEqual(t, uuid.Nil, event.ID)
	require.JSONEq(t, `{}`, string(store.lastPayload))
}
