package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is one persisted domain event.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID uuid.UUID       `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Store defines the persistence operation required by the event bus.
type Store interface {
	InsertDomainEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (Event, error)
}

// Notifier reacts to emitted events (metrics, email, task enqueue).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus persists domain events and fans them out to downstream handlers.
// Notifier failures are joined into the returned error but never undo the
// persisted event.
type Bus struct {
	Store     Store
	Notifiers []Notifier
}

// Emit records the event and dispatches it to all configured notifiers.
func (b *Bus) Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if aggregateID == uuid.Nil {
		return Event{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev, err := b.Store.InsertDomainEvent(ctx, topic, aggregateID, encoded)
	if err != nil {
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return []byte("{}"), nil
		}
		data := []byte(v)
		if !json.Valid(data) {
			return nil, errors.New("payload is not valid json")
		}
		return data, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}
