package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo persists domain events to Postgres.
type Repo struct {
	Pool *pgxpool.Pool
}

// InsertDomainEvent appends one event to the log and returns the stored row.
func (r *Repo) InsertDomainEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (Event, error) {
	row := r.Pool.QueryRow(ctx, `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, topic, aggregate_id, payload, occurred_at`,
		topic, aggregateID.String(), payload)

	var (
		ev        Event
		id        string
		aggregate string
	)
	if err := row.Scan(&id, &ev.Topic, &aggregate, &ev.Payload, &ev.OccurredAt); err != nil {
		return Event{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Event{}, err
	}
	ev.ID = parsed
	if agg, err := uuid.Parse(aggregate); err == nil {
		ev.AggregateID = agg
	}
	return ev, nil
}
