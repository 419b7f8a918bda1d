package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-pos/internal/events"
)

// Events persists emitted domain events for audit and replay.
type Events struct {
	pool *pgxpool.Pool
}

// NewEvents constructs an Events store backed by a pgx connection pool.
func NewEvents(pool *pgxpool.Pool) *Events {
	return &Events{pool: pool}
}

// InsertEvent appends one domain event and returns it with its generated id
// and timestamp.
func (s *Events) InsertEvent(ctx context.Context, topic, aggregateID string, payload []byte) (events.Event, error) {
	if s == nil || s.pool == nil {
		return events.Event{}, ErrUnavailable
	}
	ev := events.Event{Topic: topic, AggregateID: aggregateID, Payload: payload}
	err := s.pool.QueryRow(ctx, `INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING id, occurred_at`, topic, aggregateID, payload).Scan(&ev.ID, &ev.OccurredAt)
	if err != nil {
		return events.Event{}, err
	}
	return ev, nil
}
