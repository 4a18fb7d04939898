package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/hearth-checkout/internal/events"
)

const (
	insertEventSQL = `INSERT INTO outbox_events (id, event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	listUnpublishedSQL = `SELECT id::text, event_type, aggregate_id, payload, created_at
		FROM outbox_events WHERE published_at IS NULL
		ORDER BY created_at, id LIMIT $1`

	countPendingSQL = `SELECT count(*) FROM outbox_events WHERE published_at IS NULL`

	markPublishedSQL = `UPDATE outbox_events SET published_at = now()
		WHERE id = ANY($1) AND published_at IS NULL`
)

var _ events.Store = (*OutboxRepository)(nil)

// OutboxRepository implements events.Store backed by PostgreSQL.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Unpublished returns up to limit events in creation order.
func (r *OutboxRepository) Unpublished(ctx context.Context, limit int) ([]events.Event, error) {
	rows, err := r.pool.Query(ctx, listUnpublishedSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unpublished events: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (events.Event, error) {
		var ev events.Event
		err := row.Scan(&ev.ID, &ev.Type, &ev.AggregateID, &ev.Payload, &ev.CreatedAt)
		return ev, err
	})
}

// MarkPublished stamps the given events as delivered.
func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []string) error {
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("parsing event id %q: %w", id, err)
		}
		parsed = append(parsed, u)
	}

	if _, err := r.pool.Exec(ctx, markPublishedSQL, parsed); err != nil {
		return fmt.Errorf("marking %d events published: %w", len(ids), err)
	}
	return nil
}

// Pending counts events not yet delivered.
func (r *OutboxRepository) Pending(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countPendingSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pending events: %w", err)
	}
	return n, nil
}

// insertEvent records ev inside the caller's transaction.
func insertEvent(ctx context.Context, tx pgx.Tx, ev events.Event) error {
	_, err := tx.Exec(ctx, insertEventSQL, ev.ID, ev.Type, ev.AggregateID, ev.Payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording %s event for %q: %w", ev.Type, ev.AggregateID, err)
	}
	return nil
}
