package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgevents "github.com/floroz/winbid/pkg/events"
)

const outboxColumns = `id, event_type, payload, status::text, attempts, COALESCE(last_error, ''), created_at, processed_at`

// PostgresOutboxRepository stores auction and registration events next to the
// rows that produced them, and serves the relay that forwards them to RabbitMQ.
type PostgresOutboxRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresOutboxRepository(pool *pgxpool.Pool) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{pool: pool}
}

// SaveEvent writes the event in the caller's transaction so it commits with the bid or user
func (r *PostgresOutboxRepository) SaveEvent(ctx context.Context, tx pgx.Tx, event *pkgevents.OutboxEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (id, event_type, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4::outbox_status, 0, $5)`,
		event.ID, event.EventType, event.Payload, string(event.Status), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save %s event: %w", event.EventType, err)
	}
	return nil
}

// GetPendingEvents claims the oldest pending events.
// SKIP LOCKED lets the API and worker relays drain the table side by side.
func (r *PostgresOutboxRepository) GetPendingEvents(ctx context.Context, tx pgx.Tx, limit int) ([]*pkgevents.OutboxEvent, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_events
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending events: %w", err)
	}
	defer rows.Close()

	claimed := make([]*pkgevents.OutboxEvent, 0, limit)
	for rows.Next() {
		var (
			e      pkgevents.OutboxEvent
			status string
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &status, &e.Attempts, &e.LastError, &e.CreatedAt, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		e.Status = pkgevents.OutboxStatus(status)
		claimed = append(claimed, &e)
	}
	return claimed, rows.Err()
}

// MarkPublished flips a batch of claimed events in one statement
func (r *PostgresOutboxRepository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	tag, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'published', processed_at = NOW(), last_error = NULL
		WHERE id = ANY($1) AND status = 'pending'`, ids)
	if err != nil {
		return fmt.Errorf("failed to mark events published: %w", err)
	}
	if n := tag.RowsAffected(); n != int64(len(ids)) {
		return fmt.Errorf("marked %d of %d events published", n, len(ids))
	}
	return nil
}

// RecordFailure counts a failed publish and parks the event as failed once it
// reaches maxAttempts. It returns the resulting status.
func (r *PostgresOutboxRepository) RecordFailure(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, maxAttempts int) (pkgevents.OutboxStatus, error) {
	var status string
	err := tx.QueryRow(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1,
			last_error = $2,
			status = CASE WHEN attempts + 1 >= $3 THEN 'failed'::outbox_status ELSE status END,
			processed_at = CASE WHEN attempts + 1 >= $3 THEN NOW() ELSE processed_at END
		WHERE id = $1
		RETURNING status::text`, id, reason, maxAttempts).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("outbox event %s not found", id)
		}
		return "", fmt.Errorf("failed to record publish failure: %w", err)
	}
	return pkgevents.OutboxStatus(status), nil
}

// PurgePublished deletes events published before the cutoff. Failed events are
// kept for inspection.
func (r *PostgresOutboxRepository) PurgePublished(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM outbox_events WHERE status = 'published' AND processed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge published events: %w", err)
	}
	return tag.RowsAffected(), nil
}
