package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxColumns = `sequence_number, message_id, message_type, aggregate_id, destination, payload, attempts, last_error, created_at, sent_at`

// OutboxRepository implements outbox.Repository using PostgreSQL.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Insert stages entries in order. Sequence numbers come from the BIGSERIAL column, so
// entries inserted by one statement sequence keep their relative order.
func (r *OutboxRepository) Insert(ctx context.Context, entries ...*outbox.Entry) error {
	for _, entry := range entries {
		err := r.db(ctx).QueryRow(ctx,
			`INSERT INTO outbox_messages (message_id, message_type, aggregate_id, destination, payload, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING sequence_number`,
			entry.MessageID, string(entry.MessageType), entry.AggregateID, entry.Destination, entry.Payload, entry.CreatedAt,
		).Scan(&entry.Sequence)
		if err != nil {
			return fmt.Errorf("insert outbox entry %s: %w", entry.MessageID, err)
		}
	}
	return nil
}

// FetchUndelivered must run inside a transaction for the row locks to mean anything.
func (r *OutboxRepository) FetchUndelivered(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox_messages WHERE sent_at IS NULL
		 ORDER BY sequence_number ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get undelivered outbox entries: %w", err)
	}
	return scanOutboxEntries(rows)
}

func (r *OutboxRepository) MarkSent(ctx context.Context, sequence int64, sentAt time.Time) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox_messages SET sent_at = $1 WHERE sequence_number = $2`, sentAt, sequence,
	)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

func (r *OutboxRepository) RecordFailure(ctx context.Context, sequence int64, reason string) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox_messages SET attempts = attempts + 1, last_error = $1 WHERE sequence_number = $2`,
		reason, sequence,
	)
	if err != nil {
		return fmt.Errorf("record outbox failure: %w", err)
	}
	return nil
}

func (r *OutboxRepository) CountUndelivered(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM outbox_messages WHERE sent_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count undelivered outbox entries: %w", err)
	}
	return n, nil
}

func (r *OutboxRepository) RecentUndelivered(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox_messages WHERE sent_at IS NULL
		 ORDER BY sequence_number DESC
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent undelivered outbox entries: %w", err)
	}
	return scanOutboxEntries(rows)
}

func scanOutboxEntries(rows pgx.Rows) ([]*outbox.Entry, error) {
	defer rows.Close()

	var entries []*outbox.Entry
	for rows.Next() {
		e := &outbox.Entry{}
		var messageType string
		if err := rows.Scan(&e.Sequence, &e.MessageID, &messageType, &e.AggregateID, &e.Destination,
			&e.Payload, &e.Attempts, &e.LastError, &e.CreatedAt, &e.SentAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.MessageType = event.Kind(messageType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
