package postgres

import (
	"context"
	"fmt"

	"github.com/cassiomorais/checkout/internal/domain/inbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InboxRepository implements inbox.Repository using PostgreSQL.
type InboxRepository struct {
	pool *pgxpool.Pool
}

func NewInboxRepository(pool *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{pool: pool}
}

func (r *InboxRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// TryInsert relies on the (consumer, message_id) primary key. A concurrent delivery of the
// same message blocks on the uncommitted row and then sees the conflict.
func (r *InboxRepository) TryInsert(ctx context.Context, entry *inbox.Entry) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO inbox_messages (consumer, message_id, message_type, received_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (consumer, message_id) DO NOTHING`,
		entry.Consumer, entry.MessageID, entry.MessageType, entry.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert inbox entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *InboxRepository) Exists(ctx context.Context, consumer string, messageID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM inbox_messages WHERE consumer = $1 AND message_id = $2)`,
		consumer, messageID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check inbox entry: %w", err)
	}
	return exists, nil
}
