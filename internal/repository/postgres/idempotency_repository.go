package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyEntry is the stored response of a command sent with an Idempotency-Key.
// Key is already scoped to the method and path by the caller.
type IdempotencyEntry struct {
	Key            string
	ResponseBody   string
	ResponseStatus int
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// IdempotencyRepository keeps replayable command responses in the service's own database.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

func (r *IdempotencyRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Get returns nil, nil when the key is unknown or has expired.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*IdempotencyEntry, error) {
	var e IdempotencyEntry
	err := r.db(ctx).QueryRow(ctx,
		`SELECT key, response_body, response_status, created_at, expires_at
		 FROM idempotency_keys WHERE key = $1 AND expires_at > NOW()`, key,
	).Scan(&e.Key, &e.ResponseBody, &e.ResponseStatus, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key %q: %w", key, err)
	}
	return &e, nil
}

// Set stores the first response for a key. A concurrent request that stored the same key
// first wins and Set reports ErrDuplicateIdempotencyKey.
func (r *IdempotencyRepository) Set(ctx context.Context, entry *IdempotencyEntry) error {
	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO idempotency_keys (key, response_body, response_status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO NOTHING`,
		entry.Key, entry.ResponseBody, entry.ResponseStatus, entry.CreatedAt, entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("set idempotency key %q: %w", entry.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set idempotency key %q: %w", entry.Key, domainErrors.ErrDuplicateIdempotencyKey)
	}
	return nil
}

// Cleanup deletes expired keys in batches of batchSize until none are left, so a large
// backlog never holds one long-running delete. Rows locked by another worker are skipped.
func (r *IdempotencyRepository) Cleanup(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var total int64
	for {
		tag, err := r.db(ctx).Exec(ctx,
			`DELETE FROM idempotency_keys WHERE key IN (
			     SELECT key FROM idempotency_keys
			     WHERE expires_at < NOW()
			     LIMIT $1
			     FOR UPDATE SKIP LOCKED
			 )`, batchSize)
		if err != nil {
			return total, fmt.Errorf("cleanup idempotency keys: %w", err)
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < int64(batchSize) {
			return total, nil
		}
	}
}
