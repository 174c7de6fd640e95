package outbox

import (
	"context"
	"time"
)

type Repository interface {
	// Insert stores entries in order and assigns their sequence numbers (typically inside a transaction)
	Insert(ctx context.Context, entries ...*Entry) error

	// FetchUndelivered returns undelivered entries ordered by sequence, locking them for the caller's transaction
	FetchUndelivered(ctx context.Context, limit int) ([]*Entry, error)

	// MarkSent stamps an entry as delivered
	MarkSent(ctx context.Context, sequence int64, sentAt time.Time) error

	// RecordFailure increments the attempt counter and keeps the entry undelivered
	RecordFailure(ctx context.Context, sequence int64, reason string) error

	// CountUndelivered returns the backlog size
	CountUndelivered(ctx context.Context) (int64, error)

	// RecentUndelivered returns the newest undelivered entries, newest first
	RecentUndelivered(ctx context.Context, limit int) ([]*Entry, error)
}
