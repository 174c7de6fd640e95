package transaction

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for transaction persistence
type Repository interface {
	// Create inserts a new transaction together with its items
	Create(ctx context.Context, t *Transaction) error

	// GetByID retrieves a transaction with its items
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// GetForUpdate retrieves a transaction and locks its row until the surrounding transaction ends
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// Update persists status changes and new items. It bumps Version and fails with
	// ErrOptimisticLockFailed when the stored version moved on.
	Update(ctx context.Context, t *Transaction) error
}
