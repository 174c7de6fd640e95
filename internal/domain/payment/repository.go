package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for payment persistence
type Repository interface {
	// Create inserts a new payment. It returns ErrDuplicatePayment when a payment for the
	// same transaction already exists; the surrounding transaction stays usable.
	Create(ctx context.Context, payment *Payment) error

	// GetByID retrieves a payment by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetByTransactionID retrieves the payment of a transaction
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*Payment, error)

	// GetForUpdate retrieves a payment and locks its row until the surrounding transaction ends
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error)

	// Update updates an existing payment
	Update(ctx context.Context, payment *Payment) error
}
