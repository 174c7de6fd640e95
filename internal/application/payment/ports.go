package payment

import (
	"context"

	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionManager defines the interface for transaction management.
// This is an application-layer port, not a domain concern.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventStager writes raised events to the outbox of the surrounding transaction.
type EventStager interface {
	Stage(ctx context.Context, events ...event.Event) error
}

// TransactionSummary is what the payments service needs to know about a transaction
// it was not told about through an event.
type TransactionSummary struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	TotalAmount decimal.Decimal
	Status      string
}

// TransactionLookup fetches a transaction from the transactions service.
// It returns ErrTransactionNotFound when the transaction does not exist.
type TransactionLookup interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*TransactionSummary, error)
}
