package transaction

import (
	"context"

	"github.com/cassiomorais/checkout/internal/domain/event"
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
