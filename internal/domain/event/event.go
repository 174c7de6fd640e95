// Package event defines the closed set of integration events exchanged between the
// transactions and payments services.
package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind names an event on the wire.
type Kind string

const (
	KindItemAdded            Kind = "ItemAdded"
	KindTransactionSubmitted Kind = "TransactionSubmitted"
	KindPaymentConfirmed     Kind = "PaymentConfirmed"
	KindPaymentFailed        Kind = "PaymentFailed"
)

// Kinds returns every event kind known to this build.
func Kinds() []Kind {
	return []Kind{KindItemAdded, KindTransactionSubmitted, KindPaymentConfirmed, KindPaymentFailed}
}

// Destinations events are published to.
const (
	DestinationTransactions = "transactions.events"
	DestinationPayments     = "payments.events"
)

// Event is implemented only by the types in this package.
type Event interface {
	Meta() Metadata
	Kind() Kind
	AggregateID() uuid.UUID
	sealed()
}

// Metadata is carried by every event. ID doubles as the broker message ID.
type Metadata struct {
	ID         uuid.UUID
	OccurredAt time.Time
}

// NewMetadata stamps a fresh event ID and the current time.
func NewMetadata() Metadata {
	return Metadata{ID: uuid.New(), OccurredAt: time.Now().UTC()}
}

func (m Metadata) Meta() Metadata { return m }

type ItemAdded struct {
	Metadata
	TransactionID uuid.UUID
	ItemID        uuid.UUID
	ProductID     uuid.UUID
	ProductName   string
	Quantity      int
	UnitPrice     decimal.Decimal
}

func (ItemAdded) Kind() Kind               { return KindItemAdded }
func (e ItemAdded) AggregateID() uuid.UUID { return e.TransactionID }
func (ItemAdded) sealed()                  {}

type TransactionSubmitted struct {
	Metadata
	TransactionID uuid.UUID
	CustomerID    uuid.UUID
	TotalAmount   decimal.Decimal
}

func (TransactionSubmitted) Kind() Kind               { return KindTransactionSubmitted }
func (e TransactionSubmitted) AggregateID() uuid.UUID { return e.TransactionID }
func (TransactionSubmitted) sealed()                  {}

type PaymentConfirmed struct {
	Metadata
	PaymentID     uuid.UUID
	TransactionID uuid.UUID
	Amount        decimal.Decimal
	ConfirmedAt   time.Time
}

func (PaymentConfirmed) Kind() Kind               { return KindPaymentConfirmed }
func (e PaymentConfirmed) AggregateID() uuid.UUID { return e.PaymentID }
func (PaymentConfirmed) sealed()                  {}

type PaymentFailed struct {
	Metadata
	PaymentID     uuid.UUID
	TransactionID uuid.UUID
	Amount        decimal.Decimal
	FailedAt      time.Time
	Reason        string
}

func (PaymentFailed) Kind() Kind               { return KindPaymentFailed }
func (e PaymentFailed) AggregateID() uuid.UUID { return e.PaymentID }
func (PaymentFailed) sealed()                  {}

// Buffer accumulates events raised by an aggregate during one operation.
// The zero value is ready to use.
type Buffer struct {
	pending []Event
}

// Raise appends e to the buffer.
func (b *Buffer) Raise(e Event) {
	b.pending = append(b.pending, e)
}

// Pending returns the buffered events without draining them.
func (b *Buffer) Pending() []Event {
	out := make([]Event, len(b.pending))
	copy(out, b.pending)
	return out
}

// PullEvents drains the buffer.
func (b *Buffer) PullEvents() []Event {
	out := b.pending
	b.pending = nil
	return out
}
