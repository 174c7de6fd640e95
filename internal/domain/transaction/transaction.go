package transaction

import (
	"strings"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/cassiomorais/checkout/internal/domain/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the transaction status in the state machine
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

const entityName = "transaction"

// Item is a line of a transaction. Items are immutable once added.
type Item struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	CreatedAt   time.Time
}

// LineTotal returns quantity × unit price.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Transaction is a customer's basket that is submitted for payment.
type Transaction struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	Status      Status
	Items       []Item
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SubmittedAt *time.Time
	CompletedAt *time.Time

	events event.Buffer
}

// NewTransaction creates a draft transaction for a customer
func NewTransaction(customerID uuid.UUID) (*Transaction, error) {
	if customerID == uuid.Nil {
		return nil, errors.NewValidationError("customer_id", "cannot be empty")
	}

	now := time.Now().UTC()
	return &Transaction{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     StatusDraft,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Total returns the sum of all line totals.
func (t *Transaction) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range t.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// AddItem appends a line to a draft transaction and raises ItemAdded.
func (t *Transaction) AddItem(productID uuid.UUID, productName string, quantity int, unitPrice decimal.Decimal) (Item, error) {
	if t.Status != StatusDraft {
		return Item{}, errors.NewStateError(entityName, string(t.Status), "Items can only be added to draft transactions")
	}
	if productID == uuid.Nil {
		return Item{}, errors.NewValidationError("product_id", "cannot be empty")
	}
	if strings.TrimSpace(productName) == "" {
		return Item{}, errors.NewValidationError("product_name", "cannot be empty")
	}
	if quantity <= 0 {
		return Item{}, errors.NewValidationError("quantity", "must be greater than 0")
	}
	if err := money.Validate("unit_price", unitPrice); err != nil {
		return Item{}, err
	}
	if t.Total().Add(unitPrice.Mul(decimal.NewFromInt(int64(quantity)))).GreaterThan(money.Max) {
		return Item{}, errors.NewValidationError("quantity", "transaction total exceeds maximum of "+money.Max.StringFixed(money.Scale))
	}

	now := time.Now().UTC()
	item := Item{
		ID:          uuid.New(),
		ProductID:   productID,
		ProductName: strings.TrimSpace(productName),
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		CreatedAt:   now,
	}
	t.Items = append(t.Items, item)
	t.UpdatedAt = now

	t.events.Raise(event.ItemAdded{
		Metadata:      event.NewMetadata(),
		TransactionID: t.ID,
		ItemID:        item.ID,
		ProductID:     item.ProductID,
		ProductName:   item.ProductName,
		Quantity:      item.Quantity,
		UnitPrice:     item.UnitPrice,
	})
	return item, nil
}

// Submit freezes the items and raises TransactionSubmitted.
func (t *Transaction) Submit() error {
	if t.Status != StatusDraft {
		return errors.NewStateError(entityName, string(t.Status), "Only draft transactions can be submitted")
	}
	if len(t.Items) == 0 {
		return errors.NewStateError(entityName, string(t.Status), "Cannot submit transaction without items")
	}
	total := t.Total()
	if !total.IsPositive() {
		return errors.NewStateError(entityName, string(t.Status), "Transaction total amount must be positive")
	}

	now := time.Now().UTC()
	t.Status = StatusSubmitted
	t.SubmittedAt = &now
	t.UpdatedAt = now

	t.events.Raise(event.TransactionSubmitted{
		Metadata:      event.NewMetadata(),
		TransactionID: t.ID,
		CustomerID:    t.CustomerID,
		TotalAmount:   total,
	})
	return nil
}

// Cancel is legal from draft or submitted. Cancellation is not propagated to payments.
func (t *Transaction) Cancel() error {
	if t.Status != StatusDraft && t.Status != StatusSubmitted {
		return errors.NewStateError(entityName, string(t.Status), "Only draft or submitted transactions can be cancelled")
	}

	t.Status = StatusCancelled
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCompleted is legal only from submitted.
func (t *Transaction) MarkCompleted() error {
	if t.Status != StatusSubmitted {
		return errors.NewStateError(entityName, string(t.Status), "Only submitted transactions can be completed")
	}

	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// IsTerminal checks if the transaction is in a terminal state
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}

// PendingEvents returns events raised since the last drain.
func (t *Transaction) PendingEvents() []event.Event {
	return t.events.Pending()
}

// PullEvents drains the pending events. The persistence layer calls it inside the
// transaction that stores the aggregate.
func (t *Transaction) PullEvents() []event.Event {
	return t.events.PullEvents()
}
