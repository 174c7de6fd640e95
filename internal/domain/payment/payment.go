package payment

import (
	"strings"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/cassiomorais/checkout/internal/domain/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the payment status in the state machine
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const entityName = "payment"

// Payment is the single payment attempt for a transaction.
type Payment struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	CustomerID    uuid.UUID
	Amount        decimal.Decimal
	Status        Status
	FailureReason *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time

	events event.Buffer
}

// NewPayment creates a pending payment
func NewPayment(transactionID, customerID uuid.UUID, amount decimal.Decimal) (*Payment, error) {
	if transactionID == uuid.Nil {
		return nil, errors.NewValidationError("transaction_id", "cannot be empty")
	}
	if customerID == uuid.Nil {
		return nil, errors.NewValidationError("customer_id", "cannot be empty")
	}
	if err := money.Validate("amount", amount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Payment{
		ID:            uuid.New(),
		TransactionID: transactionID,
		CustomerID:    customerID,
		Amount:        amount,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Confirm completes a pending payment and raises PaymentConfirmed.
func (p *Payment) Confirm() error {
	if p.Status != StatusPending {
		return errors.NewStateError(entityName, string(p.Status), "Only pending payments can be confirmed")
	}

	now := time.Now().UTC()
	p.Status = StatusCompleted
	p.CompletedAt = &now
	p.UpdatedAt = now

	p.events.Raise(event.PaymentConfirmed{
		Metadata:      event.NewMetadata(),
		PaymentID:     p.ID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		ConfirmedAt:   now,
	})
	return nil
}

// Fail marks a pending payment as failed and raises PaymentFailed.
func (p *Payment) Fail(reason string) error {
	if p.Status != StatusPending {
		return errors.NewStateError(entityName, string(p.Status), "Only pending payments can be failed")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return errors.NewValidationError("reason", "Failure reason cannot be empty")
	}

	now := time.Now().UTC()
	p.Status = StatusFailed
	p.FailureReason = &reason
	p.CompletedAt = &now
	p.UpdatedAt = now

	p.events.Raise(event.PaymentFailed{
		Metadata:      event.NewMetadata(),
		PaymentID:     p.ID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		FailedAt:      now,
		Reason:        reason,
	})
	return nil
}

// IsTerminal checks if the payment is in a terminal state
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// PendingEvents returns events raised since the last drain.
func (p *Payment) PendingEvents() []event.Event {
	return p.events.Pending()
}

// PullEvents drains the pending events.
func (p *Payment) PullEvents() []event.Event {
	return p.events.PullEvents()
}
