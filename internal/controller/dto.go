package controller

import (
	"time"

	"github.com/cassiomorais/checkout/internal/application/diagnostics"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/domain/transaction"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// IDs travel as strings so malformed values surface as validation errors.
// Money is decoded into decimal.Decimal, which accepts both JSON strings and numbers.

// CreateTransactionRequest holds the input for opening a draft transaction.
type CreateTransactionRequest struct {
	CustomerID string `json:"customer_id" validate:"required,uuid"`
}

// AddItemRequest holds the input for adding an item to a draft transaction.
type AddItemRequest struct {
	ProductID   string          `json:"product_id" validate:"required,uuid"`
	ProductName string          `json:"product_name" validate:"required,max=255"`
	Quantity    int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// StartPaymentRequest holds the input for starting the payment of a submitted transaction.
type StartPaymentRequest struct {
	TransactionID string           `json:"transaction_id" validate:"required,uuid"`
	CustomerID    string           `json:"customer_id" validate:"required,uuid"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
}

// FailPaymentRequest holds the reason a payment failed.
type FailPaymentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// --- Response DTOs ---

// ItemResponse represents a transaction item in API responses.
type ItemResponse struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	LineTotal   string    `json:"line_total"`
	CreatedAt   time.Time `json:"created_at"`
}

// TransactionResponse represents a transaction in API responses. The transaction-lookup
// client of the payments service reads id, customer_id, status and total_amount.
type TransactionResponse struct {
	ID          string         `json:"id"`
	CustomerID  string         `json:"customer_id"`
	Status      string         `json:"status"`
	TotalAmount string         `json:"total_amount"`
	Items       []ItemResponse `json:"items"`
	Version     int            `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	SubmittedAt *time.Time     `json:"submitted_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transaction_id"`
	CustomerID    string     `json:"customer_id"`
	Amount        string     `json:"amount"`
	Status        string     `json:"status"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// StartPaymentResponse wraps the payment with a note when it already existed.
type StartPaymentResponse struct {
	Payment *PaymentResponse `json:"payment"`
	Message string           `json:"message,omitempty"`
}

// OutboxEntryResponse represents an undelivered outbox row.
type OutboxEntryResponse struct {
	Sequence    int64     `json:"sequence_number"`
	MessageID   string    `json:"message_id"`
	MessageType string    `json:"message_type"`
	AggregateID string    `json:"aggregate_id"`
	Destination string    `json:"destination"`
	Attempts    int       `json:"attempts"`
	LastError   *string   `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// OutboxStatsResponse is the diagnostics view of the relay backlog.
type OutboxStatsResponse struct {
	Pending int64                 `json:"pending"`
	Recent  []OutboxEntryResponse `json:"recent"`
	Hint    string                `json:"hint"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// FromItem converts a domain item to an ItemResponse.
func FromItem(i transaction.Item) ItemResponse {
	return ItemResponse{
		ID:          i.ID.String(),
		ProductID:   i.ProductID.String(),
		ProductName: i.ProductName,
		Quantity:    i.Quantity,
		UnitPrice:   i.UnitPrice.StringFixed(2),
		LineTotal:   i.LineTotal().StringFixed(2),
		CreatedAt:   i.CreatedAt,
	}
}

// FromTransaction converts a domain transaction to a TransactionResponse.
func FromTransaction(t *transaction.Transaction) *TransactionResponse {
	items := make([]ItemResponse, 0, len(t.Items))
	for _, i := range t.Items {
		items = append(items, FromItem(i))
	}
	return &TransactionResponse{
		ID:          t.ID.String(),
		CustomerID:  t.CustomerID.String(),
		Status:      string(t.Status),
		TotalAmount: t.Total().StringFixed(2),
		Items:       items,
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		SubmittedAt: t.SubmittedAt,
		CompletedAt: t.CompletedAt,
	}
}

// FromPayment converts a domain payment to a PaymentResponse.
func FromPayment(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:            p.ID.String(),
		TransactionID: p.TransactionID.String(),
		CustomerID:    p.CustomerID.String(),
		Amount:        p.Amount.StringFixed(2),
		Status:        string(p.Status),
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		CompletedAt:   p.CompletedAt,
	}
}

func fromOutboxEntry(e *outbox.Entry) OutboxEntryResponse {
	return OutboxEntryResponse{
		Sequence:    e.Sequence,
		MessageID:   e.MessageID.String(),
		MessageType: string(e.MessageType),
		AggregateID: e.AggregateID.String(),
		Destination: e.Destination,
		Attempts:    e.Attempts,
		LastError:   e.LastError,
		CreatedAt:   e.CreatedAt,
	}
}

// FromOutboxStats converts diagnostics output to an OutboxStatsResponse.
func FromOutboxStats(s *diagnostics.OutboxStats) *OutboxStatsResponse {
	recent := make([]OutboxEntryResponse, 0, len(s.Recent))
	for _, e := range s.Recent {
		recent = append(recent, fromOutboxEntry(e))
	}
	return &OutboxStatsResponse{Pending: s.Pending, Recent: recent, Hint: s.Hint}
}
