package event

import (
	"encoding/json"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Envelope is the public wire schema shared by both services.
type Envelope struct {
	MessageID   uuid.UUID       `json:"message_id"`
	Type        Kind            `json:"type"`
	OccurredAt  time.Time       `json:"occurred_at"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
}

type itemAddedPayload struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	ItemID        uuid.UUID       `json:"item_id"`
	ProductID     uuid.UUID       `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

type transactionSubmittedPayload struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

type paymentConfirmedPayload struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	ConfirmedAt   time.Time       `json:"confirmed_at"`
}

type paymentFailedPayload struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	FailedAt      time.Time       `json:"failed_at"`
	Reason        string          `json:"reason"`
}

// Destination returns the topic an event kind is published to.
func Destination(k Kind) (string, error) {
	switch k {
	case KindItemAdded, KindTransactionSubmitted:
		return DestinationTransactions, nil
	case KindPaymentConfirmed, KindPaymentFailed:
		return DestinationPayments, nil
	default:
		return "", fmt.Errorf("%w: %q", domainErrors.ErrUnknownEventKind, k)
	}
}

// Encode translates a domain event into its wire envelope.
func Encode(e Event) (Envelope, error) {
	var payload any
	switch ev := e.(type) {
	case ItemAdded:
		payload = itemAddedPayload{
			TransactionID: ev.TransactionID,
			ItemID:        ev.ItemID,
			ProductID:     ev.ProductID,
			ProductName:   ev.ProductName,
			Quantity:      ev.Quantity,
			UnitPrice:     ev.UnitPrice,
		}
	case TransactionSubmitted:
		payload = transactionSubmittedPayload{
			TransactionID: ev.TransactionID,
			CustomerID:    ev.CustomerID,
			TotalAmount:   ev.TotalAmount,
		}
	case PaymentConfirmed:
		payload = paymentConfirmedPayload{
			PaymentID:     ev.PaymentID,
			TransactionID: ev.TransactionID,
			Amount:        ev.Amount,
			ConfirmedAt:   ev.ConfirmedAt,
		}
	case PaymentFailed:
		payload = paymentFailedPayload{
			PaymentID:     ev.PaymentID,
			TransactionID: ev.TransactionID,
			Amount:        ev.Amount,
			FailedAt:      ev.FailedAt,
			Reason:        ev.Reason,
		}
	default:
		return Envelope{}, fmt.Errorf("%w: %T", domainErrors.ErrUnknownEventKind, e)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", e.Kind(), err)
	}

	meta := e.Meta()
	return Envelope{
		MessageID:   meta.ID,
		Type:        e.Kind(),
		OccurredAt:  meta.OccurredAt,
		AggregateID: e.AggregateID(),
		Payload:     raw,
	}, nil
}

// Decode translates a wire envelope back into a domain event.
func Decode(env Envelope) (Event, error) {
	meta := Metadata{ID: env.MessageID, OccurredAt: env.OccurredAt}

	switch env.Type {
	case KindItemAdded:
		var p itemAddedPayload
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return ItemAdded{
			Metadata:      meta,
			TransactionID: p.TransactionID,
			ItemID:        p.ItemID,
			ProductID:     p.ProductID,
			ProductName:   p.ProductName,
			Quantity:      p.Quantity,
			UnitPrice:     p.UnitPrice,
		}, nil
	case KindTransactionSubmitted:
		var p transactionSubmittedPayload
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return TransactionSubmitted{
			Metadata:      meta,
			TransactionID: p.TransactionID,
			CustomerID:    p.CustomerID,
			TotalAmount:   p.TotalAmount,
		}, nil
	case KindPaymentConfirmed:
		var p paymentConfirmedPayload
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return PaymentConfirmed{
			Metadata:      meta,
			PaymentID:     p.PaymentID,
			TransactionID: p.TransactionID,
			Amount:        p.Amount,
			ConfirmedAt:   p.ConfirmedAt,
		}, nil
	case KindPaymentFailed:
		var p paymentFailedPayload
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		return PaymentFailed{
			Metadata:      meta,
			PaymentID:     p.PaymentID,
			TransactionID: p.TransactionID,
			Amount:        p.Amount,
			FailedAt:      p.FailedAt,
			Reason:        p.Reason,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domainErrors.ErrUnknownEventKind, env.Type)
	}
}

// Marshal encodes e and serializes the envelope.
func Marshal(e Event) ([]byte, error) {
	env, err := Encode(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// ParseEnvelope deserializes an envelope without decoding its payload.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domainErrors.ErrMalformedMessage, err)
	}
	if env.MessageID == uuid.Nil {
		return Envelope{}, fmt.Errorf("%w: missing message_id", domainErrors.ErrMalformedMessage)
	}
	return env, nil
}

func unmarshalPayload(env Envelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", domainErrors.ErrMalformedMessage, env.Type, err)
	}
	return nil
}
