package transaction

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/cassiomorais/checkout/internal/domain/transaction"
	"github.com/cassiomorais/checkout/internal/messaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Consumer is the inbox name of the transactions service.
const Consumer = "transactions"

// PaymentOutcomeHandlers closes transactions when their payment settles.
type PaymentOutcomeHandlers struct {
	m      mutator
	logger zerolog.Logger
}

func NewPaymentOutcomeHandlers(repo transaction.Repository, stager EventStager, txManager TransactionManager, logger zerolog.Logger) *PaymentOutcomeHandlers {
	return &PaymentOutcomeHandlers{
		m:      mutator{repo: repo, stager: stager, txManager: txManager},
		logger: logger,
	}
}

// Register binds the handlers to their event kinds.
func (h *PaymentOutcomeHandlers) Register(r *messaging.Registry) error {
	if err := r.Register(event.KindPaymentConfirmed, h.HandlePaymentConfirmed); err != nil {
		return err
	}
	return r.Register(event.KindPaymentFailed, h.HandlePaymentFailed)
}

// HandlePaymentConfirmed completes the transaction. Redelivery after completion is a no-op.
func (h *PaymentOutcomeHandlers) HandlePaymentConfirmed(ctx context.Context, ev event.Event) error {
	e, ok := ev.(event.PaymentConfirmed)
	if !ok {
		return fmt.Errorf("%w: expected %s, got %s", domainErrors.ErrMalformedMessage, event.KindPaymentConfirmed, ev.Kind())
	}

	return h.settle(ctx, e.TransactionID, e.PaymentID, func(t *transaction.Transaction) error {
		if t.Status == transaction.StatusCompleted {
			return errUnchanged
		}
		return t.MarkCompleted()
	})
}

// HandlePaymentFailed cancels the transaction. Redelivery after cancellation is a no-op.
func (h *PaymentOutcomeHandlers) HandlePaymentFailed(ctx context.Context, ev event.Event) error {
	e, ok := ev.(event.PaymentFailed)
	if !ok {
		return fmt.Errorf("%w: expected %s, got %s", domainErrors.ErrMalformedMessage, event.KindPaymentFailed, ev.Kind())
	}

	return h.settle(ctx, e.TransactionID, e.PaymentID, func(t *transaction.Transaction) error {
		if t.Status == transaction.StatusCancelled {
			return errUnchanged
		}
		return t.Cancel()
	})
}

func (h *PaymentOutcomeHandlers) settle(ctx context.Context, transactionID, paymentID uuid.UUID, fn func(t *transaction.Transaction) error) error {
	_, err := h.m.apply(ctx, transactionID, fn)
	if errors.Is(err, domainErrors.ErrTransactionNotFound) {
		h.logger.Warn().
			Str("transaction_id", transactionID.String()).
			Str("payment_id", paymentID.String()).
			Msg("Payment outcome for unknown transaction, dropping")
		return nil
	}
	return err
}
