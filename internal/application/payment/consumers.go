package payment

import (
	"context"
	"fmt"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/cassiomorais/checkout/internal/messaging"
	"github.com/rs/zerolog"
)

// Consumer is the inbox name of the payments service.
const Consumer = "payments"

// TransactionSubmittedHandler starts the payment of every submitted transaction, trusting
// the amount carried by the event.
type TransactionSubmittedHandler struct {
	startPayment *StartPaymentUseCase
	logger       zerolog.Logger
}

func NewTransactionSubmittedHandler(startPayment *StartPaymentUseCase, logger zerolog.Logger) *TransactionSubmittedHandler {
	return &TransactionSubmittedHandler{startPayment: startPayment, logger: logger}
}

func (h *TransactionSubmittedHandler) Register(r *messaging.Registry) error {
	return r.Register(event.KindTransactionSubmitted, h.Handle)
}

func (h *TransactionSubmittedHandler) Handle(ctx context.Context, ev event.Event) error {
	e, ok := ev.(event.TransactionSubmitted)
	if !ok {
		return fmt.Errorf("%w: expected %s, got %s", domainErrors.ErrMalformedMessage, event.KindTransactionSubmitted, ev.Kind())
	}

	amount := e.TotalAmount
	resp, err := h.startPayment.Execute(ctx, StartPaymentRequest{
		TransactionID: e.TransactionID,
		CustomerID:    e.CustomerID,
		Amount:        &amount,
	})
	if err != nil {
		return err
	}

	h.logger.Info().
		Str("transaction_id", e.TransactionID.String()).
		Str("payment_id", resp.Payment.ID.String()).
		Bool("already_existed", resp.AlreadyExisted).
		Msg("Payment started for submitted transaction")
	return nil
}
