package payment

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// statusSubmitted is the transaction status a payment may start from.
const statusSubmitted = "submitted"

// StartPaymentRequest holds the input for starting the payment of a transaction.
type StartPaymentRequest struct {
	TransactionID uuid.UUID
	CustomerID    uuid.UUID
	// Amount is set when the caller is trusted (the TransactionSubmitted consumer).
	// When nil, amount and ownership are fetched from the transactions service.
	Amount *decimal.Decimal
}

// StartPaymentResponse holds the payment and whether it existed before the call.
type StartPaymentResponse struct {
	Payment        *payment.Payment
	AlreadyExisted bool
}

// StartPaymentUseCase creates the single payment of a transaction. It is idempotent per
// transaction ID: repeated and concurrent calls all return the same payment.
type StartPaymentUseCase struct {
	paymentRepo payment.Repository
	lookup      TransactionLookup
	stager      EventStager
	txManager   TransactionManager
}

func NewStartPaymentUseCase(
	paymentRepo payment.Repository,
	lookup TransactionLookup,
	stager EventStager,
	txManager TransactionManager,
) *StartPaymentUseCase {
	return &StartPaymentUseCase{
		paymentRepo: paymentRepo,
		lookup:      lookup,
		stager:      stager,
		txManager:   txManager,
	}
}

func (uc *StartPaymentUseCase) Execute(ctx context.Context, req StartPaymentRequest) (*StartPaymentResponse, error) {
	// 1. Resolve the amount, verifying ownership when the caller is not trusted.
	amount, err := uc.resolveAmount(ctx, req)
	if err != nil {
		return nil, err
	}

	// 2. Return the existing payment, if any.
	existing, err := uc.paymentRepo.GetByTransactionID(ctx, req.TransactionID)
	if err == nil {
		return &StartPaymentResponse{Payment: existing, AlreadyExisted: true}, nil
	}
	if !errors.Is(err, domainErrors.ErrPaymentNotFound) {
		return nil, err
	}

	// 3. Insert. The unique transaction_id decides concurrent races.
	p, err := payment.NewPayment(req.TransactionID, req.CustomerID, amount)
	if err != nil {
		return nil, err
	}

	err = uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := uc.paymentRepo.Create(txCtx, p); err != nil {
			return err
		}
		return uc.stager.Stage(txCtx, p.PullEvents()...)
	})
	if err == nil {
		return &StartPaymentResponse{Payment: p, AlreadyExisted: false}, nil
	}
	if !errors.Is(err, domainErrors.ErrDuplicatePayment) {
		return nil, err
	}

	// 4. Lost the race: return the winner.
	winner, err := uc.paymentRepo.GetByTransactionID(ctx, req.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("load payment after duplicate insert: %w", err)
	}
	return &StartPaymentResponse{Payment: winner, AlreadyExisted: true}, nil
}

func (uc *StartPaymentUseCase) resolveAmount(ctx context.Context, req StartPaymentRequest) (decimal.Decimal, error) {
	if req.Amount != nil {
		return *req.Amount, nil
	}

	summary, err := uc.lookup.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if summary.CustomerID != req.CustomerID {
		return decimal.Decimal{}, domainErrors.ErrOwnershipMismatch
	}
	if summary.Status != statusSubmitted {
		return decimal.Decimal{}, domainErrors.ErrTransactionNotSubmitted
	}
	return summary.TotalAmount, nil
}
