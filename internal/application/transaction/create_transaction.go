package transaction

import (
	"context"

	"github.com/cassiomorais/checkout/internal/domain/transaction"
	"github.com/google/uuid"
)

// CreateTransactionUseCase opens a draft transaction for a customer.
type CreateTransactionUseCase struct {
	repo      transaction.Repository
	stager    EventStager
	txManager TransactionManager
}

func NewCreateTransactionUseCase(repo transaction.Repository, stager EventStager, txManager TransactionManager) *CreateTransactionUseCase {
	return &CreateTransactionUseCase{repo: repo, stager: stager, txManager: txManager}
}

func (uc *CreateTransactionUseCase) Execute(ctx context.Context, customerID uuid.UUID) (*transaction.Transaction, error) {
	t, err := transaction.NewTransaction(customerID)
	if err != nil {
		return nil, err
	}

	err = uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := uc.repo.Create(txCtx, t); err != nil {
			return err
		}
		return uc.stager.Stage(txCtx, t.PullEvents()...)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
