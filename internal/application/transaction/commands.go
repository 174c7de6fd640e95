package transaction

import (
	"context"

	"github.com/cassiomorais/checkout/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddItemRequest holds the input for adding an item to a draft transaction.
type AddItemRequest struct {
	TransactionID uuid.UUID
	ProductID     uuid.UUID
	ProductName   string
	Quantity      int
	UnitPrice     decimal.Decimal
}

// AddItemResponse holds the added item and the transaction it now belongs to.
type AddItemResponse struct {
	Transaction *transaction.Transaction
	Item        transaction.Item
}

type AddItemUseCase struct {
	m mutator
}

func NewAddItemUseCase(repo transaction.Repository, stager EventStager, txManager TransactionManager) *AddItemUseCase {
	return &AddItemUseCase{m: mutator{repo: repo, stager: stager, txManager: txManager}}
}

func (uc *AddItemUseCase) Execute(ctx context.Context, req AddItemRequest) (*AddItemResponse, error) {
	var item transaction.Item
	t, err := uc.m.apply(ctx, req.TransactionID, func(t *transaction.Transaction) error {
		var err error
		item, err = t.AddItem(req.ProductID, req.ProductName, req.Quantity, req.UnitPrice)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &AddItemResponse{Transaction: t, Item: item}, nil
}

type SubmitTransactionUseCase struct {
	m mutator
}

func NewSubmitTransactionUseCase(repo transaction.Repository, stager EventStager, txManager TransactionManager) *SubmitTransactionUseCase {
	return &SubmitTransactionUseCase{m: mutator{repo: repo, stager: stager, txManager: txManager}}
}

// Execute submits the transaction and stages TransactionSubmitted, which starts the payment.
func (uc *SubmitTransactionUseCase) Execute(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return uc.m.apply(ctx, id, func(t *transaction.Transaction) error {
		return t.Submit()
	})
}

type CancelTransactionUseCase struct {
	m mutator
}

func NewCancelTransactionUseCase(repo transaction.Repository, stager EventStager, txManager TransactionManager) *CancelTransactionUseCase {
	return &CancelTransactionUseCase{m: mutator{repo: repo, stager: stager, txManager: txManager}}
}

// Execute cancels the transaction. An in-flight payment is left as it is.
func (uc *CancelTransactionUseCase) Execute(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return uc.m.apply(ctx, id, func(t *transaction.Transaction) error {
		return t.Cancel()
	})
}

type GetTransactionUseCase struct {
	repo transaction.Repository
}

func NewGetTransactionUseCase(repo transaction.Repository) *GetTransactionUseCase {
	return &GetTransactionUseCase{repo: repo}
}

func (uc *GetTransactionUseCase) Execute(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return uc.repo.GetByID(ctx, id)
}
