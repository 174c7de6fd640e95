package payment

import (
	"context"

	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/google/uuid"
)

// mutator runs a read-modify-write of one payment and stages its events in one local transaction.
type mutator struct {
	repo      payment.Repository
	stager    EventStager
	txManager TransactionManager
}

func (m mutator) apply(ctx context.Context, id uuid.UUID, fn func(p *payment.Payment) error) (*payment.Payment, error) {
	var result *payment.Payment

	err := m.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		p, err := m.repo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		if err := m.repo.Update(txCtx, p); err != nil {
			return err
		}
		result = p
		return m.stager.Stage(txCtx, p.PullEvents()...)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ConfirmPaymentUseCase completes a pending payment and stages PaymentConfirmed.
type ConfirmPaymentUseCase struct {
	m mutator
}

func NewConfirmPaymentUseCase(repo payment.Repository, stager EventStager, txManager TransactionManager) *ConfirmPaymentUseCase {
	return &ConfirmPaymentUseCase{m: mutator{repo: repo, stager: stager, txManager: txManager}}
}

func (uc *ConfirmPaymentUseCase) Execute(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return uc.m.apply(ctx, id, func(p *payment.Payment) error {
		return p.Confirm()
	})
}

// FailPaymentUseCase fails a pending payment and stages PaymentFailed.
type FailPaymentUseCase struct {
	m mutator
}

func NewFailPaymentUseCase(repo payment.Repository, stager EventStager, txManager TransactionManager) *FailPaymentUseCase {
	return &FailPaymentUseCase{m: mutator{repo: repo, stager: stager, txManager: txManager}}
}

func (uc *FailPaymentUseCase) Execute(ctx context.Context, id uuid.UUID, reason string) (*payment.Payment, error) {
	return uc.m.apply(ctx, id, func(p *payment.Payment) error {
		return p.Fail(reason)
	})
}

type GetPaymentUseCase struct {
	repo payment.Repository
}

func NewGetPaymentUseCase(repo payment.Repository) *GetPaymentUseCase {
	return &GetPaymentUseCase{repo: repo}
}

func (uc *GetPaymentUseCase) Execute(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return uc.repo.GetByID(ctx, id)
}
