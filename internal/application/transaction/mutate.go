package transaction

import (
	"context"
	"errors"

	"github.com/cassiomorais/checkout/internal/domain/transaction"
	"github.com/google/uuid"
)

// errUnchanged lets a mutation report that there is nothing to persist.
var errUnchanged = errors.New("transaction unchanged")

// mutator runs a read-modify-write of one transaction and stages the events it raised,
// all inside one local transaction.
type mutator struct {
	repo      transaction.Repository
	stager    EventStager
	txManager TransactionManager
}

func (m mutator) apply(ctx context.Context, id uuid.UUID, fn func(t *transaction.Transaction) error) (*transaction.Transaction, error) {
	var result *transaction.Transaction

	err := m.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		t, err := m.repo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		result = t

		if err := fn(t); err != nil {
			if errors.Is(err, errUnchanged) {
				return nil
			}
			return err
		}
		if err := m.repo.Update(txCtx, t); err != nil {
			return err
		}
		return m.stager.Stage(txCtx, t.PullEvents()...)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
