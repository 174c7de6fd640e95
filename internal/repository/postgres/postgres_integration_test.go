//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/cassiomorais/checkout/internal/domain/inbox"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type databases struct {
	transactions *pgxpool.Pool
	payments     *pgxpool.Pool
}

// setupDatabases starts one PostgreSQL container holding a migrated database per service.
func setupDatabases(t *testing.T) databases {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("transactions"),
		tcpostgres.WithUsername("checkout"),
		tcpostgres.WithPassword("checkout"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	txURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	txPool, err := pgxpool.New(ctx, txURL)
	require.NoError(t, err)
	t.Cleanup(txPool.Close)

	_, err = txPool.Exec(ctx, `CREATE DATABASE payments`)
	require.NoError(t, err)
	payURL := strings.Replace(txURL, "/transactions?", "/payments?", 1)
	payPool, err := pgxpool.New(ctx, payURL)
	require.NoError(t, err)
	t.Cleanup(payPool.Close)

	require.NoError(t, MigrateUp(txURL, "transactions"))
	require.NoError(t, MigrateUp(payURL, "payments"))
	require.NoError(t, MigrateUp(payURL, "payments"), "re-running is a no-op")

	return databases{transactions: txPool, payments: payPool}
}

func newTransaction(t *testing.T) *transaction.Transaction {
	t.Helper()
	txn, err := transaction.NewTransaction(uuid.New())
	require.NoError(t, err)
	_, err = txn.AddItem(uuid.New(), "Wireless Mouse", 2, decimal.RequireFromString("15.99"))
	require.NoError(t, err)
	_, err = txn.AddItem(uuid.New(), "Keyboard", 1, decimal.RequireFromString("29.99"))
	require.NoError(t, err)
	return txn
}

func TestIntegration_Postgres(t *testing.T) {
	dbs := setupDatabases(t)
	ctx := context.Background()

	t.Run("transaction round trip with items", func(t *testing.T) {
		repo := NewTransactionRepository(dbs.transactions)
		txn := newTransaction(t)
		require.NoError(t, repo.Create(ctx, txn))

		got, err := repo.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, transaction.StatusDraft, got.Status)
		require.Len(t, got.Items, 2)
		assert.Equal(t, "Wireless Mouse", got.Items[0].ProductName)
		assert.True(t, got.Total().Equal(decimal.RequireFromString("61.97")))

		require.NoError(t, got.Submit())
		require.NoError(t, repo.Update(ctx, got))
		reloaded, err := repo.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, transaction.StatusSubmitted, reloaded.Status)
		assert.Equal(t, txn.Version+1, reloaded.Version)
	})

	t.Run("stale transaction update is rejected", func(t *testing.T) {
		repo := NewTransactionRepository(dbs.transactions)
		txn := newTransaction(t)
		require.NoError(t, repo.Create(ctx, txn))

		a, err := repo.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		b, err := repo.GetByID(ctx, txn.ID)
		require.NoError(t, err)

		require.NoError(t, a.Cancel())
		require.NoError(t, repo.Update(ctx, a))
		require.NoError(t, b.Submit())
		assert.ErrorIs(t, repo.Update(ctx, b), domainErrors.ErrOptimisticLockFailed)
	})

	t.Run("missing transaction", func(t *testing.T) {
		_, err := NewTransactionRepository(dbs.transactions).GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
	})

	t.Run("one payment per transaction", func(t *testing.T) {
		repo := NewPaymentRepository(dbs.payments)
		txManager := NewTxManager(dbs.payments)
		transactionID := uuid.New()
		first, err := payment.NewPayment(transactionID, uuid.New(), decimal.RequireFromString("61.97"))
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, first))

		second, err := payment.NewPayment(transactionID, uuid.New(), decimal.RequireFromString("61.97"))
		require.NoError(t, err)
		err = txManager.WithTransaction(ctx, func(ctx context.Context) error {
			if err := repo.Create(ctx, second); !errors.Is(err, domainErrors.ErrDuplicatePayment) {
				return err
			}
			// The transaction stays usable after the conflict.
			winner, err := repo.GetByTransactionID(ctx, transactionID)
			require.NoError(t, err)
			assert.Equal(t, first.ID, winner.ID)
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, first.Confirm())
		require.NoError(t, repo.Update(ctx, first))
		got, err := repo.GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCompleted, got.Status)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("rollback discards every write", func(t *testing.T) {
		repo := NewTransactionRepository(dbs.transactions)
		outboxRepo := NewOutboxRepository(dbs.transactions)
		txManager := NewTxManager(dbs.transactions)
		before, err := outboxRepo.CountUndelivered(ctx)
		require.NoError(t, err)

		txn := newTransaction(t)
		boom := errors.New("boom")
		err = txManager.WithTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, repo.Create(ctx, txn))
			require.NoError(t, outbox.NewStager(outboxRepo).Stage(ctx, txn.PullEvents()...))
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = repo.GetByID(ctx, txn.ID)
		assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
		after, err := outboxRepo.CountUndelivered(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("nested transaction rolls back to its savepoint", func(t *testing.T) {
		repo := NewTransactionRepository(dbs.transactions)
		txManager := NewTxManager(dbs.transactions)
		outer := newTransaction(t)
		inner := newTransaction(t)

		err := txManager.WithTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, repo.Create(ctx, outer))
			innerErr := txManager.WithTransaction(ctx, func(ctx context.Context) error {
				require.NoError(t, repo.Create(ctx, inner))
				return errors.New("inner failure")
			})
			assert.Error(t, innerErr)
			return nil
		})
		require.NoError(t, err)

		_, err = repo.GetByID(ctx, outer.ID)
		assert.NoError(t, err)
		_, err = repo.GetByID(ctx, inner.ID)
		assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
	})

	t.Run("outbox keeps order and tracks delivery", func(t *testing.T) {
		repo := NewOutboxRepository(dbs.payments)
		txManager := NewTxManager(dbs.payments)

		p, err := payment.NewPayment(uuid.New(), uuid.New(), decimal.NewFromInt(10))
		require.NoError(t, err)
		require.NoError(t, p.Confirm())
		confirmed := p.PullEvents()
		failed := event.PaymentFailed{Metadata: event.NewMetadata(), PaymentID: uuid.New(), TransactionID: uuid.New(), Amount: decimal.NewFromInt(5), Reason: "declined"}
		require.NoError(t, outbox.NewStager(repo).Stage(ctx, append(confirmed, failed)...))

		var fetched []*outbox.Entry
		err = txManager.WithTransaction(ctx, func(ctx context.Context) error {
			var err error
			fetched, err = repo.FetchUndelivered(ctx, 10)
			if err != nil {
				return err
			}
			require.Len(t, fetched, 2)
			assert.Less(t, fetched[0].Sequence, fetched[1].Sequence)
			assert.Equal(t, event.KindPaymentConfirmed, fetched[0].MessageType)
			if err := repo.MarkSent(ctx, fetched[0].Sequence, time.Now()); err != nil {
				return err
			}
			return repo.RecordFailure(ctx, fetched[1].Sequence, "broker down")
		})
		require.NoError(t, err)

		count, err := repo.CountUndelivered(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		recent, err := repo.RecentUndelivered(ctx, 5)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, failed.ID, recent[0].MessageID)
		assert.Equal(t, 1, recent[0].Attempts)
		require.NotNil(t, recent[0].LastError)
		assert.Equal(t, "broker down", *recent[0].LastError)
	})

	t.Run("locked outbox rows are skipped", func(t *testing.T) {
		repo := NewOutboxRepository(dbs.transactions)
		txManager := NewTxManager(dbs.transactions)
		txn := newTransaction(t)
		require.NoError(t, outbox.NewStager(repo).Stage(ctx, txn.PullEvents()...))

		locked := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- txManager.WithTransaction(ctx, func(ctx context.Context) error {
				if _, err := repo.FetchUndelivered(ctx, 100); err != nil {
					return err
				}
				close(locked)
				<-release
				return nil
			})
		}()
		<-locked

		err := txManager.WithTransaction(ctx, func(ctx context.Context) error {
			entries, err := repo.FetchUndelivered(ctx, 100)
			assert.Empty(t, entries)
			return err
		})
		close(release)
		require.NoError(t, err)
		require.NoError(t, <-done)
	})

	t.Run("inbox records a message once per consumer", func(t *testing.T) {
		repo := NewInboxRepository(dbs.payments)
		id := uuid.New()

		inserted, err := repo.TryInsert(ctx, inbox.NewEntry("payments", id, "transaction.submitted"))
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = repo.TryInsert(ctx, inbox.NewEntry("payments", id, "transaction.submitted"))
		require.NoError(t, err)
		assert.False(t, inserted)

		inserted, err = repo.TryInsert(ctx, inbox.NewEntry("audit", id, "transaction.submitted"))
		require.NoError(t, err)
		assert.True(t, inserted, "other consumers keep their own ledger")

		exists, err := repo.Exists(ctx, "payments", id)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("idempotency keys expire", func(t *testing.T) {
		repo := NewIdempotencyRepository(dbs.payments)
		now := time.Now()
		require.NoError(t, repo.Set(ctx, &IdempotencyEntry{Key: "live", ResponseBody: `{}`, ResponseStatus: 201, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
		require.NoError(t, repo.Set(ctx, &IdempotencyEntry{Key: "stale", ResponseBody: `{}`, ResponseStatus: 201, CreatedAt: now, ExpiresAt: now.Add(-time.Hour)}))
		for i := 0; i < 4; i++ {
			key := fmt.Sprintf("stale-%d", i)
			require.NoError(t, repo.Set(ctx, &IdempotencyEntry{Key: key, ResponseBody: `{}`, ResponseStatus: 201, CreatedAt: now, ExpiresAt: now.Add(-time.Minute)}))
		}

		err := repo.Set(ctx, &IdempotencyEntry{Key: "live", ResponseBody: `{"other":true}`, ResponseStatus: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
		assert.ErrorIs(t, err, domainErrors.ErrDuplicateIdempotencyKey)

		live, err := repo.Get(ctx, "live")
		require.NoError(t, err)
		require.NotNil(t, live)
		assert.Equal(t, 201, live.ResponseStatus)

		stale, err := repo.Get(ctx, "stale")
		require.NoError(t, err)
		assert.Nil(t, stale)

		removed, err := repo.Cleanup(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(5), removed, "cleanup loops until the expired backlog is gone")

		live, err = repo.Get(ctx, "live")
		require.NoError(t, err)
		require.NotNil(t, live)
		assert.Equal(t, `{}`, live.ResponseBody)
	})
}
