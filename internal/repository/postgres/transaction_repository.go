package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `id, customer_id, status, version, created_at, updated_at, submitted_at, completed_at`

// TransactionRepository implements transaction.Repository using PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *TransactionRepository) scanTransaction(s scanner) (*transaction.Transaction, error) {
	t := &transaction.Transaction{}
	var status string
	err := s.Scan(&t.ID, &t.CustomerID, &status, &t.Version, &t.CreatedAt, &t.UpdatedAt, &t.SubmittedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	t.Status = transaction.Status(status)
	return t, nil
}

// Create inserts a transaction row and its items.
func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.CustomerID, string(t.Status), t.Version, t.CreatedAt, t.UpdatedAt, t.SubmittedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return r.insertItems(ctx, t)
}

// GetByID retrieves a transaction with its items.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	t, err := r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetForUpdate retrieves a transaction with a row lock held until the surrounding transaction ends.
func (r *TransactionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	t, err := r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Update persists the state and appends items that are not stored yet.
func (r *TransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE transactions
		 SET status = $1, version = version + 1, updated_at = $2, submitted_at = $3, completed_at = $4
		 WHERE id = $5 AND version = $6`,
		string(t.Status), t.UpdatedAt, t.SubmittedAt, t.CompletedAt, t.ID, t.Version,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOptimisticLockFailed
	}
	t.Version++

	return r.insertItems(ctx, t)
}

// insertItems writes every item in one batch. Items already stored are skipped.
func (r *TransactionRepository) insertItems(ctx context.Context, t *transaction.Transaction) error {
	if len(t.Items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, item := range t.Items {
		batch.Queue(
			`INSERT INTO transaction_items (id, transaction_id, position, product_id, product_name, quantity, unit_price, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO NOTHING`,
			item.ID, t.ID, i, item.ProductID, item.ProductName, item.Quantity,
			decimalToNumericString(item.UnitPrice), item.CreatedAt,
		)
	}

	results := r.db(ctx).SendBatch(ctx, batch)
	defer results.Close()
	for range t.Items {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert transaction item: %w", err)
		}
	}
	return nil
}

func (r *TransactionRepository) loadItems(ctx context.Context, t *transaction.Transaction) error {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, product_id, product_name, quantity, unit_price, created_at
		 FROM transaction_items WHERE transaction_id = $1 ORDER BY position ASC`, t.ID,
	)
	if err != nil {
		return fmt.Errorf("list transaction items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item     transaction.Item
			priceStr string
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &priceStr, &item.CreatedAt); err != nil {
			return fmt.Errorf("scan transaction item: %w", err)
		}
		if item.UnitPrice, err = numericStringToDecimal(priceStr); err != nil {
			return fmt.Errorf("parse unit price: %w", err)
		}
		t.Items = append(t.Items, item)
	}
	return rows.Err()
}
