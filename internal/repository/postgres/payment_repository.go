package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, transaction_id, customer_id, amount, status, failure_reason, created_at, updated_at, completed_at`

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create inserts a new payment. The transaction_id unique constraint is the idempotency
// anchor: a conflicting insert affects no rows and reports ErrDuplicatePayment without
// aborting the surrounding transaction.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (transaction_id) DO NOTHING`,
		p.ID, p.TransactionID, p.CustomerID, decimalToNumericString(p.Amount), string(p.Status),
		p.FailureReason, p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domainErrors.ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrDuplicatePayment
	}
	return nil
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// GetByTransactionID retrieves the payment of a transaction.
func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, transactionID))
}

// GetForUpdate retrieves a payment with a row lock held until the surrounding transaction ends.
func (r *PaymentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

// Update updates an existing payment.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments SET status = $1, failure_reason = $2, updated_at = $3, completed_at = $4
		 WHERE id = $5`,
		string(p.Status), p.FailureReason, p.UpdatedAt, p.CompletedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrPaymentNotFound
	}
	return nil
}

// scanPayment scans a payment from any source implementing the scanner interface.
func (r *PaymentRepository) scanPayment(s scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var (
		amountStr string
		status    string
	)
	err := s.Scan(&p.ID, &p.TransactionID, &p.CustomerID, &amountStr, &status,
		&p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	if p.Amount, err = numericStringToDecimal(amountStr); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	p.Status = payment.Status(status)
	return p, nil
}
