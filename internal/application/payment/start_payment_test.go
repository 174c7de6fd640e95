package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	paymentApp "github.com/cassiomorais/checkout/internal/application/payment"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/messaging"
	"github.com/cassiomorais/checkout/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLookup implements paymentApp.TransactionLookup for tests.
type stubLookup struct {
	mu      sync.Mutex
	summary *paymentApp.TransactionSummary
	err     error
	calls   int
}

func (s *stubLookup) GetTransaction(_ context.Context, _ uuid.UUID) (*paymentApp.TransactionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

func newStartPayment(store *testutil.Store, lookup paymentApp.TransactionLookup) *paymentApp.StartPaymentUseCase {
	return paymentApp.NewStartPaymentUseCase(store.Payments(), lookup, outbox.NewStager(store.Outbox()), store)
}

func trusted(amount string) *decimal.Decimal {
	d := decimal.RequireFromString(amount)
	return &d
}

func TestStartPayment_IdempotentPerTransaction(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore()
	lookup := &stubLookup{err: errors.New("must not be called")}
	uc := newStartPayment(store, lookup)
	req := paymentApp.StartPaymentRequest{
		TransactionID: uuid.New(),
		CustomerID:    uuid.New(),
		Amount:        trusted("99.99"),
	}

	first, err := uc.Execute(ctx, req)
	require.NoError(t, err)
	second, err := uc.Execute(ctx, req)
	require.NoError(t, err)

	assert.False(t, first.AlreadyExisted)
	assert.True(t, second.AlreadyExisted)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, payment.StatusPending, first.Payment.Status)
	assert.True(t, first.Payment.Amount.Equal(decimal.RequireFromString("99.99")))
	assert.Equal(t, 1, store.PaymentCount())
	assert.Zero(t, lookup.calls)
}

func TestStartPayment_LosesInsertRace(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore()
	txID, customerID := uuid.New(), uuid.New()

	// The winner commits between our lookup and our insert.
	winner, err := payment.NewPayment(txID, customerID, decimal.NewFromInt(10))
	require.NoError(t, err)
	lookups := 0
	store.Payments().GetByTransactionIDFunc = func(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
		lookups++
		if lookups == 1 {
			require.NoError(t, store.Payments().Create(ctx, winner))
			return nil, domainErrors.ErrPaymentNotFound
		}
		return store.Payments().LookupByTransactionID(ctx, id)
	}

	resp, err := newStartPayment(store, &stubLookup{}).Execute(ctx, paymentApp.StartPaymentRequest{
		TransactionID: txID,
		CustomerID:    customerID,
		Amount:        trusted("10"),
	})

	require.NoError(t, err)
	assert.True(t, resp.AlreadyExisted)
	assert.Equal(t, winner.ID, resp.Payment.ID)
	assert.Equal(t, 1, store.PaymentCount())
	assert.Equal(t, 2, lookups)
}

func TestStartPayment_ConcurrentCallersAgree(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore()
	uc := newStartPayment(store, &stubLookup{})
	req := paymentApp.StartPaymentRequest{
		TransactionID: uuid.New(),
		CustomerID:    uuid.New(),
		Amount:        trusted("42.00"),
	}

	const callers = 8
	ids := make([]uuid.UUID, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := uc.Execute(ctx, req)
			errs[i] = err
			if err == nil {
				ids[i] = resp.Payment.ID
			}
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, store.PaymentCount())
}

func TestStartPayment_UntrustedPath(t *testing.T) {
	txID, customerID := uuid.New(), uuid.New()
	tests := []struct {
		name    string
		lookup  *stubLookup
		wantErr error
	}{
		{
			name:    "transaction not found",
			lookup:  &stubLookup{err: domainErrors.ErrTransactionNotFound},
			wantErr: domainErrors.ErrTransactionNotFound,
		},
		{
			name: "ownership mismatch",
			lookup: &stubLookup{summary: &paymentApp.TransactionSummary{
				ID: txID, CustomerID: uuid.New(), TotalAmount: decimal.NewFromInt(10), Status: "submitted",
			}},
			wantErr: domainErrors.ErrOwnershipMismatch,
		},
		{
			name: "not submitted",
			lookup: &stubLookup{summary: &paymentApp.TransactionSummary{
				ID: txID, CustomerID: customerID, TotalAmount: decimal.NewFromInt(10), Status: "draft",
			}},
			wantErr: domainErrors.ErrTransactionNotSubmitted,
		},
		{
			name:    "lookup unavailable",
			lookup:  &stubLookup{err: domainErrors.NewInfrastructureError("get transaction", errors.New("connection refused"))},
			wantErr: domainErrors.ErrInfrastructure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewStore()

			_, err := newStartPayment(store, tt.lookup).Execute(context.Background(), paymentApp.StartPaymentRequest{
				TransactionID: txID,
				CustomerID:    customerID,
			})

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, store.PaymentCount())
		})
	}
}

func TestStartPayment_UntrustedUsesTransactionTotal(t *testing.T) {
	txID, customerID := uuid.New(), uuid.New()
	lookup := &stubLookup{summary: &paymentApp.TransactionSummary{
		ID: txID, CustomerID: customerID, TotalAmount: decimal.RequireFromString("61.97"), Status: "submitted",
	}}

	resp, err := newStartPayment(testutil.NewStore(), lookup).Execute(context.Background(), paymentApp.StartPaymentRequest{
		TransactionID: txID,
		CustomerID:    customerID,
	})

	require.NoError(t, err)
	assert.False(t, resp.AlreadyExisted)
	assert.True(t, resp.Payment.Amount.Equal(decimal.RequireFromString("61.97")))
}

func TestStartPayment_InvalidAmount(t *testing.T) {
	_, err := newStartPayment(testutil.NewStore(), &stubLookup{}).Execute(context.Background(), paymentApp.StartPaymentRequest{
		TransactionID: uuid.New(),
		CustomerID:    uuid.New(),
		Amount:        trusted("0"),
	})

	assert.True(t, domainErrors.IsValidation(err))
}

func TestTransactionSubmittedHandler_SubCentAmountIsTerminal(t *testing.T) {
	store := testutil.NewStore()
	h := paymentApp.NewTransactionSubmittedHandler(newStartPayment(store, nil), zerolog.Nop())

	err := h.Handle(context.Background(), event.TransactionSubmitted{
		Metadata:      event.NewMetadata(),
		TransactionID: uuid.New(),
		CustomerID:    uuid.New(),
		TotalAmount:   decimal.RequireFromString("15.999"),
	})

	require.Error(t, err)
	assert.True(t, domainErrors.IsValidation(err))
	assert.True(t, messaging.IsTerminal(err))
	assert.Empty(t, store.OutboxEntries())
}
