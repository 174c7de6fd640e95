package payment_test

import (
	"context"
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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPayment(t *testing.T, store *testutil.Store) *payment.Payment {
	t.Helper()
	p := testutil.NewPendingPayment(t, testutil.NewSubmittedTransaction(t))
	require.NoError(t, store.Payments().Create(context.Background(), p))
	return p
}

func TestConfirmPayment(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore()
	p := seedPayment(t, store)
	uc := paymentApp.NewConfirmPaymentUseCase(store.Payments(), outbox.NewStager(store.Outbox()), store)

	confirmed, err := uc.Execute(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, confirmed.Status)

	entries := store.OutboxEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, event.KindPaymentConfirmed, entries[0].MessageType)
	assert.Equal(t, event.DestinationPayments, entries[0].Destination)

	_, err = uc.Execute(ctx, p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
	assert.Len(t, store.OutboxEntries(), 1)
}

func TestFailPayment(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore()
	p := seedPayment(t, store)
	uc := paymentApp.NewFailPaymentUseCase(store.Payments(), outbox.NewStager(store.Outbox()), store)

	failed, err := uc.Execute(ctx, p.ID, "Card declined")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "Card declined", *failed.FailureReason)
	assert.NotNil(t, failed.CompletedAt)

	_, err = uc.Execute(ctx, p.ID, "Another reason")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	stored, err := paymentApp.NewGetPaymentUseCase(store.Payments()).Execute(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Card declined", *stored.FailureReason)
}

func TestFailPayment_BlankReason(t *testing.T) {
	store := testutil.NewStore()
	p := seedPayment(t, store)
	uc := paymentApp.NewFailPaymentUseCase(store.Payments(), outbox.NewStager(store.Outbox()), store)

	_, err := uc.Execute(context.Background(), p.ID, "  ")

	assert.True(t, domainErrors.IsValidation(err))
	assert.Empty(t, store.OutboxEntries())
}

func TestGetPayment_NotFound(t *testing.T) {
	_, err := paymentApp.NewGetPaymentUseCase(testutil.NewStore().Payments()).Execute(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}

func TestTransactionSubmittedHandler_StartsPaymentOnce(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore()
	h := paymentApp.NewTransactionSubmittedHandler(newStartPayment(store, &stubLookup{}), zerolog.Nop())
	txn := testutil.NewDraftTransaction(t)
	require.NoError(t, txn.Submit())
	ev := txn.PullEvents()[0]

	require.NoError(t, h.Handle(ctx, ev))
	require.NoError(t, h.Handle(ctx, ev))

	p, err := store.Payments().GetByTransactionID(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(txn.Total()))
	assert.Equal(t, txn.CustomerID, p.CustomerID)
	assert.Equal(t, 1, store.PaymentCount())
}

func TestTransactionSubmittedHandler_Register(t *testing.T) {
	registry := messaging.NewRegistry()
	h := paymentApp.NewTransactionSubmittedHandler(newStartPayment(testutil.NewStore(), &stubLookup{}), zerolog.Nop())

	require.NoError(t, h.Register(registry))
	assert.ErrorIs(t, h.Register(registry), messaging.ErrHandlerAlreadyRegistered)
	assert.Equal(t, []string{event.DestinationTransactions}, registry.Destinations())
}
