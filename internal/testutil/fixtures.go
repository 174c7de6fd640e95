package testutil

import (
	"testing"

	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/domain/transaction"
	"github.com/cassiomorais/checkout/internal/messaging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// NewDraftTransaction returns a draft with the two items of the 61.97 checkout and no pending events.
func NewDraftTransaction(t testing.TB) *transaction.Transaction {
	t.Helper()
	txn, err := transaction.NewTransaction(uuid.New())
	require.NoError(t, err)
	_, err = txn.AddItem(uuid.New(), "Wireless Mouse", 2, decimal.RequireFromString("15.99"))
	require.NoError(t, err)
	_, err = txn.AddItem(uuid.New(), "Keyboard", 1, decimal.RequireFromString("29.99"))
	require.NoError(t, err)
	txn.PullEvents()
	return txn
}

// NewSubmittedTransaction returns a submitted 61.97 transaction with no pending events.
func NewSubmittedTransaction(t testing.TB) *transaction.Transaction {
	t.Helper()
	txn := NewDraftTransaction(t)
	require.NoError(t, txn.Submit())
	txn.PullEvents()
	return txn
}

// NewPendingPayment returns a pending payment for the transaction.
func NewPendingPayment(t testing.TB, txn *transaction.Transaction) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(txn.ID, txn.CustomerID, txn.Total())
	require.NoError(t, err)
	return p
}

// MessageFor encodes an event the way the outbox relay hands it to a broker.
func MessageFor(t testing.TB, ev event.Event) messaging.Message {
	t.Helper()
	body, err := event.Marshal(ev)
	require.NoError(t, err)
	dest, err := event.Destination(ev.Kind())
	require.NoError(t, err)
	return messaging.Message{
		ID:          ev.Meta().ID.String(),
		Type:        string(ev.Kind()),
		Key:         ev.AggregateID().String(),
		Destination: dest,
		Body:        body,
	}
}
