package messaging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	paymentApp "github.com/cassiomorais/checkout/internal/application/payment"
	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/messaging"
	"github.com/cassiomorais/checkout/internal/testutil"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The relay publishes, then dies before marking the entry sent. After restart it publishes
// the same message again, and the payments consumer must still create exactly one payment.
func TestRelayCrashBeforeMark_ConsumerEffectRunsOnce(t *testing.T) {
	ctx := context.Background()
	transactions := testutil.NewStore()
	payments := testutil.NewStore()
	broker := testutil.NewBroker()

	// Transactions side: submit a checkout.
	txn := testutil.NewDraftTransaction(t)
	require.NoError(t, txn.Submit())
	submitted := txn.PullEvents()[0].(event.TransactionSubmitted)
	stageEvents(t, transactions, submitted)

	// First relay run publishes and crashes before the mark commits.
	transactions.Outbox().MarkSentFunc = func(context.Context, int64) error {
		return errors.New("process killed")
	}
	_, err := newRelay(transactions, broker).RelayOnce(ctx)
	require.Error(t, err)
	require.False(t, transactions.OutboxEntries()[0].Delivered())

	// Restarted relay publishes the same entry again.
	transactions.Outbox().MarkSentFunc = nil
	sent, err := newRelay(transactions, broker).RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	published := broker.Published()
	require.Len(t, published, 2)
	assert.Equal(t, published[0].ID, published[1].ID)

	// Payments side consumes both copies.
	startPayment := paymentApp.NewStartPaymentUseCase(payments.Payments(), nil, outbox.NewStager(payments.Outbox()), payments)
	registry := messaging.NewRegistry()
	require.NoError(t, paymentApp.NewTransactionSubmittedHandler(startPayment, zerolog.Nop()).Register(registry))
	sinks := &testutil.DeadLetters{}
	dispatcher := messaging.NewDispatcher(messaging.DispatcherConfig{
		Consumer: paymentApp.Consumer,
		Retry:    retry.Incremental(3, time.Millisecond, time.Millisecond),
	}, nil, registry, payments.Inbox(), payments, sinks, zerolog.Nop())

	sub := broker.Subscribe(paymentApp.Consumer, 10*time.Millisecond, registry.Destinations()...)
	deliveries, err := sub.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)

	var outcomes []messaging.Outcome
	for _, del := range deliveries {
		outcome, err := dispatcher.Handle(ctx, del)
		require.NoError(t, err)
		outcomes = append(outcomes, outcome)
	}

	assert.Equal(t, []messaging.Outcome{messaging.OutcomeApplied, messaging.OutcomeDuplicate}, outcomes)
	assert.Equal(t, 1, payments.PaymentCount())
	assert.Equal(t, 1, payments.InboxCount(paymentApp.Consumer, submitted.ID))
	assert.Empty(t, sinks.Items())

	p, err := payments.Payments().GetByTransactionID(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(txn.Total()))

	// Everything was acknowledged.
	more, err := sub.Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, more)
}

// A consumer that crashes after commit but before ack sees the message again and skips it.
func TestConsumerCrashBeforeAck_RedeliveryIsDeduplicated(t *testing.T) {
	ctx := context.Background()
	payments := testutil.NewStore()
	broker := testutil.NewBroker()

	txn := testutil.NewDraftTransaction(t)
	require.NoError(t, txn.Submit())
	require.NoError(t, broker.Publish(ctx, testutil.MessageFor(t, txn.PullEvents()[0])))

	startPayment := paymentApp.NewStartPaymentUseCase(payments.Payments(), nil, outbox.NewStager(payments.Outbox()), payments)
	registry := messaging.NewRegistry()
	require.NoError(t, paymentApp.NewTransactionSubmittedHandler(startPayment, zerolog.Nop()).Register(registry))
	dispatcher := messaging.NewDispatcher(messaging.DispatcherConfig{Consumer: paymentApp.Consumer}, nil,
		registry, payments.Inbox(), payments, &testutil.DeadLetters{}, zerolog.Nop())
	sub := broker.Subscribe(paymentApp.Consumer, 10*time.Millisecond)

	// Commit without ack: strip the ack by re-wrapping the delivery.
	deliveries, err := sub.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	outcome, err := dispatcher.Handle(ctx, messaging.NewDelivery(deliveries[0].Message, nil))
	require.NoError(t, err)
	require.Equal(t, messaging.OutcomeApplied, outcome)

	broker.Redeliver(paymentApp.Consumer)
	deliveries, err = sub.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	outcome, err = dispatcher.Handle(ctx, deliveries[0])
	require.NoError(t, err)

	assert.Equal(t, messaging.OutcomeDuplicate, outcome)
	assert.Equal(t, 1, payments.PaymentCount())
}
