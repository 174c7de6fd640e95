package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type binding struct {
	queue    string
	key      string
	exchange string
}

type fakeChannel struct {
	mu         sync.Mutex
	exchanges  []string
	queues     map[string]amqp.Table
	bindings   []binding
	published  []published
	prefetch   int
	consumers  map[string]chan amqp.Delivery
	publishErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{queues: map[string]amqp.Table{}, consumers: map[string]chan amqp.Delivery{}}
}

func (f *fakeChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	f.exchanges = append(f.exchanges, name)
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	f.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.bindings = append(f.bindings, binding{queue: name, key: key, exchange: exchange})
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Consume(queue, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	ch := make(chan amqp.Delivery, 10)
	f.consumers[queue] = ch
	return ch, nil
}

type fakeAcknowledger struct {
	mu    sync.Mutex
	acked []uint64
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(uint64, bool, bool) error { return nil }
func (a *fakeAcknowledger) Reject(uint64, bool) error     { return nil }

func TestDeclareConsumerTopology(t *testing.T) {
	ch := newFakeChannel()

	require.NoError(t, DeclareConsumerTopology(ch, "payments", "checkout.transactions"))

	assert.Equal(t, []string{EventsExchange, DeadLetterExchange}, ch.exchanges)
	require.Contains(t, ch.queues, "payments.checkout.transactions")
	assert.Equal(t, DeadLetterExchange, ch.queues["payments.checkout.transactions"]["x-dead-letter-exchange"])
	assert.Contains(t, ch.queues, "checkout.transactions.dlq")
	assert.Equal(t, []binding{
		{queue: "payments.checkout.transactions", key: "checkout.transactions", exchange: EventsExchange},
		{queue: "checkout.transactions.dlq", key: "checkout.transactions", exchange: DeadLetterExchange},
	}, ch.bindings)
}

func TestPublisher_Publish(t *testing.T) {
	ch := newFakeChannel()
	msg := messaging.Message{ID: "m1", Type: "payment.confirmed", Key: "p1", Destination: "checkout.payments", Body: []byte(`{}`)}

	require.NoError(t, NewPublisher(ch).Publish(context.Background(), msg))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, EventsExchange, got.exchange)
	assert.Equal(t, "checkout.payments", got.key)
	assert.Equal(t, "m1", got.msg.MessageId)
	assert.Equal(t, "payment.confirmed", got.msg.Type)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "p1", got.msg.Headers[headerKey])
	assert.Equal(t, []byte(`{}`), got.msg.Body)
}

func TestPublisher_Error(t *testing.T) {
	ch := newFakeChannel()
	ch.publishErr = amqp.ErrClosed

	err := NewPublisher(ch).Publish(context.Background(), messaging.Message{ID: "m1", Destination: "d"})

	assert.ErrorIs(t, err, domainErrors.ErrInfrastructure)
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestDeadLetterPublisher(t *testing.T) {
	ch := newFakeChannel()
	failedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := NewDeadLetterPublisher(ch).DeadLetter(context.Background(), messaging.DeadLetter{
		Message:  messaging.Message{ID: "m1", Destination: "checkout.transactions", Body: []byte(`{}`)},
		Consumer: "payments",
		Error:    "boom",
		Attempts: 4,
		FailedAt: failedAt,
	})

	require.NoError(t, err)
	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, DeadLetterExchange, got.exchange)
	assert.Equal(t, "checkout.transactions", got.key)
	assert.Equal(t, "payments", got.msg.Headers[headerConsumer])
	assert.Equal(t, "boom", got.msg.Headers[headerError])
	assert.Equal(t, "4", got.msg.Headers[headerAttempts])
	assert.Equal(t, "false", got.msg.Headers[headerTerminal])
	assert.Equal(t, failedAt, got.msg.Timestamp)
}

func TestSubscriber_FetchAndAck(t *testing.T) {
	ch := newFakeChannel()
	sub := NewSubscriber(ch, SubscriberConfig{Group: "transactions", Consumer: "c1", Prefetch: 5, Block: 50 * time.Millisecond}, "checkout.payments")

	deliveries, err := sub.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, deliveries, "nothing queued")
	assert.Equal(t, 5, ch.prefetch)

	acker := &fakeAcknowledger{}
	queue := ch.consumers["transactions.checkout.payments"]
	require.NotNil(t, queue)
	queue <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, MessageId: "m1", Type: "payment.confirmed", Headers: amqp.Table{headerKey: "p1"}, Body: []byte(`{"a":1}`)}
	queue <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, MessageId: "m2", Type: "payment.failed"}

	require.Eventually(t, func() bool { return len(sub.inbound) == 2 }, time.Second, 5*time.Millisecond)
	deliveries, err = sub.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	assert.Equal(t, "m1", deliveries[0].ID)
	assert.Equal(t, "p1", deliveries[0].Key)
	assert.Equal(t, "checkout.payments", deliveries[0].Destination)
	assert.Equal(t, []byte(`{"a":1}`), deliveries[0].Body)

	require.NoError(t, deliveries[1].Ack(context.Background()))
	assert.Equal(t, []uint64{2}, acker.acked)
}

func TestSubscriber_ChannelClosed(t *testing.T) {
	ch := newFakeChannel()
	sub := NewSubscriber(ch, SubscriberConfig{Group: "transactions", Block: 200 * time.Millisecond}, "checkout.payments")
	_, err := sub.Fetch(context.Background())
	require.NoError(t, err)

	close(ch.consumers["transactions.checkout.payments"])

	_, err = sub.Fetch(context.Background())
	assert.True(t, errors.Is(err, domainErrors.ErrInfrastructure))
}
