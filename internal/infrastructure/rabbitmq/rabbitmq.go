// Package rabbitmq carries outbox messages over a topic exchange. Every destination is a
// routing key; every consumer group owns one durable queue per destination it reads.
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/pkg/retry"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange     = "checkout.events"
	DeadLetterExchange = "checkout.dlx"
	exchangeType       = "topic"
)

// Channel is the subset of *amqp.Channel the driver uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Dial connects to the broker and opens one channel, retrying while the broker comes up.
func Dial(ctx context.Context, url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := retry.DoWithResult(ctx, retry.Incremental(4, time.Second, time.Second), func() (*amqp.Connection, error) {
		return amqp.Dial(url)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return conn, ch, nil
}

// QueueName is the queue a consumer group reads a destination from.
func QueueName(group, destination string) string {
	return group + "." + destination
}

// DeadLetterQueueName is the queue parked messages of a destination end up in.
func DeadLetterQueueName(destination string) string {
	return destination + ".dlq"
}

// DeclarePublisherTopology declares the exchanges a publisher writes to.
func DeclarePublisherTopology(ch Channel) error {
	for _, name := range []string{EventsExchange, DeadLetterExchange} {
		if err := ch.ExchangeDeclare(name, exchangeType, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

// DeclareConsumerTopology declares the group's queues and the dead-letter queue of each
// destination. Group queues route rejected messages to the dead-letter exchange.
func DeclareConsumerTopology(ch Channel, group string, destinations ...string) error {
	if err := DeclarePublisherTopology(ch); err != nil {
		return err
	}

	for _, dest := range destinations {
		queue := QueueName(group, dest)
		args := amqp.Table{
			"x-dead-letter-exchange":    DeadLetterExchange,
			"x-dead-letter-routing-key": dest,
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, dest, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}

		dlq := DeadLetterQueueName(dest)
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead letter queue %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, dest, DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("bind dead letter queue %s: %w", dlq, err)
		}
	}
	return nil
}
