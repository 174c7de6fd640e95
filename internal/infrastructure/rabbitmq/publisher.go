package rabbitmq

import (
	"context"
	"strconv"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	headerKey         = "x-key"
	headerConsumer    = "x-consumer"
	headerError       = "x-error"
	headerAttempts    = "x-attempts"
	headerTerminal    = "x-terminal"
	headerDestination = "x-destination"
)

type Publisher struct {
	ch Channel
}

func NewPublisher(ch Channel) *Publisher {
	return &Publisher{ch: ch}
}

func (p *Publisher) Publish(ctx context.Context, msg messaging.Message) error {
	err := p.ch.PublishWithContext(ctx, EventsExchange, msg.Destination, false, false, publishing(msg, amqp.Table{
		headerKey: msg.Key,
	}))
	if err != nil {
		return domainErrors.NewInfrastructureError("publish "+msg.Destination, err)
	}
	return nil
}

// DeadLetterPublisher routes dead letters through the dead-letter exchange into <destination>.dlq.
type DeadLetterPublisher struct {
	ch Channel
}

func NewDeadLetterPublisher(ch Channel) *DeadLetterPublisher {
	return &DeadLetterPublisher{ch: ch}
}

func (p *DeadLetterPublisher) DeadLetter(ctx context.Context, dl messaging.DeadLetter) error {
	headers := amqp.Table{
		headerKey:         dl.Key,
		headerConsumer:    dl.Consumer,
		headerError:       dl.Error,
		headerAttempts:    strconv.Itoa(dl.Attempts),
		headerTerminal:    strconv.FormatBool(dl.Terminal),
		headerDestination: dl.Destination,
	}
	msg := publishing(dl.Message, headers)
	msg.Timestamp = dl.FailedAt

	if err := p.ch.PublishWithContext(ctx, DeadLetterExchange, dl.Destination, false, false, msg); err != nil {
		return domainErrors.NewInfrastructureError("dead letter "+dl.Destination, err)
	}
	return nil
}

func publishing(msg messaging.Message, headers amqp.Table) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         msg.Type,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         msg.Body,
	}
}
