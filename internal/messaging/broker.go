// Package messaging moves staged events from the outbox to a broker and from a broker into
// inbox-guarded handlers. Broker drivers live under internal/infrastructure.
package messaging

import (
	"context"
	"time"
)

// Message is a broker-neutral unit of delivery.
type Message struct {
	ID          string
	Type        string
	Key         string
	Destination string
	Body        []byte
}

// Publisher hands messages to a broker. Publish returns once the broker has accepted the message.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// NopPublisher accepts and discards every message.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Message) error { return nil }

// Delivery is a received message awaiting acknowledgement.
type Delivery struct {
	Message
	ack func(ctx context.Context) error
}

func NewDelivery(msg Message, ack func(ctx context.Context) error) Delivery {
	return Delivery{Message: msg, ack: ack}
}

// Ack tells the broker the message needs no further delivery.
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Subscriber yields deliveries for one consumer. Fetch blocks until at least one delivery is
// available, the driver's block window elapses, or ctx is done. Un-acked deliveries are
// eventually redelivered.
type Subscriber interface {
	Fetch(ctx context.Context) ([]Delivery, error)
}

// DeadLetter is a message parked for manual inspection.
type DeadLetter struct {
	Message
	Consumer string
	Error    string
	Attempts int
	Terminal bool
	FailedAt time.Time
}

type DeadLetterSink interface {
	DeadLetter(ctx context.Context, dl DeadLetter) error
}

// TxManager runs fn inside a local store transaction carried by the context.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker grants exclusive leadership for one relay tick.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}
