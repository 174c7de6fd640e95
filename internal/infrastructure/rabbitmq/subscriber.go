package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

type SubscriberConfig struct {
	Group     string
	Consumer  string
	Prefetch  int
	BatchSize int
	Block     time.Duration
}

type inbound struct {
	destination string
	delivery    amqp.Delivery
}

// Subscriber consumes the group's queues with manual acknowledgement. Deliveries that
// are never acked return to the queue when the channel closes.
type Subscriber struct {
	ch           Channel
	cfg          SubscriberConfig
	destinations []string

	startOnce sync.Once
	startErr  error
	inbound   chan inbound
	closed    chan struct{}
}

func NewSubscriber(ch Channel, cfg SubscriberConfig, destinations ...string) *Subscriber {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.Prefetch
	}
	if cfg.Block <= 0 {
		cfg.Block = time.Second
	}
	return &Subscriber{
		ch:           ch,
		cfg:          cfg,
		destinations: destinations,
		inbound:      make(chan inbound, cfg.Prefetch),
		closed:       make(chan struct{}),
	}
}

func (s *Subscriber) start() error {
	if err := DeclareConsumerTopology(s.ch, s.cfg.Group, s.destinations...); err != nil {
		return err
	}
	if err := s.ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	var wg sync.WaitGroup
	for _, dest := range s.destinations {
		queue := QueueName(s.cfg.Group, dest)
		deliveries, err := s.ch.Consume(queue, s.cfg.Consumer+"."+dest, false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", queue, err)
		}
		wg.Add(1)
		go func(dest string, deliveries <-chan amqp.Delivery) {
			defer wg.Done()
			for d := range deliveries {
				s.inbound <- inbound{destination: dest, delivery: d}
			}
		}(dest, deliveries)
	}
	go func() {
		wg.Wait()
		close(s.closed)
	}()
	return nil
}

// Fetch waits up to the block window for one delivery, then takes whatever else is buffered.
func (s *Subscriber) Fetch(ctx context.Context) ([]messaging.Delivery, error) {
	s.startOnce.Do(func() { s.startErr = s.start() })
	if s.startErr != nil {
		return nil, domainErrors.NewInfrastructureError("start rabbitmq consumer", s.startErr)
	}

	timer := time.NewTimer(s.cfg.Block)
	defer timer.Stop()

	var out []messaging.Delivery
	select {
	case in := <-s.inbound:
		out = append(out, toDelivery(in))
	case <-s.closed:
		return nil, domainErrors.NewInfrastructureError("consume", amqp.ErrClosed)
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for len(out) < s.cfg.BatchSize {
		select {
		case in := <-s.inbound:
			out = append(out, toDelivery(in))
		default:
			return out, nil
		}
	}
	return out, nil
}

func toDelivery(in inbound) messaging.Delivery {
	d := in.delivery
	key, _ := d.Headers[headerKey].(string)
	msg := messaging.Message{
		ID:          d.MessageId,
		Type:        d.Type,
		Key:         key,
		Destination: in.destination,
		Body:        d.Body,
	}
	return messaging.NewDelivery(msg, func(context.Context) error {
		if err := d.Ack(false); err != nil {
			return domainErrors.NewInfrastructureError("ack "+in.destination, err)
		}
		return nil
	})
}
