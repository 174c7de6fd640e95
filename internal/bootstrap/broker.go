package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/kafka"
	"github.com/cassiomorais/checkout/internal/infrastructure/rabbitmq"
	infraRedis "github.com/cassiomorais/checkout/internal/infrastructure/redis"
	"github.com/cassiomorais/checkout/internal/messaging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Broker is the messaging driver selected by broker.driver.
type Broker struct {
	Publisher   messaging.Publisher
	DeadLetters messaging.DeadLetterSink

	subscribe func(ctx context.Context, group string, destinations []string) (messaging.Subscriber, error)
	closers   []func() error
}

// OpenBroker connects the configured driver. The Redis driver reuses rdb.
func OpenBroker(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) (*Broker, error) {
	consumerName := cfg.InstanceID

	switch cfg.Broker.Driver {
	case config.DriverRedis:
		return &Broker{
			Publisher:   infraRedis.NewStreamPublisher(rdb),
			DeadLetters: infraRedis.NewDeadLetterStream(rdb, cfg.Broker.DeadLetterStream),
			subscribe: func(ctx context.Context, group string, destinations []string) (messaging.Subscriber, error) {
				sub := infraRedis.NewStreamSubscriber(rdb, infraRedis.SubscriberConfig{
					Group:     group,
					Consumer:  consumerName,
					BatchSize: cfg.Consumer.BatchSize,
					Block:     cfg.Consumer.BlockDuration,
					ClaimIdle: cfg.Consumer.ClaimIdle,
				}, logger, destinations...)
				if err := sub.EnsureGroups(ctx); err != nil {
					return nil, err
				}
				return sub, nil
			},
		}, nil

	case config.DriverRabbitMQ:
		conn, ch, err := rabbitmq.Dial(ctx, cfg.Broker.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
		if err := rabbitmq.DeclarePublisherTopology(ch); err != nil {
			conn.Close()
			return nil, err
		}
		return &Broker{
			Publisher:   rabbitmq.NewPublisher(ch),
			DeadLetters: rabbitmq.NewDeadLetterPublisher(ch),
			subscribe: func(_ context.Context, group string, destinations []string) (messaging.Subscriber, error) {
				// Consumers get their own channel so prefetch does not throttle publishing.
				consumeCh, err := conn.Channel()
				if err != nil {
					return nil, fmt.Errorf("open rabbitmq consumer channel: %w", err)
				}
				return rabbitmq.NewSubscriber(consumeCh, rabbitmq.SubscriberConfig{
					Group:     group,
					Consumer:  consumerName,
					Prefetch:  cfg.Broker.RabbitMQ.Prefetch,
					BatchSize: int(cfg.Consumer.BatchSize),
					Block:     cfg.Consumer.BlockDuration,
				}, destinations...), nil
			},
			closers: []func() error{ch.Close, conn.Close},
		}, nil

	case config.DriverKafka:
		writer := kafka.NewWriter(cfg.Broker.Kafka.Brokers, cfg.Broker.Kafka.BatchTimeout)
		b := &Broker{
			Publisher:   kafka.NewPublisher(writer),
			DeadLetters: kafka.NewDeadLetterPublisher(writer),
			closers:     []func() error{writer.Close},
		}
		b.subscribe = func(_ context.Context, group string, destinations []string) (messaging.Subscriber, error) {
			sub := kafka.NewSubscriber(kafka.NewReader(cfg.Broker.Kafka.Brokers, group, destinations...), cfg.Consumer.BlockDuration)
			b.closers = append(b.closers, sub.Close)
			return sub, nil
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Broker.Driver)
	}
}

// Subscribe returns a subscriber reading destinations as a member of group.
func (b *Broker) Subscribe(ctx context.Context, group string, destinations []string) (messaging.Subscriber, error) {
	if len(destinations) == 0 {
		return nil, errors.New("no destinations to subscribe to")
	}
	return b.subscribe(ctx, group, destinations)
}

func (b *Broker) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}
