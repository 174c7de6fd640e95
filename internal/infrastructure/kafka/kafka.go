// Package kafka carries outbox messages over Kafka topics named after their destination.
// Messages are keyed by aggregate ID so one aggregate's events stay on one partition.
package kafka

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/messaging"
	"github.com/segmentio/kafka-go"
)

const (
	headerMessageID   = "message_id"
	headerMessageType = "message_type"
	headerConsumer    = "consumer"
	headerError       = "error"
	headerAttempts    = "attempts"
	headerTerminal    = "terminal"
)

// DeadLetterTopic is the topic parked messages of a destination go to.
func DeadLetterTopic(destination string) string {
	return destination + ".dlq"
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a writer that takes the topic from each message.
func NewWriter(brokers []string, batchTimeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: true,
	}
}

type Publisher struct {
	writer messageWriter
}

func NewPublisher(writer messageWriter) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, msg messaging.Message) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: msg.Destination,
		Key:   []byte(msg.Key),
		Value: msg.Body,
		Headers: []kafka.Header{
			{Key: headerMessageID, Value: []byte(msg.ID)},
			{Key: headerMessageType, Value: []byte(msg.Type)},
		},
		Time: time.Now().UTC(),
	})
	if err != nil {
		return domainErrors.NewInfrastructureError("write "+msg.Destination, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// DeadLetterPublisher writes dead letters to <destination>.dlq with the failure in headers.
type DeadLetterPublisher struct {
	writer messageWriter
}

func NewDeadLetterPublisher(writer messageWriter) *DeadLetterPublisher {
	return &DeadLetterPublisher{writer: writer}
}

func (p *DeadLetterPublisher) DeadLetter(ctx context.Context, dl messaging.DeadLetter) error {
	topic := DeadLetterTopic(dl.Destination)
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(dl.Key),
		Value: dl.Body,
		Headers: []kafka.Header{
			{Key: headerMessageID, Value: []byte(dl.ID)},
			{Key: headerMessageType, Value: []byte(dl.Type)},
			{Key: headerConsumer, Value: []byte(dl.Consumer)},
			{Key: headerError, Value: []byte(dl.Error)},
			{Key: headerAttempts, Value: []byte(strconv.Itoa(dl.Attempts))},
			{Key: headerTerminal, Value: []byte(strconv.FormatBool(dl.Terminal))},
		},
		Time: dl.FailedAt,
	})
	if err != nil {
		return domainErrors.NewInfrastructureError("write "+topic, err)
	}
	return nil
}

// NewReader returns a consumer-group reader over the given topics. Offsets are committed
// explicitly, one message at a time.
func NewReader(brokers []string, group string, topics ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
}

// Subscriber hands out one message per Fetch. A message that was not acked is handed out
// again before the reader advances, since committing a later offset would skip it.
type Subscriber struct {
	reader messageReader
	block  time.Duration

	mu      sync.Mutex
	pending *kafka.Message
}

func NewSubscriber(reader messageReader, block time.Duration) *Subscriber {
	if block <= 0 {
		block = time.Second
	}
	return &Subscriber{reader: reader, block: block}
}

func (s *Subscriber) Fetch(ctx context.Context) ([]messaging.Delivery, error) {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending != nil {
		return []messaging.Delivery{s.toDelivery(*pending)}, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.block)
	defer cancel()
	m, err := s.reader.FetchMessage(fetchCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, domainErrors.NewInfrastructureError("fetch kafka message", err)
	}

	s.mu.Lock()
	s.pending = &m
	s.mu.Unlock()
	return []messaging.Delivery{s.toDelivery(m)}, nil
}

func (s *Subscriber) Close() error {
	return s.reader.Close()
}

func (s *Subscriber) toDelivery(m kafka.Message) messaging.Delivery {
	msg := messaging.Message{
		ID:          header(m, headerMessageID),
		Type:        header(m, headerMessageType),
		Key:         string(m.Key),
		Destination: m.Topic,
		Body:        m.Value,
	}
	return messaging.NewDelivery(msg, func(ctx context.Context) error {
		if err := s.reader.CommitMessages(ctx, m); err != nil {
			return domainErrors.NewInfrastructureError("commit "+m.Topic, err)
		}
		s.mu.Lock()
		if s.pending != nil && s.pending.Topic == m.Topic && s.pending.Partition == m.Partition && s.pending.Offset == m.Offset {
			s.pending = nil
		}
		s.mu.Unlock()
		return nil
	})
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
