package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/messaging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Stream entry fields.
const (
	fieldMessageID   = "message_id"
	fieldMessageType = "message_type"
	fieldKey         = "key"
	fieldBody        = "body"
	fieldPublishedAt = "published_at"
	fieldConsumer    = "consumer"
	fieldError       = "error"
	fieldAttempts    = "attempts"
	fieldTerminal    = "terminal"
	fieldDestination = "destination"
	fieldFailedAt    = "failed_at"
)

// StreamPublisher appends messages to the stream named by their destination.
type StreamPublisher struct {
	client *redis.Client
}

func NewStreamPublisher(client *redis.Client) *StreamPublisher {
	return &StreamPublisher{client: client}
}

func (p *StreamPublisher) Publish(ctx context.Context, msg messaging.Message) error {
	args := &redis.XAddArgs{
		Stream: msg.Destination,
		Values: map[string]any{
			fieldMessageID:   msg.ID,
			fieldMessageType: msg.Type,
			fieldKey:         msg.Key,
			fieldBody:        string(msg.Body),
			fieldPublishedAt: time.Now().UTC().Format(time.RFC3339Nano),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return domainErrors.NewInfrastructureError("xadd "+msg.Destination, err)
	}
	return nil
}

// DeadLetterStream parks dead letters on a single stream together with their failure details.
type DeadLetterStream struct {
	client *redis.Client
	stream string
}

func NewDeadLetterStream(client *redis.Client, stream string) *DeadLetterStream {
	return &DeadLetterStream{client: client, stream: stream}
}

func (s *DeadLetterStream) DeadLetter(ctx context.Context, dl messaging.DeadLetter) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			fieldMessageID:   dl.ID,
			fieldMessageType: dl.Type,
			fieldKey:         dl.Key,
			fieldDestination: dl.Destination,
			fieldBody:        string(dl.Body),
			fieldConsumer:    dl.Consumer,
			fieldError:       dl.Error,
			fieldAttempts:    dl.Attempts,
			fieldTerminal:    dl.Terminal,
			fieldFailedAt:    dl.FailedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	if _, err := s.client.XAdd(ctx, args).Result(); err != nil {
		return domainErrors.NewInfrastructureError("xadd "+s.stream, err)
	}
	return nil
}

type SubscriberConfig struct {
	Group     string
	Consumer  string
	BatchSize int64
	Block     time.Duration
	// ClaimIdle is how long an entry may sit un-acked with another consumer before
	// this one takes it over.
	ClaimIdle time.Duration
}

// StreamSubscriber reads a set of streams as one member of a consumer group.
// On its first fetches it drains entries that were delivered to this consumer name
// but never acked, then reads new entries. Entries stuck with a dead consumer are
// claimed once they have been idle for ClaimIdle.
type StreamSubscriber struct {
	client  *redis.Client
	streams []string
	cfg     SubscriberConfig
	logger  zerolog.Logger

	// pending holds the per-stream cursor while the pending list is drained; nil once done.
	pending   map[string]string
	lastClaim time.Time
}

func NewStreamSubscriber(client *redis.Client, cfg SubscriberConfig, logger zerolog.Logger, streams ...string) *StreamSubscriber {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = time.Second
	}
	pending := make(map[string]string, len(streams))
	for _, s := range streams {
		pending[s] = "0"
	}
	return &StreamSubscriber{
		client:  client,
		streams: streams,
		cfg:     cfg,
		pending: pending,
		logger:  logger.With().Str("component", "stream_subscriber").Str("group", cfg.Group).Logger(),
	}
}

// EnsureGroups creates the consumer group on every stream, creating streams as needed.
func (s *StreamSubscriber) EnsureGroups(ctx context.Context) error {
	const busyGroupMsg = "BUSYGROUP"
	for _, stream := range s.streams {
		err := s.client.XGroupCreateMkStream(ctx, stream, s.cfg.Group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
			return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
		}
	}
	return nil
}

func (s *StreamSubscriber) Fetch(ctx context.Context) ([]messaging.Delivery, error) {
	if s.pending != nil {
		deliveries, err := s.readPending(ctx)
		if err != nil || len(deliveries) > 0 {
			return deliveries, err
		}
	}

	if s.cfg.ClaimIdle > 0 && time.Since(s.lastClaim) >= s.cfg.ClaimIdle {
		s.lastClaim = time.Now()
		deliveries, err := s.claimIdle(ctx)
		if err != nil {
			return nil, err
		}
		if len(deliveries) > 0 {
			return deliveries, nil
		}
	}

	deliveries, err := s.read(ctx, s.cfg.Block, func(string) string { return ">" })
	if err != nil {
		return nil, err
	}
	out := make([]messaging.Delivery, len(deliveries))
	for i, d := range deliveries {
		out[i] = d.Delivery
	}
	return out, nil
}

func (s *StreamSubscriber) readPending(ctx context.Context) ([]messaging.Delivery, error) {
	deliveries, err := s.read(ctx, -1, func(stream string) string { return s.pending[stream] })
	if err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		s.pending = nil
		return nil, nil
	}
	for _, d := range deliveries {
		s.pending[d.Destination] = d.streamID
	}
	out := make([]messaging.Delivery, len(deliveries))
	for i, d := range deliveries {
		out[i] = d.Delivery
	}
	s.logger.Info().Int("count", len(out)).Msg("Redelivering pending entries")
	return out, nil
}

type streamDelivery struct {
	messaging.Delivery
	streamID string
}

func (s *StreamSubscriber) read(ctx context.Context, block time.Duration, cursor func(stream string) string) ([]streamDelivery, error) {
	keys := make([]string, 0, 2*len(s.streams))
	keys = append(keys, s.streams...)
	for _, stream := range s.streams {
		keys = append(keys, cursor(stream))
	}

	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  keys,
		Count:    s.cfg.BatchSize,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, domainErrors.NewInfrastructureError("xreadgroup", err)
	}

	var out []streamDelivery
	for _, stream := range streams {
		for _, entry := range stream.Messages {
			out = append(out, s.toDelivery(stream.Stream, entry))
		}
	}
	return out, nil
}

func (s *StreamSubscriber) claimIdle(ctx context.Context) ([]messaging.Delivery, error) {
	var out []messaging.Delivery
	for _, stream := range s.streams {
		entries, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			MinIdle:  s.cfg.ClaimIdle,
			Start:    "0",
			Count:    s.cfg.BatchSize,
		}).Result()
		if err != nil {
			return nil, domainErrors.NewInfrastructureError("xautoclaim "+stream, err)
		}
		for _, entry := range entries {
			out = append(out, s.toDelivery(stream, entry).Delivery)
		}
	}
	if len(out) > 0 {
		s.logger.Warn().Int("count", len(out)).Msg("Claimed idle entries from another consumer")
	}
	return out, nil
}

func (s *StreamSubscriber) toDelivery(stream string, entry redis.XMessage) streamDelivery {
	msg := messaging.Message{
		ID:          stringField(entry.Values, fieldMessageID),
		Type:        stringField(entry.Values, fieldMessageType),
		Key:         stringField(entry.Values, fieldKey),
		Destination: stream,
		Body:        []byte(stringField(entry.Values, fieldBody)),
	}
	id := entry.ID
	ack := func(ctx context.Context) error {
		if err := s.client.XAck(ctx, stream, s.cfg.Group, id).Err(); err != nil {
			return domainErrors.NewInfrastructureError("xack "+stream, err)
		}
		return nil
	}
	return streamDelivery{Delivery: messaging.NewDelivery(msg, ack), streamID: id}
}

func stringField(values map[string]any, key string) string {
	v, ok := values[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
