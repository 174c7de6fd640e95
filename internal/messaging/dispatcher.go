package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/event"
	"github.com/cassiomorais/checkout/internal/domain/inbox"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcome describes what happened to a delivery.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

type DispatcherConfig struct {
	// Consumer names the inbox ledger this dispatcher writes to.
	Consumer string
	// Retry is the schedule for retryable handler errors.
	Retry retry.Config
	// FetchBackoff is the pause after a failed Fetch.
	FetchBackoff time.Duration
}

type DispatcherOption func(*Dispatcher)

func WithClassifier(c RetryClassifier) DispatcherOption {
	return func(d *Dispatcher) { d.classifier = c }
}

func WithDispatcherMetrics(m *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithTracer(t trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

// Dispatcher consumes deliveries for one consumer. Each message runs its handler and
// inserts its inbox row inside one local transaction, and is acknowledged only after
// that transaction commits or after the message was dead-lettered.
type Dispatcher struct {
	subscriber Subscriber
	registry   *Registry
	inbox      inbox.Repository
	txManager  TxManager
	sink       DeadLetterSink
	classifier RetryClassifier
	metrics    *observability.Metrics
	tracer     trace.Tracer
	logger     zerolog.Logger
	cfg        DispatcherConfig
}

func NewDispatcher(
	cfg DispatcherConfig,
	subscriber Subscriber,
	registry *Registry,
	inboxRepo inbox.Repository,
	txManager TxManager,
	sink DeadLetterSink,
	logger zerolog.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	if cfg.FetchBackoff <= 0 {
		cfg.FetchBackoff = time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Incremental(3, time.Second, 2*time.Second)
	}

	d := &Dispatcher{
		subscriber: subscriber,
		registry:   registry,
		inbox:      inboxRepo,
		txManager:  txManager,
		sink:       sink,
		classifier: DefaultClassifier,
		tracer:     otel.Tracer("github.com/cassiomorais/checkout/internal/messaging"),
		logger:     logger.With().Str("component", "dispatcher").Str("consumer", cfg.Consumer).Logger(),
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Msg("Dispatcher started")

	for {
		if ctx.Err() != nil {
			d.logger.Info().Msg("Dispatcher stopped")
			return nil
		}

		deliveries, err := d.subscriber.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			d.logger.Error().Err(err).Msg("Failed to fetch messages")
			select {
			case <-ctx.Done():
			case <-time.After(d.cfg.FetchBackoff):
			}
			continue
		}

		for _, del := range deliveries {
			if _, err := d.Handle(ctx, del); err != nil && ctx.Err() == nil {
				d.logger.Error().Err(err).Str("message_id", del.ID).Msg("Message left for redelivery")
			}
		}
	}
}

// Handle processes one delivery. A returned error means the delivery was not
// acknowledged and the broker will redeliver it.
func (d *Dispatcher) Handle(ctx context.Context, del Delivery) (Outcome, error) {
	ctx, span := d.tracer.Start(ctx, "messaging.dispatch", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.consumer", d.cfg.Consumer),
			attribute.String("messaging.message.id", del.ID),
			attribute.String("messaging.destination", del.Destination),
		))
	defer span.End()

	start := time.Now()
	outcome, msgType, err := d.handle(ctx, del)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("messaging.outcome", string(outcome)))

	if d.metrics != nil && outcome != "" {
		d.metrics.MessagesConsumed.WithLabelValues(d.cfg.Consumer, msgType, string(outcome)).Inc()
		d.metrics.MessageProcessingDuration.WithLabelValues(d.cfg.Consumer, msgType).Observe(time.Since(start).Seconds())
	}
	return outcome, err
}

func (d *Dispatcher) handle(ctx context.Context, del Delivery) (Outcome, string, error) {
	log := d.logger.With().Str("message_id", del.ID).Str("message_type", del.Type).Logger()

	env, err := event.ParseEnvelope(del.Body)
	if err != nil {
		return d.deadLetter(ctx, del, del.Type, err, 0, true)
	}
	msgType := string(env.Type)

	handler, ok := d.registry.Lookup(env.Type)
	if !ok {
		log.Debug().Msg("No handler registered, acknowledging")
		return d.ack(ctx, del, OutcomeIgnored, msgType)
	}

	ev, err := event.Decode(env)
	if err != nil {
		return d.deadLetter(ctx, del, msgType, err, 0, true)
	}

	var (
		attempts  int
		duplicate bool
	)
	cfg := d.cfg.Retry
	cfg.RetryIf = func(err error) bool {
		return ctx.Err() == nil && !d.classifier.IsNonRetryable(err)
	}
	cfg.OnRetry = func(n uint, err error, delay time.Duration) {
		log.Warn().Err(err).Uint("retry", n+1).Dur("delay", delay).Msg("Handler failed, retrying")
		if d.metrics != nil {
			d.metrics.MessageRetries.WithLabelValues(d.cfg.Consumer, msgType).Inc()
		}
	}

	err = retry.Do(ctx, cfg, func() error {
		attempts++
		duplicate = false
		return d.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			inserted, err := d.inbox.TryInsert(txCtx, inbox.NewEntry(d.cfg.Consumer, env.MessageID, msgType))
			if err != nil {
				return err
			}
			if !inserted {
				duplicate = true
				return nil
			}
			return handler(txCtx, ev)
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", msgType, ctx.Err()
		}
		return d.deadLetter(ctx, del, msgType, err, attempts, d.classifier.IsNonRetryable(err))
	}

	if duplicate {
		log.Debug().Msg("Duplicate message, skipping handler")
		return d.ack(ctx, del, OutcomeDuplicate, msgType)
	}
	return d.ack(ctx, del, OutcomeApplied, msgType)
}

func (d *Dispatcher) deadLetter(ctx context.Context, del Delivery, msgType string, cause error, attempts int, terminal bool) (Outcome, string, error) {
	reason := "exhausted"
	if terminal {
		reason = "terminal"
	}

	d.logger.Error().Err(cause).
		Str("message_id", del.ID).
		Str("message_type", msgType).
		Int("attempts", attempts).
		Bool("terminal", terminal).
		Msg("Routing message to dead-letter sink")

	dl := DeadLetter{
		Message:  del.Message,
		Consumer: d.cfg.Consumer,
		Error:    cause.Error(),
		Attempts: attempts,
		Terminal: terminal,
		FailedAt: time.Now().UTC(),
	}
	if dl.Type == "" {
		dl.Type = msgType
	}
	if err := d.sink.DeadLetter(ctx, dl); err != nil {
		return "", msgType, fmt.Errorf("dead-letter message %s: %w", del.ID, errors.Join(err, cause))
	}

	if d.metrics != nil {
		d.metrics.MessagesDeadLettered.WithLabelValues(d.cfg.Consumer, msgType, reason).Inc()
	}
	return d.ack(ctx, del, OutcomeDeadLettered, msgType)
}

func (d *Dispatcher) ack(ctx context.Context, del Delivery, outcome Outcome, msgType string) (Outcome, string, error) {
	if err := del.Ack(ctx); err != nil {
		return "", msgType, fmt.Errorf("ack message %s: %w", del.ID, err)
	}
	return outcome, msgType, nil
}
