package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func (c *RelayConfig) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

type RelayOption func(*Relay)

// WithLocker makes every tick run only while the lock is held, so a single relay
// publishes at a time across replicas. lease is the lock TTL; a tick is cancelled
// once it elapses so it never runs past the lock's expiry.
func WithLocker(l Locker, lease time.Duration) RelayOption {
	return func(r *Relay) {
		r.locker = l
		r.lease = lease
	}
}

func WithRelayMetrics(m *observability.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

// Relay publishes undelivered outbox entries in sequence order.
type Relay struct {
	repo      outbox.Repository
	txManager TxManager
	publisher Publisher
	locker    Locker
	lease     time.Duration
	metrics   *observability.Metrics
	logger    zerolog.Logger
	cfg       RelayConfig
	now       func() time.Time
}

func NewRelay(repo outbox.Repository, txManager TxManager, publisher Publisher, cfg RelayConfig, logger zerolog.Logger, opts ...RelayOption) *Relay {
	cfg.normalize()
	r := &Relay{
		repo:      repo,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With().Str("component", "outbox_relay").Logger(),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().Dur("poll_interval", r.cfg.PollInterval).Int("batch_size", r.cfg.BatchSize).Msg("Outbox relay started")

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Outbox relay stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Relay) tick(ctx context.Context) {
	tickCtx := ctx
	if r.locker != nil {
		if r.lease > 0 {
			var cancel context.CancelFunc
			tickCtx, cancel = context.WithTimeout(ctx, r.lease)
			defer cancel()
		}
		acquired, err := r.locker.Acquire(tickCtx)
		if err != nil {
			r.logger.Error().Err(err).Msg("Failed to acquire relay lock")
			return
		}
		if !acquired {
			return
		}
		defer func() {
			if err := r.locker.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to release relay lock")
			}
		}()
	}

	start := time.Now()
	sent, err := r.RelayOnce(tickCtx)
	if err != nil && ctx.Err() == nil {
		r.logger.Warn().Err(err).Int("sent", sent).Msg("Outbox relay batch stopped early")
	} else if sent > 0 {
		r.logger.Debug().Int("sent", sent).Msg("Outbox relay batch delivered")
	}
	if r.metrics != nil {
		r.metrics.RelayBatchDuration.Observe(time.Since(start).Seconds())
	}

	r.updateBacklog(ctx)
}

// RelayOnce delivers one batch and reports how many entries were marked sent.
// A publish failure stops the batch at the failing entry so later entries for the same
// aggregate cannot overtake it; the entries already published stay marked.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var (
		sent       int
		publishErr error
	)

	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		sent = 0
		publishErr = nil

		entries, err := r.repo.FetchUndelivered(txCtx, r.cfg.BatchSize)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			msg := Message{
				ID:          entry.MessageID.String(),
				Type:        string(entry.MessageType),
				Key:         entry.AggregateID.String(),
				Destination: entry.Destination,
				Body:        entry.Payload,
			}

			if err := r.publisher.Publish(txCtx, msg); err != nil {
				if r.metrics != nil {
					r.metrics.OutboxPublishErrors.WithLabelValues(entry.Destination).Inc()
				}
				if recErr := r.repo.RecordFailure(txCtx, entry.Sequence, err.Error()); recErr != nil {
					return recErr
				}
				publishErr = fmt.Errorf("publish outbox entry %d (%s): %w", entry.Sequence, entry.MessageID, err)
				return nil
			}

			if err := r.repo.MarkSent(txCtx, entry.Sequence, r.now()); err != nil {
				return err
			}
			sent++

			if r.metrics != nil {
				r.metrics.OutboxPublished.WithLabelValues(entry.Destination, msg.Type).Inc()
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("relay outbox batch: %w", err)
	}
	return sent, publishErr
}

func (r *Relay) updateBacklog(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	count, err := r.repo.CountUndelivered(ctx)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Failed to count outbox backlog")
		return
	}
	r.metrics.OutboxBacklog.Set(float64(count))
}
