package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/checkout/internal/bootstrap"
	infraRedis "github.com/cassiomorais/checkout/internal/infrastructure/redis"
	"github.com/cassiomorais/checkout/internal/messaging"
	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	idempotencyCleanupInterval = time.Hour
	idempotencyCleanupBatch    = 1000
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	cfg := app.Config

	// --- Service wiring ---
	stores := bootstrap.PostgresStores(app.Pool)
	svc, err := bootstrap.BuildService(cfg, stores, nil, app.Metrics, app.Logger)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to wire service")
	}

	broker, err := bootstrap.OpenBroker(ctx, cfg, app.Redis, app.Logger)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to open broker")
	}
	defer func() {
		if err := broker.Close(); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to close broker")
		}
	}()

	// --- Outbox relay, one active instance per service ---
	relay := messaging.NewRelay(stores.Outbox, stores.TxManager, broker.Publisher,
		messaging.RelayConfig{PollInterval: cfg.Outbox.PollInterval, BatchSize: cfg.Outbox.BatchSize},
		app.Logger,
		messaging.WithLocker(infraRedis.NewDistributedLock(app.Redis, "outbox-relay:"+svc.Name, cfg.Outbox.LockTTL), cfg.Outbox.LockTTL),
		messaging.WithRelayMetrics(app.Metrics),
	)

	// --- Consumer dispatcher ---
	group := cfg.Consumer.Group + "." + svc.Consumer
	destinations := svc.Registry.Destinations()
	subscriber, err := broker.Subscribe(ctx, group, destinations)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to subscribe")
	}
	dispatcher := messaging.NewDispatcher(
		messaging.DispatcherConfig{
			Consumer: svc.Consumer,
			Retry:    retry.Incremental(cfg.Consumer.RetryLimit, cfg.Consumer.InitialDelay, cfg.Consumer.Increment),
		},
		subscriber, svc.Registry, stores.Inbox, stores.TxManager, broker.DeadLetters, app.Logger,
		messaging.WithDispatcherMetrics(app.Metrics),
	)

	app.Logger.Info().
		Str("group", group).
		Strs("destinations", destinations).
		Str("consumer", cfg.InstanceID).
		Msg("Worker started")

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Outbox relay (polls the outbox table and publishes to the broker).
	g.Go(func() error {
		return relay.Run(gCtx)
	})

	// 2. Dispatcher (consumes the other service's events).
	g.Go(func() error {
		return dispatcher.Run(gCtx)
	})

	// 3. Expired idempotency keys.
	g.Go(func() error {
		return runIdempotencyCleanup(gCtx, app.Logger, postgres.NewIdempotencyRepository(app.Pool))
	})

	// 4. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runIdempotencyCleanup(ctx context.Context, logger zerolog.Logger, repo *postgres.IdempotencyRepository) error {
	ticker := time.NewTicker(idempotencyCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		deleted, err := repo.Cleanup(ctx, idempotencyCleanupBatch)
		if err != nil {
			logger.Error().Err(err).Msg("Idempotency key cleanup failed")
			continue
		}
		if deleted > 0 {
			logger.Info().Int64("deleted", deleted).Msg("Expired idempotency keys removed")
		}
	}
}
