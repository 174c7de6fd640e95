package bootstrap

import (
	"fmt"

	"github.com/cassiomorais/checkout/internal/application/diagnostics"
	paymentApp "github.com/cassiomorais/checkout/internal/application/payment"
	txApp "github.com/cassiomorais/checkout/internal/application/transaction"
	"github.com/cassiomorais/checkout/internal/controller"
	"github.com/cassiomorais/checkout/internal/domain/inbox"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/domain/transaction"
	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout/internal/infrastructure/transactionapi"
	"github.com/cassiomorais/checkout/internal/messaging"
	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Stores are the persistence ports of one service database.
type Stores struct {
	Transactions transaction.Repository
	Payments     payment.Repository
	Outbox       outbox.Repository
	Inbox        inbox.Repository
	TxManager    messaging.TxManager
}

// Service is the wiring of the service selected by service.name: its HTTP controllers and
// the consumer handlers it registers.
type Service struct {
	Name         string
	Consumer     string
	Transactions *controller.TransactionController
	Payments     *controller.PaymentController
	Diagnostics  *controller.DiagnosticsController
	Registry     *messaging.Registry
}

// BuildService wires use cases for cfg.Service.Name. lookup is used by the payments service;
// nil builds the HTTP client from cfg.TransactionAPI.
func BuildService(cfg *config.Config, stores Stores, lookup paymentApp.TransactionLookup, metrics *observability.Metrics, logger zerolog.Logger) (*Service, error) {
	stager := outbox.NewStager(stores.Outbox)
	svc := &Service{
		Name:        cfg.Service.Name,
		Diagnostics: controller.NewDiagnosticsController(diagnostics.NewOutboxStatsUseCase(stores.Outbox, cfg.Diagnostics.RecentLimit)),
		Registry:    messaging.NewRegistry(),
	}

	switch cfg.Service.Name {
	case config.ServiceTransactions:
		repo := stores.Transactions
		svc.Consumer = txApp.Consumer
		svc.Transactions = controller.NewTransactionController(controller.TransactionUseCases{
			Create: txApp.NewCreateTransactionUseCase(repo, stager, stores.TxManager),
			Add:    txApp.NewAddItemUseCase(repo, stager, stores.TxManager),
			Submit: txApp.NewSubmitTransactionUseCase(repo, stager, stores.TxManager),
			Cancel: txApp.NewCancelTransactionUseCase(repo, stager, stores.TxManager),
			Get:    txApp.NewGetTransactionUseCase(repo),
		})
		handlers := txApp.NewPaymentOutcomeHandlers(repo, stager, stores.TxManager, logger)
		if err := handlers.Register(svc.Registry); err != nil {
			return nil, fmt.Errorf("register transaction handlers: %w", err)
		}

	case config.ServicePayments:
		if lookup == nil {
			lookup = transactionapi.NewClient(transactionapi.Config{
				BaseURL:                 cfg.TransactionAPI.BaseURL,
				Timeout:                 cfg.TransactionAPI.Timeout,
				MaxRetries:              cfg.TransactionAPI.MaxRetries,
				CircuitBreakerThreshold: cfg.TransactionAPI.CircuitBreakerThreshold,
				CircuitBreakerTimeout:   cfg.TransactionAPI.CircuitBreakerTimeout,
			}, logger, transactionapi.WithMetrics(metrics))
		}
		repo := stores.Payments
		start := paymentApp.NewStartPaymentUseCase(repo, lookup, stager, stores.TxManager)
		svc.Consumer = paymentApp.Consumer
		svc.Payments = controller.NewPaymentController(controller.PaymentUseCases{
			Start:   start,
			Confirm: paymentApp.NewConfirmPaymentUseCase(repo, stager, stores.TxManager),
			Fail:    paymentApp.NewFailPaymentUseCase(repo, stager, stores.TxManager),
			Get:     paymentApp.NewGetPaymentUseCase(repo),
		})
		if err := paymentApp.NewTransactionSubmittedHandler(start, logger).Register(svc.Registry); err != nil {
			return nil, fmt.Errorf("register payment handlers: %w", err)
		}

	default:
		return nil, fmt.Errorf("unknown service %q", cfg.Service.Name)
	}
	return svc, nil
}

// PostgresStores returns the pgx-backed stores of the service database behind pool.
func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Transactions: postgres.NewTransactionRepository(pool),
		Payments:     postgres.NewPaymentRepository(pool),
		Outbox:       postgres.NewOutboxRepository(pool),
		Inbox:        postgres.NewInboxRepository(pool),
		TxManager:    postgres.NewTxManager(pool),
	}
}
