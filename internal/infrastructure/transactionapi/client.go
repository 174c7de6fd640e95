// Package transactionapi lets the payments service read transactions from the
// transactions service over HTTP.
package transactionapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	paymentApp "github.com/cassiomorais/checkout/internal/application/payment"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const breakerName = "transaction_api"

type Config struct {
	BaseURL string
	Timeout time.Duration
	// MaxRetries counts retries after the first call. Only infrastructure errors are retried.
	MaxRetries uint
	// RetryDelay is the first backoff; it doubles on every retry.
	RetryDelay              time.Duration
	CircuitBreakerThreshold uint32
	CircuitBreakerTimeout   time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client implements paymentApp.TransactionLookup.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*paymentApp.TransactionSummary]
	retry   retry.Config
	metrics *observability.Metrics
	logger  zerolog.Logger
}

var _ paymentApp.TransactionLookup = (*Client)(nil)

func NewClient(cfg Config, logger zerolog.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.CircuitBreakerThreshold == 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	if cfg.CircuitBreakerTimeout <= 0 {
		cfg.CircuitBreakerTimeout = 30 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retry: retry.Config{
			MaxAttempts:  cfg.MaxRetries + 1,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     2 * time.Second,
			Strategy:     retry.Exponential,
			RetryIf: func(err error) bool {
				return errors.Is(err, domainErrors.ErrInfrastructure)
			},
		},
		logger: logger.With().Str("component", "transaction_api").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	threshold := cfg.CircuitBreakerThreshold
	c.breaker = gobreaker.NewCircuitBreaker[*paymentApp.TransactionSummary](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Answers from a healthy service, not-found included, keep the breaker closed.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domainErrors.ErrInfrastructure)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
			c.reportState(to)
		},
	})
	c.reportState(gobreaker.StateClosed)
	return c
}

// GetTransaction fetches GET {base}/api/v1/transactions/{id}.
func (c *Client) GetTransaction(ctx context.Context, id uuid.UUID) (*paymentApp.TransactionSummary, error) {
	return retry.DoWithResult(ctx, c.retry, func() (*paymentApp.TransactionSummary, error) {
		summary, err := c.breaker.Execute(func() (*paymentApp.TransactionSummary, error) {
			return c.fetch(ctx, id)
		})
		c.recordRequest(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domainErrors.NewInfrastructureError("transaction lookup", err)
		}
		return summary, err
	})
}

type transactionDTO struct {
	ID          string `json:"id"`
	CustomerID  string `json:"customer_id"`
	Status      string `json:"status"`
	TotalAmount string `json:"total_amount"`
}

func (c *Client) fetch(ctx context.Context, id uuid.UUID) (*paymentApp.TransactionSummary, error) {
	endpoint := c.baseURL + "/api/v1/transactions/" + url.PathEscape(id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build transaction request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domainErrors.NewInfrastructureError("get transaction", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domainErrors.ErrTransactionNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domainErrors.NewInfrastructureError("get transaction",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var dto transactionDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, domainErrors.NewInfrastructureError("decode transaction", err)
	}
	return dto.toSummary()
}

func (d transactionDTO) toSummary() (*paymentApp.TransactionSummary, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, domainErrors.NewInfrastructureError("decode transaction id", err)
	}
	customerID, err := uuid.Parse(d.CustomerID)
	if err != nil {
		return nil, domainErrors.NewInfrastructureError("decode customer id", err)
	}
	total, err := decimal.NewFromString(d.TotalAmount)
	if err != nil {
		return nil, domainErrors.NewInfrastructureError("decode total amount", err)
	}
	return &paymentApp.TransactionSummary{
		ID:          id,
		CustomerID:  customerID,
		TotalAmount: total,
		Status:      d.Status,
	}, nil
}

func (c *Client) recordRequest(err error) {
	if c.metrics == nil {
		return
	}
	result := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
	case err != nil && errors.Is(err, domainErrors.ErrInfrastructure):
		result = "failure"
	}
	c.metrics.CircuitBreakerRequests.WithLabelValues(breakerName, result).Inc()
}

func (c *Client) reportState(state gobreaker.State) {
	if c.metrics == nil {
		return
	}
	c.metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(state))
}
