package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Strategy selects how the delay grows between attempts.
type Strategy int

const (
	// Exponential doubles the delay after every attempt.
	Exponential Strategy = iota
	// Linear adds Increment to the delay after every attempt.
	Linear
)

// Config holds retry configuration
type Config struct {
	// MaxAttempts counts the first call.
	MaxAttempts  uint
	InitialDelay time.Duration
	Increment    time.Duration
	MaxDelay     time.Duration
	Strategy     Strategy

	// RetryIf limits retries to errors it accepts. Nil retries every error.
	RetryIf func(error) bool
	// OnRetry is called before sleeping ahead of retry number n (0-based).
	OnRetry func(n uint, err error, delay time.Duration)
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Strategy:     Exponential,
	}
}

// Incremental returns a linear schedule of retries after the first attempt:
// initial, initial+increment, initial+2*increment, ...
func Incremental(retries uint, initial, increment time.Duration) Config {
	return Config{
		MaxAttempts:  retries + 1,
		InitialDelay: initial,
		Increment:    increment,
		Strategy:     Linear,
	}
}

// Delay returns the wait before retry number n (0-based).
func (c Config) Delay(n uint) time.Duration {
	var d time.Duration
	switch c.Strategy {
	case Linear:
		d = c.InitialDelay + time.Duration(n)*c.Increment
	default:
		d = c.InitialDelay << n
		if d < c.InitialDelay {
			d = c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Do executes fn until it succeeds, RetryIf rejects the error, attempts run out or ctx is done.
// The last error is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	var retries uint
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		// Only consulted when another attempt follows.
		retry.DelayType(func(_ uint, err error, _ *retry.Config) time.Duration {
			d := cfg.Delay(retries)
			if cfg.OnRetry != nil {
				cfg.OnRetry(retries, err, d)
			}
			retries++
			return d
		}),
		retry.LastErrorOnly(true),
	}
	if cfg.RetryIf != nil {
		opts = append(opts, retry.RetryIf(cfg.RetryIf))
	}
	return retry.Do(fn, opts...)
}

// DoWithResult executes a function with retry and returns a result
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
