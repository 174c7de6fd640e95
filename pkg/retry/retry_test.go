package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestIncremental_Schedule(t *testing.T) {
	cfg := Incremental(3, time.Second, 2*time.Second)

	assert.Equal(t, uint(4), cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Delay(0))
	assert.Equal(t, 3*time.Second, cfg.Delay(1))
	assert.Equal(t, 5*time.Second, cfg.Delay(2))
}

func TestExponential_Schedule(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, time.Second, cfg.Delay(0))
	assert.Equal(t, 2*time.Second, cfg.Delay(1))
	assert.Equal(t, 4*time.Second, cfg.Delay(2))
	assert.Equal(t, 30*time.Second, cfg.Delay(10), "capped by MaxDelay")
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	cfg := Incremental(3, time.Millisecond, time.Millisecond)
	calls := 0

	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	cfg := Incremental(3, time.Millisecond, time.Millisecond)
	var retries []uint
	var delays []time.Duration
	cfg.OnRetry = func(n uint, err error, d time.Duration) {
		assert.ErrorIs(t, err, errTransient)
		retries = append(retries, n)
		delays = append(delays, d)
	}
	calls := 0

	err := Do(context.Background(), cfg, func() error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []uint{0, 1, 2}, retries)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}, delays)
}

func TestDo_RetryIfStopsImmediately(t *testing.T) {
	terminal := errors.New("terminal")
	cfg := Incremental(3, time.Millisecond, time.Millisecond)
	cfg.RetryIf = func(err error) bool { return !errors.Is(err, terminal) }
	calls := 0

	err := Do(context.Background(), cfg, func() error {
		calls++
		return terminal
	})

	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Incremental(3, time.Hour, time.Hour)
	calls := 0

	err := Do(ctx, cfg, func() error {
		calls++
		cancel()
		return errTransient
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	cfg := Incremental(2, time.Millisecond, 0)
	calls := 0

	v, err := DoWithResult(context.Background(), cfg, func() (string, error) {
		calls++
		if calls == 1 {
			return "", errTransient
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
