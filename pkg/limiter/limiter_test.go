package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/readiness/pkg/registry"
)

func fastRetry() *RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestRetryManagerRetriesHTTPErrors(t *testing.T) {
	cfg := fastRetry()
	cfg.MaxRetries = 3
	rm := NewRetryManager(cfg)

	var hooks []int
	rm.OnRetry(func(attempt int, err error) { hooks = append(hooks, attempt) })

	attempts := 0
	result, err := rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, NewHTTPError(429, "Rate limited", "")
		}
		return "success", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, hooks)
}

func TestRetryManagerDoesNotRetryDeadline(t *testing.T) {
	rm := NewRetryManager(fastRetry())
	attempts := 0
	_, err := rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts)
}

func TestRetryManagerNonRetryable(t *testing.T) {
	rm := NewRetryManager(fastRetry())
	attempts := 0
	_, err := rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, NewHTTPError(400, "Bad request", "")
	})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 400, httpErr.StatusCode)
	assert.Equal(t, 1, attempts)
}

func TestRetryManagerExhausted(t *testing.T) {
	cfg := fastRetry()
	cfg.MaxRetries = 1
	rm := NewRetryManager(cfg)
	_, err := rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, NewHTTPError(503, "Unavailable", "")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestRateLimiterUnlimitedByDefault(t *testing.T) {
	rl := NewRateLimiter()
	mc := registry.ModelConfig{ID: "local"}
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow(mc))
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter()
	mc := registry.ModelConfig{ID: "remote", MaxRPM: 6}
	assert.True(t, rl.Allow(mc))
	assert.False(t, rl.Allow(mc), "burst of one at 6 rpm")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, mc))
}

func TestCircuitBreakerOpensOnConsecutiveErrors(t *testing.T) {
	var transitions []gobreaker.State
	cbm := NewCircuitBreakerManager(DefaultCircuitBreakerConfig(), func(name string, from, to gobreaker.State) {
		transitions = append(transitions, to)
	})
	mc := registry.ModelConfig{ID: "flaky"}

	for i := 0; i < 5; i++ {
		_, err := cbm.Execute(mc, func() (interface{}, error) {
			return nil, errors.New("connection refused")
		})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cbm.State(mc))
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	_, err := cbm.Execute(mc, func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	cbm.Reset(mc.ID)
	assert.Equal(t, gobreaker.StateClosed, cbm.State(mc))
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cbm := NewCircuitBreakerManager(DefaultCircuitBreakerConfig(), nil)
	mc := registry.ModelConfig{ID: "slow"}
	for i := 0; i < 10; i++ {
		_, _ = cbm.Execute(mc, func() (interface{}, error) { return nil, context.Canceled })
	}
	assert.Equal(t, gobreaker.StateClosed, cbm.State(mc))
}

func TestProtectionManagerExecute(t *testing.T) {
	pm := NewProtectionManager(fastRetry(), DefaultCircuitBreakerConfig(), nil, nil)
	mc := registry.ModelConfig{ID: "m", Provider: "ollama"}

	attempts := 0
	res, err := pm.Execute(context.Background(), mc, func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts == 1 {
			return nil, NewHTTPError(503, "loading model", "")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, gobreaker.StateClosed, pm.State(mc))
}
