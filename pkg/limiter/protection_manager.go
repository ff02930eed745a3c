package limiter

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/readiness/pkg/logging"
	"github.com/snow-ghost/readiness/pkg/metrics"
	"github.com/snow-ghost/readiness/pkg/registry"
)

// ProtectionManager integrates rate limiting, retries, and circuit breaker
type ProtectionManager struct {
	rateLimiter    *RateLimiter
	retryConfig    *RetryConfig
	circuitBreaker *CircuitBreakerManager
	logger         *logging.Logger
	metrics        *metrics.PrometheusMetrics
}

// NewProtectionManager creates a new protection manager
func NewProtectionManager(retry *RetryConfig, breaker CircuitBreakerConfig, logger *logging.Logger, m *metrics.PrometheusMetrics) *ProtectionManager {
	pm := &ProtectionManager{
		rateLimiter: NewRateLimiter(),
		retryConfig: retry,
		logger:      logging.OrNop(logger),
		metrics:     metrics.OrDiscard(m),
	}
	if pm.retryConfig == nil {
		pm.retryConfig = DefaultRetryConfig()
	}
	pm.circuitBreaker = NewCircuitBreakerManager(breaker, func(name string, from, to gobreaker.State) {
		pm.logger.LogCircuitBreaker(context.Background(), name, from.String(), to.String())
		pm.metrics.RecordCircuitChange(name, to.String())
	})
	return pm
}

// Execute runs fn behind the model's rate limiter, circuit breaker and retry policy
func (pm *ProtectionManager) Execute(ctx context.Context, model registry.ModelConfig, fn RetryableFunc) (interface{}, error) {
	if pm.circuitBreaker.State(model) == gobreaker.StateOpen {
		return nil, fmt.Errorf("model %s: %w", model.ID, gobreaker.ErrOpenState)
	}

	if err := pm.rateLimiter.Wait(ctx, model); err != nil {
		return nil, err
	}

	retry := NewRetryManager(pm.retryConfig)
	retry.OnRetry(func(attempt int, err error) {
		pm.logger.LogRetry(ctx, model.Provider, model.ID, err.Error(), attempt)
		pm.metrics.RecordRetry(model.ID, "http")
	})

	return pm.circuitBreaker.Execute(model, func() (interface{}, error) {
		return retry.Execute(ctx, fn)
	})
}

// State returns the circuit state of a model
func (pm *ProtectionManager) State(model registry.ModelConfig) gobreaker.State {
	return pm.circuitBreaker.State(model)
}

// ResetModel resets all protection mechanisms for a specific model
func (pm *ProtectionManager) ResetModel(modelID string) {
	pm.rateLimiter.Reset(modelID)
	pm.circuitBreaker.Reset(modelID)
}
