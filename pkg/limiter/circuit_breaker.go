package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/readiness/pkg/registry"
)

// StateChangeFunc observes circuit breaker transitions
type StateChangeFunc func(name string, from, to gobreaker.State)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Open after five consecutive transport errors; wrong answers never count
			return counts.ConsecutiveFailures >= 5
		},
	}
}

// CircuitBreakerManager manages circuit breakers for models
type CircuitBreakerManager struct {
	breakers map[string]*gobreaker.CircuitBreaker
	config   CircuitBreakerConfig
	onChange StateChangeFunc
	mu       sync.Mutex
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager(config CircuitBreakerConfig, onChange StateChangeFunc) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   config,
		onChange: onChange,
	}
}

// GetBreaker returns or creates a circuit breaker for a model
func (cbm *CircuitBreakerManager) GetBreaker(config registry.ModelConfig) *gobreaker.CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if breaker, exists := cbm.breakers[config.ID]; exists {
		return breaker
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("model-%s", config.ID),
		MaxRequests: cbm.config.MaxRequests,
		Interval:    cbm.config.Interval,
		Timeout:     cbm.config.Timeout,
		ReadyToTrip: cbm.config.ReadyToTrip,
		IsSuccessful: func(err error) bool {
			// abandoned calls are not the model's fault
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if cbm.onChange != nil {
				cbm.onChange(name, from, to)
			}
		},
	})
	cbm.breakers[config.ID] = breaker
	return breaker
}

// Execute executes a function through the circuit breaker
func (cbm *CircuitBreakerManager) Execute(config registry.ModelConfig, fn func() (interface{}, error)) (interface{}, error) {
	return cbm.GetBreaker(config).Execute(fn)
}

// State returns the current state of a model's circuit breaker
func (cbm *CircuitBreakerManager) State(config registry.ModelConfig) gobreaker.State {
	return cbm.GetBreaker(config).State()
}

// Reset resets the circuit breaker for a model
func (cbm *CircuitBreakerManager) Reset(modelID string) {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	delete(cbm.breakers, modelID)
}
