package limiter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries      int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay       time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay        time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffFactor   float64       `json:"backoff_factor" yaml:"backoff_factor"`
	Jitter          bool          `json:"jitter" yaml:"jitter"`
	RetryableErrors []int         `json:"retryable_errors" yaml:"retryable_errors"`
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      2,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		BackoffFactor:   2.0,
		Jitter:          true,
		RetryableErrors: []int{429, 500, 502, 503, 504},
	}
}

// RetryableFunc represents a function that can be retried
type RetryableFunc func(ctx context.Context) (interface{}, error)

// RetryManager manages retry logic
type RetryManager struct {
	config  *RetryConfig
	onRetry func(attempt int, err error)
}

// NewRetryManager creates a new retry manager
func NewRetryManager(config *RetryConfig) *RetryManager {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryManager{config: config}
}

// OnRetry registers a hook invoked before each retry
func (rm *RetryManager) OnRetry(fn func(attempt int, err error)) {
	rm.onRetry = fn
}

// Execute executes a function with retry logic. Only HTTP errors with a
// retryable status are retried; deadlines and cancellations return at once.
func (rm *RetryManager) Execute(ctx context.Context, fn RetryableFunc) (interface{}, error) {
	var lastErr error

	for attempt := 0; attempt <= rm.config.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == rm.config.MaxRetries {
			break
		}
		if !rm.isRetryableError(err) {
			return nil, err
		}
		if rm.onRetry != nil {
			rm.onRetry(attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(rm.calculateDelay(attempt)):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryableError checks if an error is retryable
func (rm *RetryManager) isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		for _, retryableCode := range rm.config.RetryableErrors {
			if httpErr.StatusCode == retryableCode {
				return true
			}
		}
	}
	return false
}

// calculateDelay calculates the delay for the given attempt
func (rm *RetryManager) calculateDelay(attempt int) time.Duration {
	delay := float64(rm.config.BaseDelay) * math.Pow(rm.config.BackoffFactor, float64(attempt))
	if delay > float64(rm.config.MaxDelay) {
		delay = float64(rm.config.MaxDelay)
	}
	if rm.config.Jitter {
		// +/-25%
		jitter := rand.Float64()*0.5 - 0.25
		delay = delay * (1 + jitter)
	}
	return time.Duration(delay)
}

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, message, body string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Body:       body,
	}
}
