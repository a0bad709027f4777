package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"
	
	"github.com/rlalpha49/kenmeisync/core"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	JitterEnabled   bool
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Retry executes a function with retry logic
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	
	var lastErr error
	delay := config.InitialDelay
	
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		// Check context
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		
		// Try the function
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		
		// Don't sleep after the last attempt
		if attempt == config.MaxAttempts {
			break
		}
		
		// Calculate next delay with exponential backoff
		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
		
		// Add jitter if enabled to prevent synchronized retries
		// across multiple clients (thundering herd mitigation)
		if config.JitterEnabled {
			jitter := time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
			delay += jitter
		}
		
		// Sleep with context cancellation
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	
	return fmt.Errorf("max retry attempts (%d) exceeded for %v: %w", config.MaxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}

// RetryWithCircuitBreaker combines retry logic with circuit breaker
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, config, func() error {
		if !cb.CanExecute() {
			return core.ErrCircuitBreakerOpen
		}

		err := fn()
		if err != nil {
			cb.RecordFailure()
			return err
		}

		cb.RecordSuccess()
		return nil
	})
}

// RetryExecutor wraps Retry with an injectable logger and optional telemetry,
// so callers that need per-operation logging don't have to thread a logger
// through every call site by hand.
type RetryExecutor struct {
	config           *RetryConfig
	logger           core.Logger
	telemetryEnabled bool
}

// NewRetryExecutor creates a retry executor. A nil config falls back to DefaultRetryConfig.
func NewRetryExecutor(config *RetryConfig) *RetryExecutor {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryExecutor{config: config}
}

// SetLogger injects the logger used to report attempts and exhaustion.
func (r *RetryExecutor) SetLogger(logger core.Logger) {
	r.logger = logger
}

// EnableTelemetry routes subsequent Do calls through RetryWithTelemetry
// instead of the plain logging path, so attempts/backoff/outcome are
// also recorded as metrics.
func (r *RetryExecutor) EnableTelemetry() {
	r.telemetryEnabled = true
}

// Do runs fn under the executor's retry policy, logging each failed attempt
// and, when telemetry is enabled, routing through RetryWithTelemetry so
// attempts/backoff/outcome are recorded as metrics.
func (r *RetryExecutor) Do(ctx context.Context, operation string, fn func() error) error {
	if r.telemetryEnabled {
		return RetryWithTelemetry(ctx, operation, r.config, fn)
	}

	attempt := 0
	err := Retry(ctx, r.config, func() error {
		attempt++
		err := fn()
		if err != nil && r.logger != nil {
			r.logger.Warn("retry attempt failed", map[string]interface{}{
				"operation": operation,
				"attempt":   attempt,
				"error":     err.Error(),
			})
		}
		return err
	})

	if err != nil && r.logger != nil {
		r.logger.Error("retry exhausted", map[string]interface{}{
			"operation": operation,
			"attempts":  attempt,
			"error":     err.Error(),
		})
	}

	return err
}