package resilience

import (
	"context"
	"time"

	"github.com/rlalpha49/kenmeisync/core"
	"github.com/rlalpha49/kenmeisync/telemetry"
)

// ResilienceDependencies holds optional dependencies plus the runtime
// overrides pulled from core.CircuitBreakerConfig (spec.md §4.A's
// circuit breaker knobs), so the pipeline package can build a breaker
// through a single entry point instead of poking at DefaultConfig itself.
type ResilienceDependencies struct {
	Logger    core.Logger
	Telemetry core.Telemetry

	VolumeThreshold  int
	SleepWindow      time.Duration
	HalfOpenRequests int
}

// Helper function to detect global telemetry availability
func globalTelemetryAvailable() bool {
	// Check if telemetry module has been initialized globally
	// This follows the same pattern as core module's global registry
	return telemetry.GetRegistry() != nil
}

// CreateCircuitBreaker creates a circuit breaker with proper dependency injection
func CreateCircuitBreaker(name string, deps ResilienceDependencies) (*CircuitBreaker, error) {
	config := DefaultConfig()
	config.Name = name

	if deps.VolumeThreshold > 0 {
		config.VolumeThreshold = deps.VolumeThreshold
	}
	if deps.SleepWindow > 0 {
		config.SleepWindow = deps.SleepWindow
	}
	if deps.HalfOpenRequests > 0 {
		config.HalfOpenRequests = deps.HalfOpenRequests
	}

	// Ensure logger is available
	if deps.Logger != nil {
		config.Logger = deps.Logger
	} else {
		// Create default production logger
		config.Logger = core.NewProductionLogger(
			core.LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			core.DevelopmentConfig{},
			"circuit-breaker",
		)
	}

	// Auto-detect and enable telemetry if available, preferring the
	// richer OTel instrument path over the simple global-function one.
	if deps.Telemetry != nil {
		config.Metrics = NewOTelMetricsCollector(context.Background())
		config.Logger.Info("Telemetry integration enabled for circuit breaker", map[string]interface{}{
			"operation": "telemetry_integration",
			"name":      name,
			"component": "circuit_breaker",
		})
	} else if globalTelemetryAvailable() {
		config.Metrics = NewOTelMetricsCollector(context.Background())
		config.Logger.Info("Global telemetry detected and enabled", map[string]interface{}{
			"operation": "telemetry_auto_detection",
			"name":      name,
			"component": "circuit_breaker",
		})
	}

	config.Logger.Info("Creating circuit breaker", map[string]interface{}{
		"operation":        "circuit_breaker_creation",
		"name":             name,
		"error_threshold":  config.ErrorThreshold,
		"volume_threshold": config.VolumeThreshold,
	})

	return NewCircuitBreaker(config)
}

