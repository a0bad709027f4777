package telemetry

import (
	"context"

	"github.com/rlalpha49/kenmeisync/core"
)

// FrameworkMetricsRegistry implements core.MetricsRegistry, letting
// pipeline/sync emit metrics without importing telemetry directly
// (core.SetMetricsRegistry is the seam that avoids the import cycle).
type FrameworkMetricsRegistry struct {
	logger *TelemetryLogger
}

// NewFrameworkMetricsRegistry creates a new framework metrics registry.
func NewFrameworkMetricsRegistry(logger *TelemetryLogger) *FrameworkMetricsRegistry {
	return &FrameworkMetricsRegistry{logger: logger}
}

// Counter implements core.MetricsRegistry.
func (f *FrameworkMetricsRegistry) Counter(name string, labels ...string) {
	Emit(name, 1.0, labels...)
}

// EmitWithContext implements core.MetricsRegistry.
func (f *FrameworkMetricsRegistry) EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {
	EmitWithContext(ctx, name, value, labels...)
}

// GetBaggage implements core.MetricsRegistry.
func (f *FrameworkMetricsRegistry) GetBaggage(ctx context.Context) map[string]string {
	return GetBaggage(ctx)
}

// Gauge implements core.MetricsRegistry.
func (f *FrameworkMetricsRegistry) Gauge(name string, value float64, labels ...string) {
	Gauge(name, value, labels...)
}

// Histogram implements core.MetricsRegistry.
func (f *FrameworkMetricsRegistry) Histogram(name string, value float64, labels ...string) {
	Histogram(name, value, labels...)
}

// EnableFrameworkIntegration registers the telemetry module with core so
// pipeline/sync's core.GetGlobalMetricsRegistry() calls reach it. Must be
// called after Initialize.
func EnableFrameworkIntegration(logger *TelemetryLogger) {
	registry := NewFrameworkMetricsRegistry(logger)
	core.SetMetricsRegistry(registry)

	if logger != nil {
		logger.Info("framework integration enabled", map[string]interface{}{
			"integration": "core.MetricsRegistry",
		})
	}
}
