package observability

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/snow-ghost/readiness/pkg/logging"
	"github.com/snow-ghost/readiness/pkg/metrics"
	"github.com/snow-ghost/readiness/pkg/tracing"
)

// Manager manages all observability components
type Manager struct {
	registry *prometheus.Registry
	metrics  *metrics.PrometheusMetrics
	tracer   *tracing.Tracer
	logger   *logging.Logger
}

// Config holds observability configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	JaegerEndpoint string
	LogLevel       string
	LogFormat      string
}

// NewManager creates a new observability manager
func NewManager(config Config) (*Manager, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tracer, err := tracing.NewTracer(tracing.Config{
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		JaegerEndpoint: config.JaegerEndpoint,
		Environment:    config.Environment,
	})
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:     config.LogLevel,
		Format:    config.LogFormat,
		Output:    "stderr",
		AddCaller: true,
	})
	if err != nil {
		return nil, err
	}

	return &Manager{
		registry: registry,
		metrics:  metrics.NewPrometheusMetrics(registry),
		tracer:   tracer,
		logger:   logger,
	}, nil
}

// NewNop returns a manager with discarding components
func NewNop() *Manager {
	registry := prometheus.NewRegistry()
	return &Manager{
		registry: registry,
		metrics:  metrics.NewPrometheusMetrics(registry),
		tracer:   tracing.NewNop(),
		logger:   logging.NewNop(),
	}
}

// Registry returns the prometheus registry backing the metrics
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// GetMetrics returns the metrics instance
func (m *Manager) GetMetrics() *metrics.PrometheusMetrics {
	return m.metrics
}

// GetTracer returns the tracer instance
func (m *Manager) GetTracer() *tracing.Tracer {
	return m.tracer
}

// GetLogger returns the logger instance
func (m *Manager) GetLogger() *logging.Logger {
	return m.logger
}

// Shutdown shuts down all observability components
func (m *Manager) Shutdown(ctx context.Context) error {
	return errors.Join(m.tracer.Shutdown(ctx), m.logger.Sync())
}
