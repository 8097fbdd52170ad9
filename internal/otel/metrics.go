// Package otel provides OpenTelemetry metrics integration for strest.
package otel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MetricsConfig holds configuration for the OpenTelemetry metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// OTLPEndpoint is the endpoint for OTLP exporters (e.g., "localhost:4317").
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool

	// Attributes are additional attributes to add to all metrics.
	Attributes map[string]string
}

// DefaultMetricsConfig returns a default configuration with metrics disabled.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  "strest",
		ExporterType: ExporterNone,
	}
}

// Metrics wraps OpenTelemetry metrics functionality with strest-specific helpers,
// mirroring the run-local metrics pipeline (internal/metrics) for consumers that
// scrape OTLP/stdout instead of the local SummaryFrame/sinks.
type Metrics struct {
	config           *MetricsConfig
	meterProvider    *sdkmetric.MeterProvider
	meter            metric.Meter
	shutdown         func(context.Context) error
	mu               sync.RWMutex
	currentStage     atomic.Int64
	stageCallback    metric.Int64ObservableGauge
	stageCallbackReg metric.Registration

	// Metric instruments
	attemptLatency    metric.Float64Histogram
	errorCounter      metric.Int64Counter
	activeWorkers     metric.Int64UpDownCounter
	retryCounter      metric.Int64Counter
	backpressureDrops metric.Int64Counter
}

// globalMetrics is the singleton metrics instance.
var (
	globalMetrics   *Metrics
	globalMetricsMu sync.RWMutex
)

// NewMetrics creates a new Metrics instance with the given configuration.
func NewMetrics(ctx context.Context, cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	m := &Metrics{
		config: cfg,
	}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		// Use no-op meter when disabled
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	// Create exporter based on type
	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	// Create resource with service information
	res, err := m.createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	// Create meter provider
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	m.meterProvider = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shutdown = mp.Shutdown

	// Register metric instruments
	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return m, nil
}

// createExporter creates the appropriate metrics exporter based on configuration.
func (m *Metrics) createExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

// createResource creates the OpenTelemetry resource with service information.
func (m *Metrics) createResource(cfg *MetricsConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	// Add custom attributes
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attrs...),
	)
}

// registerInstruments creates and registers all metric instruments.
func (m *Metrics) registerInstruments() error {
	var err error

	// Attempt latency histogram (in milliseconds), mirroring HistAll.
	m.attemptLatency, err = m.meter.Float64Histogram(
		"strest.attempt.latency",
		metric.WithDescription("Latency of load-generator request attempts"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create attempt latency histogram: %w", err)
	}

	// Error counter with outcome-class attribute
	m.errorCounter, err = m.meter.Int64Counter(
		"strest.errors",
		metric.WithDescription("Count of non-Ok request outcomes by class"),
	)
	if err != nil {
		return fmt.Errorf("failed to create error counter: %w", err)
	}

	// Active workers gauge (up/down counter)
	m.activeWorkers, err = m.meter.Int64UpDownCounter(
		"strest.workers.active",
		metric.WithDescription("Number of currently running load-generator workers"),
	)
	if err != nil {
		return fmt.Errorf("failed to create active workers counter: %w", err)
	}

	// Retry counter
	m.retryCounter, err = m.meter.Int64Counter(
		"strest.retries",
		metric.WithDescription("Count of request attempt retries"),
	)
	if err != nil {
		return fmt.Errorf("failed to create retry counter: %w", err)
	}

	// Backpressure drop counter, matching the engine's outcome-channel drop
	// path.
	m.backpressureDrops, err = m.meter.Int64Counter(
		"strest.backpressure_drops",
		metric.WithDescription("Count of outcomes dropped from the aggregate channel under backpressure"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backpressure drop counter: %w", err)
	}

	// Current load-profile stage observable gauge
	m.stageCallback, err = m.meter.Int64ObservableGauge(
		"strest.stage",
		metric.WithDescription("Current load profile stage index, -1 before the first stage"),
	)
	if err != nil {
		return fmt.Errorf("failed to create stage gauge: %w", err)
	}

	// Register callback for stage gauge
	m.stageCallbackReg, err = m.meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(m.stageCallback, m.currentStage.Load())
			return nil
		},
		m.stageCallback,
	)
	if err != nil {
		return fmt.Errorf("failed to register stage gauge callback: %w", err)
	}

	return nil
}

// RecordAttemptLatency records the latency of one request attempt, mirroring
// what the run-local aggregator records into HistAll/HistOk.
func (m *Metrics) RecordAttemptLatency(ctx context.Context, stepIndex int, latencyMs float64, outcomeClass string) {
	if m.attemptLatency == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int("strest.step_index", stepIndex),
		attribute.String("strest.outcome_class", outcomeClass),
	}

	m.attemptLatency.Record(ctx, latencyMs, metric.WithAttributes(attrs...))
}

// RecordError records a non-Ok outcome with its class.
func (m *Metrics) RecordError(ctx context.Context, outcomeClass string) {
	if m.errorCounter == nil {
		return
	}

	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strest.outcome_class", outcomeClass),
	))
}

// IncrementWorkers increments the active workers counter.
func (m *Metrics) IncrementWorkers(ctx context.Context) {
	if m.activeWorkers == nil {
		return
	}

	m.activeWorkers.Add(ctx, 1)
}

// DecrementWorkers decrements the active workers counter.
func (m *Metrics) DecrementWorkers(ctx context.Context) {
	if m.activeWorkers == nil {
		return
	}

	m.activeWorkers.Add(ctx, -1)
}

// RecordRetry increments the retry counter.
func (m *Metrics) RecordRetry(ctx context.Context) {
	if m.retryCounter == nil {
		return
	}

	m.retryCounter.Add(ctx, 1)
}

// RecordBackpressureDrop increments the dropped-outcome counter.
func (m *Metrics) RecordBackpressureDrop(ctx context.Context) {
	if m.backpressureDrops == nil {
		return
	}

	m.backpressureDrops.Add(ctx, 1)
}

// SetCurrentStage sets the current load profile stage index for the
// observable gauge. This is thread-safe and will be read by the gauge
// callback.
func (m *Metrics) SetCurrentStage(stageIndex int) {
	m.currentStage.Store(int64(stageIndex))
}

// Shutdown gracefully shuts down the metrics provider, flushing any pending metrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Unregister callback if registered
	if m.stageCallbackReg != nil {
		if err := m.stageCallbackReg.Unregister(); err != nil {
			return fmt.Errorf("failed to unregister stage callback: %w", err)
		}
	}

	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled returns whether metrics collection is enabled.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// MeterProvider returns the underlying meter provider.
func (m *Metrics) MeterProvider() *sdkmetric.MeterProvider {
	return m.meterProvider
}

// SetGlobalMetrics sets the global metrics instance.
func SetGlobalMetrics(m *Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	globalMetrics = m

	if m != nil && m.Enabled() {
		otel.SetMeterProvider(m.meterProvider)
	}
}

// GetGlobalMetrics returns the global metrics instance.
// Returns a no-op metrics instance if none has been set.
func GetGlobalMetrics() *Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()

	if globalMetrics == nil {
		// Return a no-op metrics instance
		cfg := DefaultMetricsConfig()
		m := &Metrics{
			config:        cfg,
			meterProvider: sdkmetric.NewMeterProvider(),
			shutdown:      func(context.Context) error { return nil },
		}
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		return m
	}

	return globalMetrics
}

// NoopMetrics returns a metrics instance that does nothing (for testing or when disabled).
func NoopMetrics() *Metrics {
	cfg := DefaultMetricsConfig()
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      func(context.Context) error { return nil },
	}
}
