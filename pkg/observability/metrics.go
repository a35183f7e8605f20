package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Metrics holds the instruments recorded by the tutoring core.
type Metrics struct {
	llmDuration     metric.Float64Histogram
	llmCalls        metric.Int64Counter
	llmErrors       metric.Int64Counter
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	retrievalCalls  metric.Int64Counter
	retrievalErrors metric.Int64Counter
	turnsTotal      metric.Int64Counter
	hintsTotal      metric.Int64Counter
}

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// SetGlobalMetrics installs the process-wide metrics recorder.
func SetGlobalMetrics(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide recorder, or nil when metrics
// were never initialized. Callers must nil-check.
func GetGlobalMetrics() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// InitMetrics creates the meter provider backed by a Prometheus exporter
// reader and registers the core's instruments. The returned Metrics is also
// installed globally.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("llm-ta")

	m := &Metrics{}

	if m.llmDuration, err = meter.Float64Histogram(
		"tutor_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.llmCalls, err = meter.Int64Counter(
		"tutor_llm_calls_total",
		metric.WithDescription("Total LLM calls"),
	); err != nil {
		return nil, err
	}
	if m.llmErrors, err = meter.Int64Counter(
		"tutor_llm_errors_total",
		metric.WithDescription("Total LLM call failures"),
	); err != nil {
		return nil, err
	}
	if m.llmInputTokens, err = meter.Int64Counter(
		"tutor_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the LLM"),
	); err != nil {
		return nil, err
	}
	if m.llmOutputTokens, err = meter.Int64Counter(
		"tutor_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from the LLM"),
	); err != nil {
		return nil, err
	}
	if m.retrievalCalls, err = meter.Int64Counter(
		"tutor_retrieval_calls_total",
		metric.WithDescription("Total retrieval calls"),
	); err != nil {
		return nil, err
	}
	if m.retrievalErrors, err = meter.Int64Counter(
		"tutor_retrieval_errors_total",
		metric.WithDescription("Total retrieval failures"),
	); err != nil {
		return nil, err
	}
	if m.turnsTotal, err = meter.Int64Counter(
		"tutor_turns_total",
		metric.WithDescription("Total dialog turns processed"),
	); err != nil {
		return nil, err
	}
	if m.hintsTotal, err = meter.Int64Counter(
		"tutor_hints_total",
		metric.WithDescription("Total hints issued"),
	); err != nil {
		return nil, err
	}

	SetGlobalMetrics(m)
	return m, nil
}

// RecordLLMCall records one LLM call outcome. Safe on a nil receiver.
func (m *Metrics) RecordLLMCall(ctx context.Context, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	m.llmCalls.Add(ctx, 1)
	m.llmDuration.Record(ctx, duration.Seconds())
	if err != nil {
		m.llmErrors.Add(ctx, 1)
		return
	}
	m.llmInputTokens.Add(ctx, int64(inputTokens))
	m.llmOutputTokens.Add(ctx, int64(outputTokens))
}

// RecordRetrieval records one retrieval call outcome. Safe on a nil receiver.
func (m *Metrics) RecordRetrieval(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.retrievalCalls.Add(ctx, 1)
	if err != nil {
		m.retrievalErrors.Add(ctx, 1)
	}
}

// RecordTurn records one completed dialog turn. Safe on a nil receiver.
func (m *Metrics) RecordTurn(ctx context.Context) {
	if m == nil {
		return
	}
	m.turnsTotal.Add(ctx, 1)
}

// RecordHint records one issued hint. Safe on a nil receiver.
func (m *Metrics) RecordHint(ctx context.Context) {
	if m == nil {
		return
	}
	m.hintsTotal.Add(ctx, 1)
}
