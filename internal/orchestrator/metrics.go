package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/retrieverd/internal/orchestrator"

// Metrics holds query pipeline metrics.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	duration metric.Float64Histogram
	queries  metric.Int64Counter
	errors   metric.Int64Counter
}

// NewMetrics creates a Metrics instance for the query pipeline.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"retrieverd.query.duration_seconds",
		metric.WithDescription("End-to-end query latency in seconds, labeled by strategy"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.queries, err = m.meter.Int64Counter(
		"retrieverd.query.total",
		metric.WithDescription("Total queries by strategy (cache or rag)"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		m.logger.Warn("failed to create queries counter", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"retrieverd.query.errors_total",
		metric.WithDescription("Total failed queries"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordQuery records one completed query.
func (m *Metrics) RecordQuery(ctx context.Context, strategy string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("strategy", strategy)}

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if err != nil {
		if m.errors != nil {
			m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		return
	}
	if m.queries != nil {
		m.queries.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
