package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/retrieverd/internal/vectorstore"

// Metrics holds vector store metrics.
type Metrics struct {
	meter          metric.Meter
	logger         *zap.Logger
	upsertDuration metric.Float64Histogram
	searchDuration metric.Float64Histogram
	rebuilds       metric.Int64Counter
	errors         metric.Int64Counter
	rowCount       metric.Int64Gauge
}

// NewMetrics creates a Metrics instance for the vector store.
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

	m.upsertDuration, err = m.meter.Float64Histogram(
		"retrieverd.vectorstore.upsert_duration_seconds",
		metric.WithDescription("Duration of upsert operations, including embedding and persistence"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn("failed to create upsert duration histogram", zap.Error(err))
	}

	m.searchDuration, err = m.meter.Float64Histogram(
		"retrieverd.vectorstore.search_duration_seconds",
		metric.WithDescription("Duration of search operations, including query embedding"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		m.logger.Warn("failed to create search duration histogram", zap.Error(err))
	}

	m.rebuilds, err = m.meter.Int64Counter(
		"retrieverd.vectorstore.rebuilds_total",
		metric.WithDescription("Full corpus rebuilds triggered by id collisions or document deletes"),
		metric.WithUnit("{rebuild}"),
	)
	if err != nil {
		m.logger.Warn("failed to create rebuild counter", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"retrieverd.vectorstore.errors_total",
		metric.WithDescription("Vector store operation errors by operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.rowCount, err = m.meter.Int64Gauge(
		"retrieverd.vectorstore.rows",
		metric.WithDescription("Index rows per tenant after the last committed mutation"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		m.logger.Warn("failed to create row count gauge", zap.Error(err))
	}
}

// RecordUpsert records upsert metrics.
func (m *Metrics) RecordUpsert(ctx context.Context, duration time.Duration, docs int, rebuild bool, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", "upsert"))
	if m.upsertDuration != nil {
		m.upsertDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if rebuild && m.rebuilds != nil {
		m.rebuilds.Add(ctx, 1)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// RecordSearch records search metrics.
func (m *Metrics) RecordSearch(ctx context.Context, duration time.Duration, results int, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", "search"))
	if m.searchDuration != nil {
		m.searchDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// SetRowCount records the post-mutation row count for a tenant.
func (m *Metrics) SetRowCount(ctx context.Context, tenantID string, rows int) {
	if m.rowCount != nil {
		m.rowCount.Record(ctx, int64(rows), metric.WithAttributes(attribute.String("tenant", tenantID)))
	}
}
