// Package telemetry provides OpenTelemetry instrumentation for the refresh
// engine.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RefreshMetricsMeterName is the name used for the refresh metrics meter
const RefreshMetricsMeterName = "github.com/roomwatch/roomwatch/refresh"

// RefreshMetrics holds the OpenTelemetry instruments for refresh cycle
// metrics.
type RefreshMetrics struct {
	cycleDuration metric.Float64Histogram
	roomsLive     metric.Int64Gauge
	fetchFailures metric.Int64Counter
}

// NewRefreshMetrics creates a new RefreshMetrics instance with the given
// meter provider. If provider is nil, it returns nil (no-op metrics).
func NewRefreshMetrics(provider metric.MeterProvider) (*RefreshMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RefreshMetricsMeterName)

	cycleDuration, err := meter.Float64Histogram(
		"roomwatch_cycle_duration_seconds",
		metric.WithDescription("Duration of refresh cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	roomsLive, err := meter.Int64Gauge(
		"roomwatch_rooms_live",
		metric.WithDescription("Number of rooms currently observed live"),
		metric.WithUnit("{room}"),
	)
	if err != nil {
		return nil, err
	}

	fetchFailures, err := meter.Int64Counter(
		"roomwatch_fetch_failures_total",
		metric.WithDescription("Number of failed room fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	return &RefreshMetrics{
		cycleDuration: cycleDuration,
		roomsLive:     roomsLive,
		fetchFailures: fetchFailures,
	}, nil
}

// RecordCycleDuration records the duration of one refresh cycle.
func (m *RefreshMetrics) RecordCycleDuration(ctx context.Context, duration time.Duration, auto bool) {
	if m == nil || m.cycleDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("auto", auto),
	}
	m.cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRoomsLive records the current number of live rooms.
func (m *RefreshMetrics) RecordRoomsLive(ctx context.Context, count int64) {
	if m == nil || m.roomsLive == nil {
		return
	}
	m.roomsLive.Record(ctx, count)
}

// RecordFetchFailure counts one failed room fetch.
func (m *RefreshMetrics) RecordFetchFailure(ctx context.Context, platform string) {
	if m == nil || m.fetchFailures == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("platform", platform),
	}
	m.fetchFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}
