package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long collector sends and HTTP requests take
// - Traffic: Record/request throughput
// - Errors: Rejections and unreachable attempts
// - Saturation: Queue depth and worker pool occupancy
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Delivery metrics (Latency, Traffic, Errors, Saturation)
	SendDuration      metric.Float64Histogram
	RecordsSubmitted  metric.Int64Counter
	RecordsSent       metric.Int64Counter
	RecordsBacklogged metric.Int64Counter
	QueueDepth        metric.Int64Gauge
	WorkersActive     metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("telemetry-relay")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Delivery metrics
	m.SendDuration, err = meter.Float64Histogram(
		"send_duration_seconds",
		metric.WithDescription("Collector send latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RecordsSubmitted, err = meter.Int64Counter(
		"records_submitted_total",
		metric.WithDescription("Total records accepted for delivery"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RecordsSent, err = meter.Int64Counter(
		"records_sent_total",
		metric.WithDescription("Total send attempts by outcome (delivered, rejected, unreachable)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RecordsBacklogged, err = meter.Int64Counter(
		"records_backlogged_total",
		metric.WithDescription("Total records persisted to the backlog at shutdown"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.QueueDepth, err = meter.Int64Gauge(
		"queue_depth",
		metric.WithDescription("Current number of records waiting in the delivery queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WorkersActive, err = meter.Int64Gauge(
		"workers_active",
		metric.WithDescription("Current number of delivery workers (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordSubmitted records one record accepted for delivery.
func (m *Metrics) RecordSubmitted(ctx context.Context) {
	m.RecordsSubmitted.Add(ctx, 1)
}

// RecordSend records one send attempt with its outcome and duration.
func (m *Metrics) RecordSend(ctx context.Context, outcome string, durationSeconds float64) {
	attrs := metric.WithAttributes(outcomeAttr(outcome))
	m.SendDuration.Record(ctx, durationSeconds, attrs)
	m.RecordsSent.Add(ctx, 1, attrs)
}

// RecordBacklogged records records persisted to the backlog.
func (m *Metrics) RecordBacklogged(ctx context.Context, count int) {
	m.RecordsBacklogged.Add(ctx, int64(count))
}

// RecordQueueDepth records the current delivery queue depth.
func (m *Metrics) RecordQueueDepth(ctx context.Context, depth int64) {
	m.QueueDepth.Record(ctx, depth)
}

// RecordActiveWorkers records the current worker count.
func (m *Metrics) RecordActiveWorkers(ctx context.Context, count int64) {
	m.WorkersActive.Record(ctx, count)
}
