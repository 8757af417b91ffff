package otel

import (
	"context"
	"fmt"

	otel "go.opentelemetry.io/otel"
	attribute "go.opentelemetry.io/otel/attribute"
	prometheus "go.opentelemetry.io/otel/exporters/prometheus"
	metric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	resource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	zap "go.uber.org/zap"

	config "github.com/agentruntime/a2a/server/config"
)

// OpenTelemetry defines the operations for telemetry
type OpenTelemetry interface {
	// RecordRequestCount counts JSON-RPC requests by method
	RecordRequestCount(ctx context.Context, method string)

	// RecordRequestDuration records end-to-end request processing time
	RecordRequestDuration(ctx context.Context, method, requestPath string, durationMs float64)

	// RecordResponseStatus counts responses by HTTP status and JSON-RPC code
	RecordResponseStatus(ctx context.Context, method, requestPath string, statusCode int)

	// RecordTaskCompleted counts task completions by outcome
	RecordTaskCompleted(ctx context.Context, taskID string, success bool)

	// RecordPushNotification counts webhook delivery attempts by outcome
	RecordPushNotification(ctx context.Context, taskID string, success bool)

	// Shutdown the telemetry system
	ShutDown(ctx context.Context) error
}

type OpenTelemetryImpl struct {
	logger        *zap.Logger
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	// Metrics
	requestCounter           metric.Int64Counter
	responseStatusCounter    metric.Int64Counter
	requestDurationHistogram metric.Float64Histogram
	taskCompletedCounter     metric.Int64Counter
	pushNotificationCounter  metric.Int64Counter
}

// NewOpenTelemetry creates a new OpenTelemetry implementation with proper dependency injection
func NewOpenTelemetry(cfg *config.Config, logger *zap.Logger) (OpenTelemetry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	o := &OpenTelemetryImpl{
		logger: logger,
	}

	if err := o.initialize(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize opentelemetry: %w", err)
	}

	return o, nil
}

func (o *OpenTelemetryImpl) initialize(cfg *config.Config) error {
	o.logger.Info("initializing opentelemetry",
		zap.String("agent_name", cfg.AgentName),
		zap.String("version", cfg.AgentVersion))

	exporter, err := prometheus.New()
	if err != nil {
		o.logger.Error("failed to create prometheus exporter", zap.Error(err))
		return err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.AgentName),
		semconv.ServiceVersion(cfg.AgentVersion),
	)

	histogramBoundaries := []float64{1, 5, 10, 25, 50, 75, 100, 250, 500, 750, 1000, 2500, 5000, 7500, 10000}

	latencyView := sdkmetric.NewView(
		sdkmetric.Instrument{
			Kind: sdkmetric.InstrumentKindHistogram,
		},
		sdkmetric.Stream{
			Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: histogramBoundaries,
			},
		},
	)

	o.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithView(latencyView),
	)
	otel.SetMeterProvider(o.meterProvider)

	o.meter = o.meterProvider.Meter(cfg.AgentName)

	if err := o.initializeMetrics(); err != nil {
		o.logger.Error("failed to initialize metrics", zap.Error(err))
		return err
	}

	o.logger.Info("opentelemetry initialized successfully")
	return nil
}

func (o *OpenTelemetryImpl) RecordRequestCount(ctx context.Context, method string) {
	o.requestCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
	))
}

func (o *OpenTelemetryImpl) RecordRequestDuration(ctx context.Context, method, requestPath string, durationMs float64) {
	o.requestDurationHistogram.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("request_path", requestPath),
	))
}

func (o *OpenTelemetryImpl) RecordResponseStatus(ctx context.Context, method, requestPath string, statusCode int) {
	o.responseStatusCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("request_path", requestPath),
		attribute.Int("status_code", statusCode),
	))
}

func (o *OpenTelemetryImpl) RecordTaskCompleted(ctx context.Context, taskID string, success bool) {
	o.taskCompletedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_id", taskID),
		attribute.Bool("success", success),
	))
}

func (o *OpenTelemetryImpl) RecordPushNotification(ctx context.Context, taskID string, success bool) {
	o.pushNotificationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_id", taskID),
		attribute.Bool("success", success),
	))
}

func (o *OpenTelemetryImpl) ShutDown(ctx context.Context) error {
	return o.meterProvider.Shutdown(ctx)
}

// initializeMetrics initializes all the OpenTelemetry metrics
func (o *OpenTelemetryImpl) initializeMetrics() error {
	var err error

	o.requestCounter, err = o.meter.Int64Counter(
		"a2a.requests.total",
		metric.WithDescription("Total number of A2A requests processed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create request counter: %w", err)
	}

	o.responseStatusCounter, err = o.meter.Int64Counter(
		"a2a.response_status.total",
		metric.WithDescription("Total number of responses by status code"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create response status counter: %w", err)
	}

	o.requestDurationHistogram, err = o.meter.Float64Histogram(
		"a2a.request_duration",
		metric.WithDescription("Duration of A2A request processing"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	o.taskCompletedCounter, err = o.meter.Int64Counter(
		"a2a.tasks_completed.total",
		metric.WithDescription("Total number of tasks reaching a terminal state"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create task completed counter: %w", err)
	}

	o.pushNotificationCounter, err = o.meter.Int64Counter(
		"a2a.push_notifications.total",
		metric.WithDescription("Total number of webhook delivery attempts"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create push notification counter: %w", err)
	}

	o.logger.Debug("all opentelemetry metrics initialized successfully")
	return nil
}
