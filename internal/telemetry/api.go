package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"flipit-overrides-api/internal/models"
	"flipit-overrides-api/internal/overrides"
)

// MeterName is the instrumentation scope of the service
const MeterName = "flipit-overrides-api"

// OverridesApiTelemetry records HTTP and override workflow metrics. It also
// observes schema fetches and saves for the override controllers.
type OverridesApiTelemetry struct {
	meter metric.Meter

	requestCounter    metric.Int64Counter
	errorCounter      metric.Int64Counter
	durationHistogram metric.Float64Histogram

	schemaFetchCounter   metric.Int64Counter
	staleResponseCounter metric.Int64Counter
	saveCounter          metric.Int64Counter
	activeSessions       metric.Int64ObservableGauge
}

// ApiMetrics contains the telemetry data for a request
type ApiMetrics struct {
	Method       string
	Endpoint     string
	StatusCode   int
	Duration     time.Duration
	ClientIPType string
}

// NewOverridesApiTelemetry creates a new instance of OverridesApiTelemetry
func NewOverridesApiTelemetry() *OverridesApiTelemetry {
	return &OverridesApiTelemetry{}
}

// InitializeTelemetry sets up the instruments on the global meter provider
func (t *OverridesApiTelemetry) InitializeTelemetry() error {
	return t.InitializeWithMeter(otel.Meter(MeterName))
}

// InitializeWithMeter sets up the instruments on the given meter
func (t *OverridesApiTelemetry) InitializeWithMeter(meter metric.Meter) error {
	slog.Info("Initializing overrides API telemetry")
	t.meter = meter

	var err error
	if t.requestCounter, err = meter.Int64Counter(
		"overrides_api_requests_total",
		metric.WithDescription("Total number of API requests"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create request counter: %w", err)
	}

	if t.errorCounter, err = meter.Int64Counter(
		"overrides_api_errors_total",
		metric.WithDescription("Total number of API requests answered with an error status"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create error counter: %w", err)
	}

	if t.durationHistogram, err = meter.Float64Histogram(
		"overrides_api_request_duration_seconds",
		metric.WithDescription("Duration of API requests"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create duration histogram: %w", err)
	}

	if t.schemaFetchCounter, err = meter.Int64Counter(
		"overrides_schema_fetches_total",
		metric.WithDescription("Attribute schema lookups by platform and outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create schema fetch counter: %w", err)
	}

	if t.staleResponseCounter, err = meter.Int64Counter(
		"overrides_stale_responses_discarded_total",
		metric.WithDescription("Schema responses dropped because a newer edit superseded them"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create stale response counter: %w", err)
	}

	if t.saveCounter, err = meter.Int64Counter(
		"overrides_saves_total",
		metric.WithDescription("Override saves by outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create save counter: %w", err)
	}

	slog.Info("Overrides API telemetry initialized successfully")
	return nil
}

// ObserveActiveSessions registers a gauge reporting the live session count
func (t *OverridesApiTelemetry) ObserveActiveSessions(count func() int) error {
	if t.meter == nil {
		return fmt.Errorf("telemetry not initialized")
	}

	var err error
	t.activeSessions, err = t.meter.Int64ObservableGauge(
		"overrides_active_sessions",
		metric.WithDescription("Listing edit sessions held in memory"),
		metric.WithUnit("1"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(count()))
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create active sessions gauge: %w", err)
	}
	return nil
}

// RegisterRequest records one API request with its duration
func (t *OverridesApiTelemetry) RegisterRequest(ctx context.Context, m ApiMetrics) {
	if t.requestCounter == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", m.Method),
		attribute.String("endpoint", m.Endpoint),
		attribute.Int("status_code", m.StatusCode),
		attribute.String("client_ip_type", m.ClientIPType),
	)

	t.requestCounter.Add(ctx, 1, attrs)
	if m.StatusCode >= 400 {
		t.errorCounter.Add(ctx, 1, attrs)
	}
	t.durationHistogram.Record(ctx, m.Duration.Seconds(), attrs)

	slog.Debug("Recorded API request",
		"method", m.Method,
		"endpoint", m.Endpoint,
		"status_code", m.StatusCode,
		"duration_ms", m.Duration.Milliseconds(),
	)
}

// FetchCompleted records a schema lookup
func (t *OverridesApiTelemetry) FetchCompleted(platform models.Platform, outcome overrides.FetchOutcome) {
	if t.schemaFetchCounter == nil {
		return
	}
	t.schemaFetchCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("platform", platform.String()),
		attribute.String("outcome", string(outcome)),
	))
}

// StaleResponseDiscarded records a superseded schema response
func (t *OverridesApiTelemetry) StaleResponseDiscarded(platform models.Platform) {
	if t.staleResponseCounter == nil {
		return
	}
	t.staleResponseCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("platform", platform.String()),
	))
}

// SaveCompleted records a save attempt
func (t *OverridesApiTelemetry) SaveCompleted(outcome overrides.SaveOutcome) {
	if t.saveCounter == nil {
		return
	}
	t.saveCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("outcome", string(outcome)),
	))
}

// NormalizeClientIP categorizes client IPs to control cardinality
func NormalizeClientIP(clientIP string) string {
	if clientIP == "" {
		return "unknown"
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return "invalid"
	}
	if ip.IsLoopback() {
		return "localhost"
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() {
		return "internal"
	}
	return "external"
}
