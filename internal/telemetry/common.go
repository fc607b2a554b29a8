package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

const (
	// ExporterScraper serves /metrics for a Prometheus scrape
	ExporterScraper = "scraper"
	// ExporterGRPC pushes to OTEL_EXPORTER_OTLP_METRICS_ENDPOINT (default localhost:4317)
	ExporterGRPC = "grpc"
	// ExporterNone keeps the no-op global provider
	ExporterNone = "none"
)

// Telemetry owns the meter provider of the process
type Telemetry struct {
	Provider *metric.MeterProvider
	exporter string
}

// InitMetrics installs a global meter provider backed by the chosen exporter
func InitMetrics(ctx context.Context, exporter string) (*Telemetry, error) {
	t := &Telemetry{exporter: exporter}

	switch exporter {
	case ExporterNone, "":
		slog.Info("Metrics disabled")
		return t, nil
	case ExporterScraper:
		slog.Info("Starting metrics with scraper exporter")
		// The exporter embeds a default OpenTelemetry Reader and implements
		// prometheus.Collector, registered with the default registry.
		reader, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("creating scrape exporter: %w", err)
		}
		t.Provider = metric.NewMeterProvider(metric.WithReader(reader))
	case ExporterGRPC:
		slog.Info("Starting metrics with grpc exporter")
		exp, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating grpc exporter: %w", err)
		}
		t.Provider = metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(exp)))
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", exporter)
	}

	otel.SetMeterProvider(t.Provider)
	return t, nil
}

// MetricsHandler returns the /metrics handler, or nil unless the scrape
// exporter is active.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t.exporter != ExporterScraper {
		return nil
	}
	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider
func (t *Telemetry) Shutdown(ctx context.Context) {
	if t.Provider == nil {
		return
	}
	if err := t.Provider.ForceFlush(ctx); err != nil {
		slog.Warn("Failed to flush metrics", "error", err)
	}
	if err := t.Provider.Shutdown(ctx); err != nil {
		slog.Warn("Failed to shut down meter provider", "error", err)
	}
	slog.Info("Metrics provider stopped")
}
