package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"

	"flipit-overrides-api/internal/client"
	"flipit-overrides-api/internal/config"
	"flipit-overrides-api/internal/handlers"
	"flipit-overrides-api/internal/middleware"
	"flipit-overrides-api/internal/services"
	"flipit-overrides-api/internal/telemetry"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg := config.LoadConfig()

	slog.Info("Starting FlipIt overrides API", "version", "1.0.0")

	ctx := context.Background()
	otelTelemetry, err := telemetry.InitMetrics(ctx, cfg.MetricsExporter)
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	apiTelemetry := telemetry.NewOverridesApiTelemetry()
	if err := apiTelemetry.InitializeTelemetry(); err != nil {
		slog.Error("Failed to initialize API telemetry", "error", err)
		os.Exit(1)
	}

	rps, burst := cfg.BackendRateLimit()
	backendClient := client.NewBackendClient(client.BackendConfig{
		BaseURL:                cfg.BackendBaseURL,
		Timeout:                cfg.BackendTimeoutDuration(),
		RequestsPerSecond:      rps,
		Burst:                  burst,
		DefaultEbayMarketplace: cfg.EbayMarketplaceID,
	})

	sessionService := services.NewSessionService(backendClient, services.SessionServiceConfig{
		TTL:             cfg.SessionTTLDuration(),
		CleanupInterval: cfg.SessionCleanupInterval(),
		Debounce:        cfg.CategoryDebounceDuration(),
		FetchObserver:   apiTelemetry,
		SaveObserver:    apiTelemetry,
	})
	if err := apiTelemetry.ObserveActiveSessions(sessionService.ActiveSessions); err != nil {
		slog.Warn("Active sessions gauge unavailable", "error", err)
	}

	sessionHandler := handlers.NewSessionHandler(sessionService)
	healthHandler := handlers.NewHealthHandler(sessionService)

	r := mux.NewRouter()

	// chi middlewares are plain http.Handler wrappers and mount on mux as is
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(telemetry.NewTelemetryMiddleware(apiTelemetry).Middleware)

	var rateLimiter *middleware.RateLimiter
	if config.ParseBool(cfg.RateLimitEnabled, true) {
		rateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: config.ParseInt(cfg.RateLimitPerMinute, 300),
		})
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
		slog.Info("Rate limiting middleware enabled")
	} else {
		slog.Info("Rate limiting middleware disabled")
	}

	// Session API requires the seller's bearer token, forwarded to the backend
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.BearerAuth)
	sessionHandler.RegisterRoutes(v1)

	// Health check and metrics (no auth required)
	r.HandleFunc("/health", healthHandler.Health).Methods("GET")
	if metricsHandler := otelTelemetry.MetricsHandler(); metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods("GET")
	}

	slog.Debug("Available endpoints",
		"v1_endpoints", []string{
			"POST /v1/listings/{listingId}/sessions",
			"GET|DELETE /v1/sessions/{sessionId}",
			"POST /v1/sessions/{sessionId}/save",
			"PUT /v1/sessions/{sessionId}/platforms/{platform}/enabled|category|optional",
			"PUT /v1/sessions/{sessionId}/platforms/{platform}/values/{key}",
			"POST /v1/sessions/{sessionId}/platforms/{platform}/retry",
			"GET /v1/sessions/{sessionId}/platforms/{platform}/form",
		},
		"system_endpoints", []string{"GET /health", "GET /metrics"})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server ready to accept connections", "address", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Unsaved edit sessions are discarded on shutdown
	sessionService.Shutdown()
	if rateLimiter != nil {
		rateLimiter.Stop()
	}
	otelTelemetry.Shutdown(shutdownCtx)

	slog.Info("Server exited")
}
