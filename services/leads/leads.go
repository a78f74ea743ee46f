// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package leads provides the lead dashboard backend service.
//
// This package contains the main service type that coordinates all
// components: the upstream event store reader, the resolve/aggregate
// pipeline, the freshness cache with its background refresher, the
// metagraph enrichment client, HTTP routing, and observability
// infrastructure.
//
// # Usage
//
//	cfg := leads.Config{
//	    Port:        12310,
//	    SupabaseURL: "https://xyzcompany.supabase.co",
//	    SupabaseKey: os.Getenv("SUPABASE_KEY"),
//	}
//	svc, err := leads.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package leads

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sn71/leadscope/services/leads/cache"
	"github.com/sn71/leadscope/services/leads/metagraph"
	"github.com/sn71/leadscope/services/leads/middleware"
	"github.com/sn71/leadscope/services/leads/observability"
	"github.com/sn71/leadscope/services/leads/routes"
	"github.com/sn71/leadscope/services/leads/store"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the lead dashboard service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// Callers must not modify the router after construction.
	Router() *gin.Engine
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service coordinates:
//   - the paginated upstream event reader
//   - the resolve -> aggregate pipeline behind the freshness cache
//   - the background snapshot refresher
//   - the metagraph enrichment client
//   - HTTP routing via Gin, OpenTelemetry tracing, Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	pipeline      *Pipeline
	refresher     *cache.Refresher
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a lead dashboard Service with the given configuration.
//
// # Description
//
// New initializes all components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Builds the store client, reader, cache, and pipeline
//  5. Creates the background refresher (started by Run)
//  6. Sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}
	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	s.initPipeline()
	s.refresher = cache.NewRefresher(s.pipeline.RefreshCycle, s.config.RefreshInterval)
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run warms the snapshot cache, starts the background refresher, and serves
// HTTP until error.
//
// # Description
//
// The warm run is best effort: a failing upstream at startup is logged and
// the first foreground read retries instead. Blocks until the server stops.
func (s *service) Run() error {
	defer s.cleanup()

	warmCtx, cancel := context.WithTimeout(context.Background(), s.config.WarmTimeout)
	if err := s.refresher.RunOnce(warmCtx); err != nil {
		slog.Warn("startup warm fetch failed, first read will retry",
			"error", err.Error())
	}
	cancel()

	ctx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	if err := s.refresher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start refresher: %w", err)
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting lead dashboard server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up an OTLP trace exporter sending spans to the configured collector
// over an insecure gRPC connection (appropriate for internal networks).
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("leadscope-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initPipeline wires the upstream reader, cache, and metagraph client into
// the serving pipeline.
func (s *service) initPipeline() {
	client := store.NewClient(store.Config{
		BaseURL:           s.config.SupabaseURL,
		APIKey:            s.config.SupabaseKey,
		Table:             s.config.EventsTable,
		RequestsPerSecond: s.config.RequestsPerSecond,
	}, nil)
	reader := store.NewReader(client, s.config.PageSize)

	filter := store.Filter{
		EventType: s.config.EventType,
		NotNull:   []string{"hotkey"},
	}

	snapshotCache := cache.NewFreshnessCache[Snapshot](
		s.config.FreshTTL, s.config.StaleTTL, nil)
	meta := metagraph.NewClient(s.config.MetagraphURL, nil, 0)

	s.pipeline = NewPipeline(reader, filter, s.config.ServingRowCap,
		s.config.AuditTolerance, snapshotCache, meta, nil)
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("leadscope-service"))
	s.router.Use(middleware.RequestID())
	if s.config.EnableMetrics && observability.DefaultMetrics != nil {
		s.router.Use(observability.DefaultMetrics.Middleware())
	}

	routes.SetupRoutes(s.router, s.pipeline)
}

// cleanup releases resources held by the service.
func (s *service) cleanup() {
	if s.refresher != nil {
		s.refresher.Stop()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
