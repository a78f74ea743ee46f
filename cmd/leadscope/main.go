// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command leadscope starts the lead dashboard HTTP server.
//
// This is the main entry point for the containerized service. It reads
// configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - LEADSCOPE_PORT: HTTP server port (default: 12310)
//   - SUPABASE_URL: upstream event store base URL (required)
//   - SUPABASE_KEY: upstream event store API key (required)
//   - LEADSCOPE_EVENTS_TABLE: decision event table (default: lead_events)
//   - LEADSCOPE_EVENT_TYPE: decision event type (default: lead_decision)
//   - METAGRAPH_URL: metagraph sidecar snapshot endpoint (optional)
//   - LEADSCOPE_FRESH_TTL: snapshot fresh window (default: 5m)
//   - LEADSCOPE_STALE_TTL: snapshot stale window (default: 10m)
//   - LEADSCOPE_REFRESH_INTERVAL: background refresh cadence (default: 5m)
//   - LEADSCOPE_SERVING_ROW_CAP: serving fetch row cap (default: 50000)
//   - LEADSCOPE_AUDIT_TOLERANCE: allowed unexplained audit residual (default: 50)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: leadscope-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o leadscope ./cmd/leadscope
//
//	# Run
//	./leadscope
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/sn71/leadscope/services/leads"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := leads.Config{
		Port:            getEnvInt("LEADSCOPE_PORT", 12310),
		SupabaseURL:     os.Getenv("SUPABASE_URL"),
		SupabaseKey:     os.Getenv("SUPABASE_KEY"),
		EventsTable:     getEnvString("LEADSCOPE_EVENTS_TABLE", "lead_events"),
		EventType:       getEnvString("LEADSCOPE_EVENT_TYPE", "lead_decision"),
		MetagraphURL:    os.Getenv("METAGRAPH_URL"),
		FreshTTL:        getEnvDuration("LEADSCOPE_FRESH_TTL", 5*time.Minute),
		StaleTTL:        getEnvDuration("LEADSCOPE_STALE_TTL", 10*time.Minute),
		RefreshInterval: getEnvDuration("LEADSCOPE_REFRESH_INTERVAL", 5*time.Minute),
		ServingRowCap:   getEnvInt("LEADSCOPE_SERVING_ROW_CAP", 50000),
		AuditTolerance:  getEnvInt("LEADSCOPE_AUDIT_TOLERANCE", 50),
		OTelEndpoint:    getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "leadscope-otel-collector:4317"),
		GinMode:         os.Getenv("GIN_MODE"),
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		slog.Warn("SUPABASE_URL or SUPABASE_KEY not set; reads will fail until configured")
	}

	slog.Info("Starting leadscope",
		"port", cfg.Port,
		"events_table", cfg.EventsTable,
		"metagraph_url", cfg.MetagraphURL,
	)

	svc, err := leads.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
