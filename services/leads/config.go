// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package leads

import (
	"fmt"
	"time"

	"github.com/sn71/leadscope/services/leads/audit"
	"github.com/sn71/leadscope/services/leads/cache"
	"github.com/sn71/leadscope/services/leads/store"
)

// Config holds lead service configuration options.
//
// # Description
//
// Config centralizes all configuration for the lead dashboard service.
// Values can be populated from environment variables or programmatically
// for testing.
//
// # Required Fields
//
//   - SupabaseURL, SupabaseKey: the upstream event store. Without them the
//     service starts but every read fails with an upstream error.
//
// # Optional Fields
//
// Everything else has defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// SupabaseURL is the base URL of the upstream event store,
	// e.g. "https://xyzcompany.supabase.co".
	SupabaseURL string

	// SupabaseKey is the API key for the upstream event store.
	SupabaseKey string

	// EventsTable is the table holding decision events. Default: "lead_events"
	EventsTable string

	// EventType selects the decision event rows. Default: "lead_decision"
	EventType string

	// MetagraphURL is the metagraph sidecar snapshot endpoint.
	// If empty, metagraph enrichment is disabled and uid/active fields
	// fall back to -1/false.
	MetagraphURL string

	// FreshTTL is how long a cached snapshot serves without any refresh.
	// Default: 5 minutes.
	FreshTTL time.Duration

	// StaleTTL is how long a cached snapshot may serve while a background
	// refresh runs. Default: 10 minutes.
	StaleTTL time.Duration

	// RefreshInterval is the background refresh cadence. Default: 5 minutes.
	RefreshInterval time.Duration

	// PageSize is the upstream fetch page size. Default and ceiling: 1000.
	PageSize int

	// ServingRowCap bounds rows fetched for the serving snapshot. Fetches
	// hitting the cap are marked partial. Default: 50000. Zero keeps the
	// default; audits always fetch uncapped.
	ServingRowCap int

	// AuditTolerance is the allowed unexplained audit residual, in leads.
	// Default: audit.DefaultTolerance.
	AuditTolerance int

	// WarmTimeout bounds the startup warm fetch. Default: 30 seconds.
	WarmTimeout time.Duration

	// RequestsPerSecond rate-limits upstream queries. Default: 10.
	RequestsPerSecond float64

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "leadscope-otel-collector:4317"
	OTelEndpoint string

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// EnableMetrics enables the Prometheus metrics endpoint. Default: true
	EnableMetrics bool
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.EventsTable == "" {
		cfg.EventsTable = "lead_events"
	}
	if cfg.EventType == "" {
		cfg.EventType = "lead_decision"
	}
	if cfg.FreshTTL == 0 {
		cfg.FreshTTL = cache.DefaultFreshTTL
	}
	if cfg.StaleTTL == 0 {
		cfg.StaleTTL = cache.DefaultStaleTTL
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = cache.DefaultRefreshInterval
	}
	if cfg.PageSize <= 0 || cfg.PageSize > store.MaxPageSize {
		cfg.PageSize = store.MaxPageSize
	}
	if cfg.ServingRowCap == 0 {
		cfg.ServingRowCap = 50000
	}
	if cfg.AuditTolerance == 0 {
		cfg.AuditTolerance = audit.DefaultTolerance
	}
	if cfg.WarmTimeout == 0 {
		cfg.WarmTimeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "leadscope-otel-collector:4317"
	}
	cfg.EnableMetrics = true

	return cfg
}

// Validate rejects configurations that defaulting cannot repair. Called by
// New after defaults are applied.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	if c.StaleTTL <= c.FreshTTL {
		return fmt.Errorf("stale TTL (%s) must exceed fresh TTL (%s)", c.StaleTTL, c.FreshTTL)
	}
	if c.ServingRowCap < 0 {
		return fmt.Errorf("serving row cap must not be negative")
	}
	return nil
}
