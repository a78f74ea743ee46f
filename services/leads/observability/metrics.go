// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the lead
// dashboard API.
//
// # Description
//
// This package implements Prometheus metrics for the HTTP read path:
//   - Request counters (by route and status class)
//   - Request latency histograms (by route)
//   - In-flight request gauge
//
// Cache and refresher metrics live next to their code in the cache package;
// this package only covers the HTTP surface.
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "leadscope"

// Subsystem for HTTP metrics
const httpSubsystem = "http"

// HTTPMetrics holds the Prometheus metrics for the HTTP read path.
//
// # Fields
//
//   - RequestsTotal: Counter of requests by route and status class
//   - RequestDurationSeconds: Histogram of request latency by route
//   - InFlight: Gauge of requests currently being served
//
// # Thread Safety
//
// All operations are thread-safe.
type HTTPMetrics struct {
	// RequestsTotal counts requests by route template and status class.
	// Labels: route (/v1/inventory, ...), status (2xx, 4xx, 5xx)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures request latency.
	// Labels: route
	RequestDurationSeconds *prometheus.HistogramVec

	// InFlight tracks requests currently being served.
	InFlight prometheus.Gauge
}

// DefaultMetrics is the singleton instance of HTTPMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *HTTPMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once at
// application startup.
//
// # Outputs
//
//   - *HTTPMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *HTTPMetrics {
	DefaultMetrics = &HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by route and status class",
			},
			[]string{"route", "status"},
		),

		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds by route",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"route"},
		),

		InFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "in_flight_requests",
				Help:      "Number of HTTP requests currently being served",
			},
		),
	}

	return DefaultMetrics
}

// Middleware returns a gin middleware recording request metrics.
//
// # Description
//
// Uses the route template (c.FullPath) rather than the raw URL so that
// parameterized routes do not explode label cardinality. Unmatched routes
// are recorded under "unmatched".
func (m *HTTPMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.InFlight.Inc()

		c.Next()

		m.InFlight.Dec()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status()/100) + "xx"
		m.RequestsTotal.WithLabelValues(route, status).Inc()
		m.RequestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
