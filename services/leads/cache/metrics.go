// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the freshness cache and background refresher.
var (
	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscope_cache_lookups_total",
		Help: "Cache lookups by freshness tier",
	}, []string{"freshness"})

	cacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadscope_cache_evictions_total",
		Help: "Entries evicted after exceeding the stale bound",
	})

	producerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscope_cache_producer_runs_total",
		Help: "Coalesced producer executions by outcome",
	}, []string{"outcome"})

	refreshCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscope_refresh_cycles_total",
		Help: "Background refresh cycles by outcome",
	}, []string{"outcome"})

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "leadscope_refresh_cycle_duration_seconds",
		Help:    "Time spent per background refresh cycle",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)
