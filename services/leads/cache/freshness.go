// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache implements the process-local projection cache: a two-tier
// freshness store, request coalescing for cache fills, and the background
// refresher that keeps entries warm ahead of expiry.
package cache

import (
	"sync"
	"time"
)

// Default freshness bounds, matching the upstream refresh cadence.
const (
	DefaultFreshTTL = 5 * time.Minute
	DefaultStaleTTL = 10 * time.Minute
)

// Freshness classifies a cached value by age.
type Freshness string

const (
	// Fresh entries are younger than the fresh TTL and served as-is.
	Fresh Freshness = "fresh"

	// Stale entries are past the fresh TTL but still usable; serving one
	// triggers an asynchronous refresh.
	Stale Freshness = "stale"

	// Absent means no usable entry exists (never written, or evicted
	// after exceeding the stale bound).
	Absent Freshness = "absent"
)

type entry[V any] struct {
	value     V
	writtenAt time.Time
}

// FreshnessCache is a process-wide key-value store with two time-to-live
// tiers.
//
// # Description
//
// An entry younger than freshTTL is Fresh; between freshTTL and staleTTL it
// is Stale but usable; past staleTTL it is evicted and reported Absent.
// Entries are replaced wholesale by Put, never mutated in place, so a cached
// value is always a fully formed, internally consistent snapshot.
//
// The clock is injected so tests can cross TTL boundaries without sleeping.
//
// # Thread Safety
//
// Safe for concurrent use. The mutex guards only metadata; it is never held
// across I/O.
type FreshnessCache[V any] struct {
	mu       sync.RWMutex
	entries  map[string]entry[V]
	freshTTL time.Duration
	staleTTL time.Duration
	clock    Clock
}

// NewFreshnessCache creates a cache with the given freshness bounds.
//
// freshTTL must be shorter than staleTTL; non-positive values fall back to
// the defaults. A nil clock uses the system clock.
func NewFreshnessCache[V any](freshTTL, staleTTL time.Duration, clock Clock) *FreshnessCache[V] {
	if freshTTL <= 0 {
		freshTTL = DefaultFreshTTL
	}
	if staleTTL <= freshTTL {
		staleTTL = 2 * freshTTL
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &FreshnessCache[V]{
		entries:  make(map[string]entry[V]),
		freshTTL: freshTTL,
		staleTTL: staleTTL,
		clock:    clock,
	}
}

// Get returns the cached value for key and its freshness tier.
//
// An entry older than the stale bound is evicted on the way out and reported
// Absent. The returned value is the zero V when freshness is Absent.
func (c *FreshnessCache[V]) Get(key string) (V, Freshness) {
	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.clock.Now()
	c.mu.RUnlock()

	var zero V
	if !ok {
		cacheLookupsTotal.WithLabelValues(string(Absent)).Inc()
		return zero, Absent
	}

	age := now.Sub(e.writtenAt)
	switch {
	case age < c.freshTTL:
		cacheLookupsTotal.WithLabelValues(string(Fresh)).Inc()
		return e.value, Fresh
	case age < c.staleTTL:
		cacheLookupsTotal.WithLabelValues(string(Stale)).Inc()
		return e.value, Stale
	default:
		c.evict(key, e.writtenAt)
		cacheLookupsTotal.WithLabelValues(string(Absent)).Inc()
		return zero, Absent
	}
}

// Put stores value under key, overwriting unconditionally and resetting the
// entry's age.
func (c *FreshnessCache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, writtenAt: c.clock.Now()}
}

// Len returns the number of live entries, for monitoring and tests.
func (c *FreshnessCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evict deletes key only if no newer write has replaced the observed entry.
func (c *FreshnessCache[V]) evict(key string, observedWrite time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.writtenAt.Equal(observedWrite) {
		return
	}
	delete(c.entries, key)
	cacheEvictionsTotal.Inc()
}
