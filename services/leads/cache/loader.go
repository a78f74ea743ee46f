// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// ProduceFunc computes a fresh value for a cache key, typically by running
// the full fetch -> resolve -> aggregate pipeline against upstream.
type ProduceFunc[V any] func(ctx context.Context) (V, error)

// Loader combines the freshness cache with request coalescing.
//
// # Description
//
// Load is the single entry point for the serving path:
//
//   - Fresh hit: return the cached value.
//   - Stale hit: return the stale value immediately and kick off one
//     asynchronous coalesced refresh. Stale readers never block.
//   - Absent: run the producer through singleflight so concurrent callers
//     for the same key share one upstream computation; the result is
//     written to the cache on success and the failure is propagated
//     identically to every waiter on error. Failures never poison the
//     cache: no entry is written.
//
// Keys are independent: a slow producer for one key never blocks loads of
// another.
//
// # Thread Safety
//
// Safe for concurrent use.
type Loader[V any] struct {
	cache  *FreshnessCache[V]
	flight singleflight.Group

	// refreshTimeout bounds the background refresh triggered by a stale
	// read, which runs detached from the reader's context.
	refreshTimeout time.Duration
}

// NewLoader wraps cache with coalesced loading.
func NewLoader[V any](cache *FreshnessCache[V], refreshTimeout time.Duration) *Loader[V] {
	if refreshTimeout <= 0 {
		refreshTimeout = time.Minute
	}
	return &Loader[V]{cache: cache, refreshTimeout: refreshTimeout}
}

// Load returns the value for key, producing it if necessary.
//
// The returned Freshness reports what the caller observed: Fresh or Stale
// for cache hits, Absent for a value that had to be produced on the spot.
func (l *Loader[V]) Load(ctx context.Context, key string, produce ProduceFunc[V]) (V, Freshness, error) {
	value, freshness := l.cache.Get(key)
	switch freshness {
	case Fresh:
		return value, Fresh, nil
	case Stale:
		l.refreshAsync(key, produce)
		return value, Stale, nil
	}

	produced, err, _ := l.flight.Do(key, func() (any, error) {
		v, err := produce(ctx)
		if err != nil {
			producerRunsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		l.cache.Put(key, v)
		producerRunsTotal.WithLabelValues("success").Inc()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, Absent, err
	}
	return produced.(V), Absent, nil
}

// refreshAsync starts one coalesced background refresh for key. If a
// computation for the key is already in flight the duplicate trigger joins
// it and is otherwise a no-op.
func (l *Loader[V]) refreshAsync(key string, produce ProduceFunc[V]) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.refreshTimeout)
		defer cancel()

		_, err, shared := l.flight.Do(key, func() (any, error) {
			v, err := produce(ctx)
			if err != nil {
				producerRunsTotal.WithLabelValues("error").Inc()
				return nil, err
			}
			l.cache.Put(key, v)
			producerRunsTotal.WithLabelValues("success").Inc()
			return v, nil
		})
		if err != nil && !shared {
			slog.Warn("stale-triggered refresh failed",
				"key", key,
				"error", err.Error(),
			)
		}
	}()
}
