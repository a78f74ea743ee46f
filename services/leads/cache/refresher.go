// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshInterval matches the upstream refresh cadence.
const DefaultRefreshInterval = 5 * time.Minute

// RefreshFunc runs one refresh cycle: re-run the full pipeline and write the
// result into the cache.
type RefreshFunc func(ctx context.Context) error

// Refresher periodically repopulates the cache ahead of expiry so foreground
// reads rarely block on upstream.
//
// # Description
//
// Uses the ticker + done channel pattern. A cycle that fails is logged and
// counted but never stops the loop; the next tick retries. RunOnce is
// exposed so the startup warm run and tests can execute a cycle
// deterministically without timers.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Only one Start is allowed until
// Stop completes.
type Refresher struct {
	refresh  RefreshFunc
	interval time.Duration

	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// NewRefresher creates a stopped refresher. A non-positive interval uses
// DefaultRefreshInterval.
func NewRefresher(refresh RefreshFunc, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		refresh:  refresh,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the background refresh loop.
//
// Returns an error if the refresher is already running. The loop exits when
// Stop is called or ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher is already running")
	}
	r.running = true
	r.done = make(chan struct{})
	r.mu.Unlock()

	slog.Info("background refresher starting", "interval", r.interval.String())
	go r.runLoop(ctx)
	return nil
}

// Stop signals the loop to exit. Safe to call multiple times.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.done)
}

// RunOnce executes a single refresh cycle synchronously.
func (r *Refresher) RunOnce(ctx context.Context) error {
	start := time.Now()
	err := r.runCycle(ctx)
	refreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		refreshCyclesTotal.WithLabelValues("error").Inc()
		return err
	}
	refreshCyclesTotal.WithLabelValues("success").Inc()
	return nil
}

func (r *Refresher) runLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("background refresher stopping", "reason", "context cancelled")
			return
		case <-r.done:
			slog.Info("background refresher stopping", "reason", "stop requested")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				slog.Error("refresh cycle failed", "error", err.Error())
			}
		}
	}
}

// runCycle isolates a cycle so a panicking pipeline cannot kill the loop.
func (r *Refresher) runCycle(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("refresh cycle panicked: %v", rec)
		}
	}()
	return r.refresh(ctx)
}
