// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderCoalescing(t *testing.T) {
	t.Run("concurrent loads invoke producer once", func(t *testing.T) {
		c, _ := newTestCache(t)
		loader := NewLoader(c, time.Minute)

		var calls int32
		gate := make(chan struct{})
		produce := func(ctx context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			<-gate
			return "value", nil
		}

		const n = 16
		var wg sync.WaitGroup
		results := make([]string, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, _, err := loader.Load(context.Background(), "k", produce)
				results[i] = v
				errs[i] = err
			}(i)
		}

		// Let every goroutine reach the loader before releasing the producer.
		time.Sleep(50 * time.Millisecond)
		close(gate)
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "producer should run exactly once")
		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, "value", results[i])
		}
	})

	t.Run("failure shared by all waiters and not cached", func(t *testing.T) {
		c, _ := newTestCache(t)
		loader := NewLoader(c, time.Minute)

		wantErr := errors.New("upstream down")
		var calls int32
		gate := make(chan struct{})
		produce := func(ctx context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			<-gate
			return "", wantErr
		}

		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, errs[i] = loader.Load(context.Background(), "k", produce)
			}(i)
		}
		time.Sleep(50 * time.Millisecond)
		close(gate)
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		for i := 0; i < n; i++ {
			assert.ErrorIs(t, errs[i], wantErr)
		}
		assert.Equal(t, 0, c.Len(), "failed computation must not poison the cache")
	})
}

func TestLoaderFreshnessPaths(t *testing.T) {
	t.Run("fresh hit skips producer", func(t *testing.T) {
		c, _ := newTestCache(t)
		loader := NewLoader(c, time.Minute)
		c.Put("k", "cached")

		v, f, err := loader.Load(context.Background(), "k", func(ctx context.Context) (string, error) {
			t.Fatal("producer must not run on a fresh hit")
			return "", nil
		})
		require.NoError(t, err)
		assert.Equal(t, Fresh, f)
		assert.Equal(t, "cached", v)
	})

	t.Run("stale hit returns immediately and refreshes in background", func(t *testing.T) {
		c, clock := newTestCache(t)
		loader := NewLoader(c, time.Minute)
		c.Put("k", "old")
		clock.Advance(6 * time.Minute)

		refreshed := make(chan struct{})
		v, f, err := loader.Load(context.Background(), "k", func(ctx context.Context) (string, error) {
			defer close(refreshed)
			return "new", nil
		})
		require.NoError(t, err)
		assert.Equal(t, Stale, f)
		assert.Equal(t, "old", v, "stale reader gets the stale value without blocking")

		select {
		case <-refreshed:
		case <-time.After(2 * time.Second):
			t.Fatal("background refresh never ran")
		}

		// The refresh rewrote the entry, so the next read is fresh.
		assert.Eventually(t, func() bool {
			got, f := c.Get("k")
			return f == Fresh && got == "new"
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("absent produces and caches", func(t *testing.T) {
		c, _ := newTestCache(t)
		loader := NewLoader(c, time.Minute)

		v, f, err := loader.Load(context.Background(), "k", func(ctx context.Context) (string, error) {
			return "built", nil
		})
		require.NoError(t, err)
		assert.Equal(t, Absent, f)
		assert.Equal(t, "built", v)

		got, f := c.Get("k")
		assert.Equal(t, Fresh, f)
		assert.Equal(t, "built", got)
	})
}
