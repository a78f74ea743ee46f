// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sn71/leadscope/services/leads/datatypes"
)

// fakeQuerier serves a fixed event set page by page, like upstream does.
type fakeQuerier struct {
	events []datatypes.Event
	calls  int
	err    error
	failAt int // fail on the nth call (1-based) when err is set
}

func (f *fakeQuerier) Query(ctx context.Context, filter Filter, offset, limit int) ([]datatypes.Event, error) {
	f.calls++
	if f.err != nil && f.calls >= f.failAt {
		return nil, f.err
	}
	if offset >= len(f.events) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.events) {
		end = len(f.events)
	}
	return f.events[offset:end], nil
}

func makeEvents(n int) []datatypes.Event {
	events := make([]datatypes.Event, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range events {
		events[i] = datatypes.Event{
			ID:        fmt.Sprintf("%06d", i),
			Hotkey:    fmt.Sprintf("hk%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			EventType: "lead_decision",
			Decision:  "accepted",
		}
	}
	return events
}

func TestFetchAll(t *testing.T) {
	ctx := context.Background()

	t.Run("exhausts multiple pages", func(t *testing.T) {
		q := &fakeQuerier{events: makeEvents(250)}
		r := NewReader(q, 100)

		result, err := r.FetchAll(ctx, Filter{}, 0)
		if err != nil {
			t.Fatalf("FetchAll failed: %v", err)
		}
		if len(result.Events) != 250 {
			t.Errorf("rows = %d, want 250", len(result.Events))
		}
		if result.Truncated {
			t.Error("complete fetch must not be marked truncated")
		}
		// 100 + 100 + 50: the short third page terminates the loop.
		if result.Pages != 3 {
			t.Errorf("pages = %d, want 3", result.Pages)
		}
	})

	t.Run("terminates on exact page boundary", func(t *testing.T) {
		q := &fakeQuerier{events: makeEvents(200)}
		r := NewReader(q, 100)

		result, err := r.FetchAll(ctx, Filter{}, 0)
		if err != nil {
			t.Fatalf("FetchAll failed: %v", err)
		}
		if len(result.Events) != 200 {
			t.Errorf("rows = %d, want 200", len(result.Events))
		}
		// A full second page forces a third, empty probe.
		if result.Pages != 3 {
			t.Errorf("pages = %d, want 3", result.Pages)
		}
	})

	t.Run("row cap truncates", func(t *testing.T) {
		q := &fakeQuerier{events: makeEvents(500)}
		r := NewReader(q, 100)

		result, err := r.FetchAll(ctx, Filter{}, 150)
		if err != nil {
			t.Fatalf("FetchAll failed: %v", err)
		}
		if len(result.Events) != 150 {
			t.Errorf("rows = %d, want 150", len(result.Events))
		}
		if !result.Truncated {
			t.Error("capped fetch must be marked truncated")
		}
	})

	t.Run("page failure aborts with no partial result", func(t *testing.T) {
		q := &fakeQuerier{events: makeEvents(300), err: ErrUpstreamUnavailable, failAt: 2}
		r := NewReader(q, 100)

		result, err := r.FetchAll(ctx, Filter{}, 0)
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
		}
		if len(result.Events) != 0 {
			t.Error("failed fetch must not return partial results")
		}
	})

	t.Run("empty result set", func(t *testing.T) {
		q := &fakeQuerier{}
		r := NewReader(q, 100)

		result, err := r.FetchAll(ctx, Filter{}, 0)
		if err != nil {
			t.Fatalf("FetchAll failed: %v", err)
		}
		if len(result.Events) != 0 || result.Truncated {
			t.Errorf("result = %+v, want empty and complete", result)
		}
	})
}

func TestFilterKey(t *testing.T) {
	t.Run("deterministic across map ordering", func(t *testing.T) {
		a := Filter{
			EventType: "lead_decision",
			NotNull:   []string{"hotkey"},
			Equals:    map[string]string{"source": "web", "hotkey": "5abc"},
		}
		b := Filter{
			EventType: "lead_decision",
			NotNull:   []string{"hotkey"},
			Equals:    map[string]string{"hotkey": "5abc", "source": "web"},
		}
		for i := 0; i < 50; i++ {
			if a.Key() != b.Key() {
				t.Fatal("structurally identical filters produced different keys")
			}
		}
	})

	t.Run("different filters differ", func(t *testing.T) {
		a := Filter{EventType: "lead_decision"}
		b := Filter{EventType: "lead_decision", Equals: map[string]string{"hotkey": "x"}}
		if a.Key() == b.Key() {
			t.Error("distinct filters must not collide")
		}
	})
}
