// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/sn71/leadscope/services/leads/datatypes"
)

func event(id, hotkey, decision string, ts time.Time) datatypes.Event {
	return datatypes.Event{
		ID:        id,
		Hotkey:    hotkey,
		Timestamp: ts,
		EventType: "lead_decision",
		Decision:  decision,
	}
}

func TestResolveLatestWins(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("later event overrides earlier decision", func(t *testing.T) {
		// Scenario: ALLOW at 10:00 then DENY at 11:00 resolves to rejected.
		events := []datatypes.Event{
			event("1", "e1", "ALLOW", t0),
			event("2", "e1", "DENY", t0.Add(time.Hour)),
		}

		res := Resolve(events)
		st := res.States["e1"]
		if st.Decision != datatypes.DecisionRejected {
			t.Errorf("decision = %q, want rejected", st.Decision)
		}
		if !st.EverAccepted {
			t.Error("expected EverAccepted to be true")
		}
	})

	t.Run("order independent", func(t *testing.T) {
		events := []datatypes.Event{
			event("1", "e1", "ALLOW", t0),
			event("2", "e1", "DENY", t0.Add(time.Hour)),
			event("3", "e2", "approved", t0.Add(2*time.Hour)),
			event("4", "e2", "pending review", t0),
		}

		want := Resolve(events)
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 20; i++ {
			shuffled := make([]datatypes.Event, len(events))
			copy(shuffled, events)
			rng.Shuffle(len(shuffled), func(a, b int) {
				shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
			})

			got := Resolve(shuffled)
			if !reflect.DeepEqual(got.States, want.States) {
				t.Fatalf("permutation %d produced different states", i)
			}
		}
	})

	t.Run("equal timestamps break ties on event id", func(t *testing.T) {
		a := event("0001", "e1", "ALLOW", t0)
		b := event("0002", "e1", "DENY", t0)

		forward := Resolve([]datatypes.Event{a, b})
		backward := Resolve([]datatypes.Event{b, a})

		if forward.States["e1"].Decision != datatypes.DecisionRejected {
			t.Errorf("decision = %q, want rejected (larger id wins)", forward.States["e1"].Decision)
		}
		if !reflect.DeepEqual(forward.States, backward.States) {
			t.Error("tie-break depends on input order")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		events := []datatypes.Event{
			event("1", "e1", "ALLOW", t0),
			event("2", "e2", "DENY", t0.Add(time.Minute)),
			event("3", "e1", "approved", t0.Add(time.Hour)),
		}

		first := Resolve(events)
		second := Resolve(events)
		if !reflect.DeepEqual(first, second) {
			t.Error("resolving the same event set twice produced different results")
		}
	})
}

func TestResolveTracksDates(t *testing.T) {
	// Scenario: e2 accepted on 2024-01-01 and re-submitted on 2024-01-03.
	d1 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	d3 := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)

	res := Resolve([]datatypes.Event{
		event("1", "e2", "accepted", d1),
		event("2", "e2", "accepted", d3),
	})

	st := res.States["e2"]
	wantDates := []string{"2024-01-01", "2024-01-03"}
	if got := st.AppearedDateList(); !reflect.DeepEqual(got, wantDates) {
		t.Errorf("AppearedDates = %v, want %v", got, wantDates)
	}
	if got := st.AcceptedDateList(); !reflect.DeepEqual(got, wantDates) {
		t.Errorf("AcceptedDates = %v, want %v", got, wantDates)
	}
	if st.FirstSeenDate != "2024-01-03" {
		t.Errorf("FirstSeenDate = %q, want date of winning event", st.FirstSeenDate)
	}
}

func TestResolveSkipsMalformed(t *testing.T) {
	t0 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	res := Resolve([]datatypes.Event{
		event("1", "", "ALLOW", t0),             // missing hotkey
		event("2", "e1", "", t0),                // missing decision
		event("3", "e2", "ALLOW", time.Time{}),  // missing timestamp
		event("4", "e3", "ALLOW", t0),           // valid
	})

	if res.Malformed != 3 {
		t.Errorf("Malformed = %d, want 3", res.Malformed)
	}
	if res.Processed != 1 {
		t.Errorf("Processed = %d, want 1", res.Processed)
	}
	if len(res.States) != 1 {
		t.Errorf("len(States) = %d, want 1", len(res.States))
	}
	if _, ok := res.States["e3"]; !ok {
		t.Error("expected e3 to be resolved")
	}
}

func TestClassifyDecision(t *testing.T) {
	cases := []struct {
		raw  string
		want datatypes.Decision
	}{
		{"allow", datatypes.DecisionAccepted},
		{"ALLOWED", datatypes.DecisionAccepted},
		{"Accept", datatypes.DecisionAccepted},
		{"accepted", datatypes.DecisionAccepted},
		{"approve", datatypes.DecisionAccepted},
		{" Approved ", datatypes.DecisionAccepted},
		{"deny", datatypes.DecisionRejected},
		{"DENIED", datatypes.DecisionRejected},
		{"reject", datatypes.DecisionRejected},
		{"rejected", datatypes.DecisionRejected},
		{"", datatypes.DecisionPending},
		{"waitlist", datatypes.DecisionPending},
		{"allow2", datatypes.DecisionPending},
	}

	for _, tc := range cases {
		if got := ClassifyDecision(tc.raw); got != tc.want {
			t.Errorf("ClassifyDecision(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
