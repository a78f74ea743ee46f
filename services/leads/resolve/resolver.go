// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resolve reduces the raw decision event log to one canonical state
// per lead using last-writer-wins resolution on the event timestamp.
package resolve

import (
	"log/slog"

	"github.com/sn71/leadscope/services/leads/datatypes"
)

// Result is the output of one resolution pass.
type Result struct {
	// States maps hotkey to its canonical resolved state.
	States map[string]datatypes.ResolvedState

	// Malformed counts events skipped for missing identity, decision, or
	// timestamp fields.
	Malformed int

	// Processed counts events that participated in resolution.
	Processed int
}

// Resolve folds an event multiset into one ResolvedState per hotkey.
//
// # Description
//
// A single left-fold over the input: no event is revisited, and the result
// is independent of input order. For each hotkey the event with the maximum
// timestamp wins; when two events share a timestamp the one with the larger
// ID wins, which makes resolution deterministic under input permutation
// (the upstream row ID is unique and monotone enough for this purpose).
//
// Alongside the winner, the fold accumulates the set of calendar dates on
// which any event for the hotkey appeared, the set of dates with accepted
// events, and whether the hotkey was ever accepted. The auditor depends on
// all three.
//
// Malformed events are skipped and counted, never fatal.
//
// # Inputs
//
//   - events: The full event sequence, in any order.
//
// # Outputs
//
//   - Result: States keyed by hotkey plus skip counters.
//
// # Thread Safety
//
// Pure function; safe to call concurrently. The returned maps must not be
// mutated by callers that share a Result.
func Resolve(events []datatypes.Event) Result {
	states := make(map[string]datatypes.ResolvedState)
	malformed := 0

	for _, ev := range events {
		if ev.Malformed() {
			malformed++
			continue
		}

		date := ev.DateKey()
		decision := ClassifyDecision(ev.Decision)

		st, ok := states[ev.Hotkey]
		if !ok {
			st = datatypes.ResolvedState{
				Hotkey:        ev.Hotkey,
				AppearedDates: make(map[string]struct{}),
				AcceptedDates: make(map[string]struct{}),
			}
		}

		st.AppearedDates[date] = struct{}{}
		if decision == datatypes.DecisionAccepted {
			st.AcceptedDates[date] = struct{}{}
			st.EverAccepted = true
		}

		if !ok || wins(ev, st) {
			st.LatestTimestamp = ev.Timestamp
			st.WinningEventID = ev.ID
			st.Decision = decision
			st.FirstSeenDate = date
			st.Name = ev.Name
			st.Source = ev.Source
		}

		states[ev.Hotkey] = st
	}

	if malformed > 0 {
		slog.Warn("skipped malformed events during resolution",
			"malformed", malformed,
			"processed", len(events)-malformed,
		)
	}

	return Result{
		States:    states,
		Malformed: malformed,
		Processed: len(events) - malformed,
	}
}

// wins reports whether ev beats the current winning event of st.
// Later timestamp wins; equal timestamps fall back to the larger event ID.
func wins(ev datatypes.Event, st datatypes.ResolvedState) bool {
	if ev.Timestamp.After(st.LatestTimestamp) {
		return true
	}
	return ev.Timestamp.Equal(st.LatestTimestamp) && ev.ID > st.WinningEventID
}
