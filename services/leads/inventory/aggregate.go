// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package inventory buckets resolved lead states into a daily accepted-count
// series with a running cumulative total.
package inventory

import (
	"sort"

	"github.com/sn71/leadscope/services/leads/datatypes"
)

// BuildDailyInventory aggregates accepted leads into per-day buckets.
//
// # Description
//
// Selects leads whose final decision is accepted, buckets them by
// FirstSeenDate (the date of the event that produced the current decision),
// sorts buckets ascending by date, and prefix-sums the counts into the
// cumulative series.
//
// # Inputs
//
//   - states: Resolved states keyed by hotkey.
//
// # Outputs
//
//   - []datatypes.DailyInventoryPoint: Ordered by date ascending. Empty
//     (non-nil) for input with no accepted leads.
//   - int: totalAccepted, equal to the final cumulative value and to the
//     number of accepted states.
func BuildDailyInventory(states map[string]datatypes.ResolvedState) ([]datatypes.DailyInventoryPoint, int) {
	counts := make(map[string]int)
	for _, st := range states {
		if st.Decision == datatypes.DecisionAccepted {
			counts[st.FirstSeenDate]++
		}
	}

	dates := make([]string, 0, len(counts))
	for d := range counts {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	points := make([]datatypes.DailyInventoryPoint, 0, len(dates))
	cumulative := 0
	for _, d := range dates {
		cumulative += counts[d]
		points = append(points, datatypes.DailyInventoryPoint{
			Date:       d,
			NewCount:   counts[d],
			Cumulative: cumulative,
		})
	}

	return points, cumulative
}
