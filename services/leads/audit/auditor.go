// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit cross-checks the officially published accepted total against
// a total recomputed from the event log, and explains the residual.
//
// The official counter was historically accumulated incrementally per event,
// which over-counts in two ways the recomputed per-lead total does not:
// leads whose accepted events span multiple calendar days, and leads whose
// acceptance was later reversed. This package quantifies both mechanisms.
// It is diagnostic only and never runs on the serving hot path.
package audit

import (
	"errors"
	"sort"

	"github.com/sn71/leadscope/services/leads/datatypes"
)

// DefaultTolerance is the allowed unexplained residual, in leads. It absorbs
// events that were in flight at the boundary of the audit window.
const DefaultTolerance = 50

// ErrPartialData is returned when an audit would have to run on a truncated
// event fetch. Audits never run on partial data.
var ErrPartialData = errors.New("audit refused: event fetch was truncated")

// Report is the outcome of one discrepancy audit.
type Report struct {
	// OfficialTotal is the externally published running total under audit.
	OfficialTotal int `json:"official_total"`

	// RecomputedTotal is the accepted count recomputed from the full log.
	RecomputedTotal int `json:"recomputed_total"`

	// DuplicateExtra counts over-count units from multi-day duplicates:
	// one per extra accepted date beyond the first, per lead.
	DuplicateExtra int `json:"duplicate_extra"`

	// Reversals counts leads accepted at some point whose latest decision
	// is rejected.
	Reversals int `json:"reversals"`

	// ExplainedDelta is DuplicateExtra + Reversals.
	ExplainedDelta int `json:"explained_delta"`

	// Unexplained is the residual left after subtracting the measured
	// delta from the explained one. Within tolerance it is noise; beyond
	// it, something new is wrong with the official counter.
	Unexplained int `json:"unexplained"`

	// Explained is true when the absolute residual is below tolerance.
	Explained bool `json:"explained"`

	// Records lists each lead contributing to the discrepancy.
	Records []datatypes.DiscrepancyRecord `json:"records"`
}

// Explain audits the official total against states resolved from the log.
//
// # Description
//
// Applies the two explanatory mechanisms independently and sums them:
//
//  1. Multi-day duplicate inflation: every extra distinct accepted date
//     beyond a lead's first contributes one unit.
//  2. Decision reversal: a lead that was ever accepted but resolves to
//     rejected was counted once and must not be.
//
// The audit declares the discrepancy explained when
// |explainedDelta - (recomputedTotal - officialTotal)| < tolerance.
//
// # Inputs
//
//   - states: Resolved states from a complete (never truncated) log fetch.
//   - officialTotal: The published running total.
//   - recomputedTotal: totalAccepted recomputed by the inventory aggregator.
//   - tolerance: Allowed unexplained residual; <= 0 uses DefaultTolerance.
//
// # Outputs
//
//   - Report: Totals, per-mechanism counts, and per-lead records sorted by
//     hotkey for stable output.
func Explain(states map[string]datatypes.ResolvedState, officialTotal, recomputedTotal, tolerance int) Report {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	report := Report{
		OfficialTotal:   officialTotal,
		RecomputedTotal: recomputedTotal,
	}

	for _, st := range states {
		duplicate := len(st.AcceptedDates) > 1
		reversed := st.EverAccepted && st.Decision == datatypes.DecisionRejected

		if duplicate {
			report.DuplicateExtra += len(st.AcceptedDates) - 1
		}
		if reversed {
			report.Reversals++
		}

		if !duplicate && !reversed {
			continue
		}

		kind := datatypes.IssueMultiDayDuplicate
		switch {
		case duplicate && reversed:
			kind = datatypes.IssueBoth
		case reversed:
			kind = datatypes.IssueReversedDecision
		}
		report.Records = append(report.Records, datatypes.DiscrepancyRecord{
			Hotkey:         st.Hotkey,
			IssueKind:      kind,
			DatesAppeared:  st.AppearedDateList(),
			LatestDecision: st.Decision,
		})
	}

	sort.Slice(report.Records, func(i, j int) bool {
		return report.Records[i].Hotkey < report.Records[j].Hotkey
	})

	report.ExplainedDelta = report.DuplicateExtra + report.Reversals
	report.Unexplained = report.ExplainedDelta - (recomputedTotal - officialTotal)
	report.Explained = abs(report.Unexplained) < tolerance

	return report
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
