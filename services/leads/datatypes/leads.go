// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data model for the leads service.
//
// The upstream event log is append-only: a lead (identified by its hotkey)
// may have any number of decision events, arriving out of order and possibly
// duplicated. Everything derived from that log (ResolvedState, the daily
// inventory, audit records) is rebuilt wholesale on each resolution pass and
// never patched in place.
package datatypes

import (
	"sort"
	"time"
)

// =============================================================================
// Decision
// =============================================================================

// Decision is the resolved three-valued decision for a lead.
//
// The raw decision strings in the event log are free-form; classification
// into this closed enum happens in the resolve package. Anything that does
// not map to an accepted or rejected synonym is Pending, never an error.
type Decision string

const (
	// DecisionAccepted means the latest event accepted the lead.
	DecisionAccepted Decision = "accepted"

	// DecisionRejected means the latest event rejected the lead.
	DecisionRejected Decision = "rejected"

	// DecisionPending means the raw decision did not map to accept or reject.
	DecisionPending Decision = "pending"
)

// =============================================================================
// Upstream Events
// =============================================================================

// Event is one row of the upstream decision log.
//
// Events are immutable once appended upstream; this service never mutates
// them. Ordering between events for the same hotkey is defined only by
// Timestamp, not by arrival or storage order.
type Event struct {
	// ID is the upstream row identifier. Used as the deterministic
	// tie-break when two events share a timestamp.
	ID string `json:"id"`

	// Hotkey is the stable lead identifier (ss58 address).
	Hotkey string `json:"hotkey"`

	// Timestamp is when the decision was made upstream.
	Timestamp time.Time `json:"created_at"`

	// EventType distinguishes decision events from other log rows.
	EventType string `json:"event_type"`

	// Decision is the raw decision string ("ALLOW", "denied", ...).
	Decision string `json:"decision"`

	// Auxiliary fields carried through for presentation.
	Name   string `json:"name,omitempty"`
	Source string `json:"source,omitempty"`
}

// Malformed reports whether the event is missing required fields.
//
// Malformed events are skipped and counted during resolution; they never
// abort a resolution pass.
func (e Event) Malformed() bool {
	return e.Hotkey == "" || e.Decision == "" || e.Timestamp.IsZero()
}

// DateKey returns the UTC calendar date of the event, formatted 2006-01-02.
func (e Event) DateKey() string {
	return e.Timestamp.UTC().Format("2006-01-02")
}

// =============================================================================
// Resolved State
// =============================================================================

// ResolvedState is the canonical latest state of one lead, derived from the
// max-timestamp event for its hotkey.
//
// For a fixed input event set the Decision and LatestTimestamp fields are a
// pure function of that winning event, so recomputation is idempotent.
type ResolvedState struct {
	// Hotkey identifies the lead.
	Hotkey string `json:"hotkey"`

	// LatestTimestamp is the timestamp of the winning event.
	LatestTimestamp time.Time `json:"latest_timestamp"`

	// WinningEventID is the ID of the winning event. Exposed so audits can
	// point at the exact row that produced the current decision.
	WinningEventID string `json:"winning_event_id"`

	// Decision is the classified decision of the winning event.
	Decision Decision `json:"decision"`

	// FirstSeenDate is the calendar date (UTC) of the winning event, i.e.
	// the date that produced the current decision, not the first-ever
	// appearance of the hotkey.
	FirstSeenDate string `json:"first_seen_date"`

	// AppearedDates is the set of distinct calendar dates on which any
	// event for this hotkey appeared.
	AppearedDates map[string]struct{} `json:"-"`

	// AcceptedDates is the set of distinct calendar dates on which an
	// accepted event for this hotkey appeared. Needed by the auditor.
	AcceptedDates map[string]struct{} `json:"-"`

	// EverAccepted is true if any event in the hotkey's history was
	// classified as accepted, regardless of the final decision.
	EverAccepted bool `json:"ever_accepted"`

	// Name and Source are carried from the winning event.
	Name   string `json:"name,omitempty"`
	Source string `json:"source,omitempty"`
}

// AppearedDateList returns AppearedDates as a sorted slice.
func (s ResolvedState) AppearedDateList() []string {
	return sortedDates(s.AppearedDates)
}

// AcceptedDateList returns AcceptedDates as a sorted slice.
func (s ResolvedState) AcceptedDateList() []string {
	return sortedDates(s.AcceptedDates)
}

func sortedDates(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Aggregates
// =============================================================================

// DailyInventoryPoint is one day's bucket of newly accepted leads plus the
// running cumulative total.
//
// Invariant: Cumulative[i] = Cumulative[i-1] + NewCount[i], points sorted by
// Date ascending, and the last Cumulative equals the sum of all NewCounts.
type DailyInventoryPoint struct {
	Date       string `json:"date"`
	NewCount   int    `json:"new_count"`
	Cumulative int    `json:"cumulative"`
}

// IssueKind classifies why a lead contributes to a totals discrepancy.
type IssueKind string

const (
	// IssueMultiDayDuplicate marks leads whose accepted events span more
	// than one calendar date, inflating per-event running totals.
	IssueMultiDayDuplicate IssueKind = "multi_day_duplicate"

	// IssueReversedDecision marks leads that were accepted at some point
	// but whose latest decision is rejected.
	IssueReversedDecision IssueKind = "reversed_decision"

	// IssueBoth marks leads exhibiting both problems at once.
	IssueBoth IssueKind = "both"
)

// DiscrepancyRecord explains one lead's contribution to a totals mismatch.
// Produced only during audits; never persisted by the serving path.
type DiscrepancyRecord struct {
	Hotkey         string    `json:"hotkey"`
	IssueKind      IssueKind `json:"issue_kind"`
	DatesAppeared  []string  `json:"dates_appeared"`
	LatestDecision Decision  `json:"latest_decision"`
}

// =============================================================================
// API Payloads
// =============================================================================

// InventoryResponse is the payload of GET /v1/inventory.
type InventoryResponse struct {
	DailyInventory []DailyInventoryPoint `json:"daily_inventory"`
	TotalAccepted  int                   `json:"total_accepted"`
	FetchedAt      time.Time             `json:"fetched_at"`

	// Partial is true when the serving row cap truncated the upstream
	// fetch. Truncation is not an error, but consumers must be able to
	// tell a truncated snapshot from a complete one.
	Partial bool `json:"partial"`
}

// LeadSummary is a presentation-friendly projection of a ResolvedState,
// joined against the metagraph for identity fields.
type LeadSummary struct {
	Hotkey          string    `json:"hotkey"`
	Name            string    `json:"name,omitempty"`
	Decision        Decision  `json:"decision"`
	LatestTimestamp time.Time `json:"latest_timestamp"`
	FirstSeenDate   string    `json:"first_seen_date"`

	// UID is the metagraph uid for the hotkey, or -1 if not registered.
	UID int `json:"uid"`

	// Active is true when the hotkey is currently active on the metagraph.
	Active bool `json:"active"`
}

// SearchQuery is the parsed filter set of GET /v1/leads/search.
type SearchQuery struct {
	// Hotkey and UID are identity filters. When either is present it
	// drives the upstream query, since identity filters are far more
	// selective than date or free-text filters.
	Hotkey string
	UID    int // -1 when absent

	// Date restricts results to leads whose winning event fell on this
	// UTC calendar date (2006-01-02).
	Date string

	// Text is a case-insensitive substring match against hotkey and name,
	// applied in-process after resolution.
	Text string

	Limit int
}
