// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolve

import (
	"strings"

	"github.com/sn71/leadscope/services/leads/datatypes"
)

// Synonym tables for raw decision strings. Matching is case-insensitive and
// exact after trimming whitespace; anything unmapped resolves to Pending.
var (
	acceptedSynonyms = map[string]bool{
		"allow":    true,
		"allowed":  true,
		"accept":   true,
		"accepted": true,
		"approve":  true,
		"approved": true,
	}

	rejectedSynonyms = map[string]bool{
		"deny":     true,
		"denied":   true,
		"reject":   true,
		"rejected": true,
	}
)

// ClassifyDecision maps a raw upstream decision string onto the closed
// Decision enum.
//
// # Description
//
// The upstream log stores free-form decision strings written by several
// producers ("ALLOW", "Approved", "deny", ...). This function is the single
// place that interprets them. An unmapped string is DecisionPending by
// contract, never an error: new producers must not break resolution.
//
// # Inputs
//
//   - raw: The raw decision string from the event log.
//
// # Outputs
//
//   - datatypes.Decision: Accepted, Rejected, or Pending.
func ClassifyDecision(raw string) datatypes.Decision {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case acceptedSynonyms[normalized]:
		return datatypes.DecisionAccepted
	case rejectedSynonyms[normalized]:
		return datatypes.DecisionRejected
	default:
		return datatypes.DecisionPending
	}
}
