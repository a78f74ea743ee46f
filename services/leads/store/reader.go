// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"log/slog"

	"github.com/sn71/leadscope/services/leads/datatypes"
)

// Querier is the single-page query surface the Reader paginates over.
// Satisfied by *Client; tests substitute a fake.
type Querier interface {
	Query(ctx context.Context, filter Filter, offset, limit int) ([]datatypes.Event, error)
}

// FetchResult is the materialized outcome of a paginated fetch.
type FetchResult struct {
	// Events holds all rows fetched, in upstream order.
	Events []datatypes.Event

	// Truncated is true when a row cap stopped the fetch before the
	// upstream result set was exhausted. Truncation is not an error, but
	// audits must never run on a truncated result.
	Truncated bool

	// Pages counts upstream calls made.
	Pages int
}

// Reader materializes the full matching event set despite the upstream
// per-call row cap, by advancing an offset window until exhaustion.
type Reader struct {
	querier  Querier
	pageSize int
}

// NewReader creates a reader fetching pageSize rows per call. Non-positive
// or oversized values clamp to MaxPageSize.
func NewReader(querier Querier, pageSize int) *Reader {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return &Reader{querier: querier, pageSize: pageSize}
}

// FetchAll fetches every event matching the filter.
//
// # Description
//
// Repeatedly requests [offset, offset+pageSize) windows, advancing offset by
// the number of rows returned, until a page comes back shorter than
// requested. The upstream total count is never assumed to be known in
// advance.
//
// maxRows > 0 caps the number of rows fetched (serving paths bound latency
// this way); the result is then marked Truncated if the cap was hit before
// exhaustion. Audit paths pass maxRows == 0 for an uncapped fetch.
//
// Any page failure aborts the fetch with ErrUpstreamUnavailable; no partial
// result is returned.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - filter: Upstream query predicate.
//   - maxRows: Row budget; 0 means unlimited.
//
// # Outputs
//
//   - FetchResult: All fetched events plus truncation metadata.
//   - error: Non-nil if any page request failed.
func (r *Reader) FetchAll(ctx context.Context, filter Filter, maxRows int) (FetchResult, error) {
	var result FetchResult
	offset := 0

	for {
		limit := r.pageSize
		if maxRows > 0 {
			remaining := maxRows - len(result.Events)
			if remaining <= 0 {
				result.Truncated = true
				break
			}
			if remaining < limit {
				limit = remaining
			}
		}

		page, err := r.querier.Query(ctx, filter, offset, limit)
		if err != nil {
			return FetchResult{}, err
		}
		result.Pages++
		result.Events = append(result.Events, page...)
		offset += len(page)

		if len(page) < limit {
			break
		}
	}

	if result.Truncated {
		slog.Info("paginated fetch truncated by row cap",
			"rows", len(result.Events),
			"pages", result.Pages,
		)
	}
	return result, nil
}
