// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package leads

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sn71/leadscope/services/leads/audit"
	"github.com/sn71/leadscope/services/leads/cache"
	"github.com/sn71/leadscope/services/leads/datatypes"
	"github.com/sn71/leadscope/services/leads/inventory"
	"github.com/sn71/leadscope/services/leads/metagraph"
	"github.com/sn71/leadscope/services/leads/resolve"
	"github.com/sn71/leadscope/services/leads/store"
)

// Snapshot is the cached unit of the serving path: everything derived from
// one full fetch -> resolve -> aggregate pass. Replaced wholesale on every
// refresh, never patched.
type Snapshot struct {
	States        map[string]datatypes.ResolvedState
	Daily         []datatypes.DailyInventoryPoint
	TotalAccepted int
	Truncated     bool
	Malformed     int
	FetchedAt     time.Time
}

// Pipeline owns the serving-path dataflow and implements the read API
// consumed by the HTTP handlers.
//
// # Thread Safety
//
// Safe for concurrent use; all mutable state lives in the cache and the
// metagraph client, which carry their own locks.
type Pipeline struct {
	reader    *store.Reader
	filter    store.Filter
	rowCap    int
	tolerance int

	cache  *cache.FreshnessCache[Snapshot]
	loader *cache.Loader[Snapshot]
	meta   *metagraph.Client
	clock  cache.Clock
}

// NewPipeline wires the serving path together.
func NewPipeline(reader *store.Reader, filter store.Filter, rowCap, tolerance int,
	freshCache *cache.FreshnessCache[Snapshot], meta *metagraph.Client, clock cache.Clock) *Pipeline {
	if clock == nil {
		clock = cache.SystemClock{}
	}
	return &Pipeline{
		reader:    reader,
		filter:    filter,
		rowCap:    rowCap,
		tolerance: tolerance,
		cache:     freshCache,
		loader:    cache.NewLoader(freshCache, time.Minute),
		meta:      meta,
		clock:     clock,
	}
}

// key is the cache key of the serving snapshot. Derived from the filter so
// two structurally identical queries collide by contract.
func (p *Pipeline) key() string {
	return p.filter.Key() + "|cap=" + strconv.Itoa(p.rowCap)
}

// buildSnapshot runs one fetch -> resolve -> aggregate pass.
func (p *Pipeline) buildSnapshot(ctx context.Context, maxRows int) (Snapshot, error) {
	fetched, err := p.reader.FetchAll(ctx, p.filter, maxRows)
	if err != nil {
		return Snapshot{}, err
	}

	resolved := resolve.Resolve(fetched.Events)
	daily, total := inventory.BuildDailyInventory(resolved.States)

	return Snapshot{
		States:        resolved.States,
		Daily:         daily,
		TotalAccepted: total,
		Truncated:     fetched.Truncated,
		Malformed:     resolved.Malformed,
		FetchedAt:     p.clock.Now(),
	}, nil
}

// snapshot returns the serving snapshot through the coalesced cache path.
func (p *Pipeline) snapshot(ctx context.Context) (Snapshot, error) {
	snap, _, err := p.loader.Load(ctx, p.key(), func(ctx context.Context) (Snapshot, error) {
		return p.buildSnapshot(ctx, p.rowCap)
	})
	return snap, err
}

// RefreshCycle rebuilds the serving snapshot and writes it to the cache.
// Used by the background refresher and the startup warm run.
func (p *Pipeline) RefreshCycle(ctx context.Context) error {
	snap, err := p.buildSnapshot(ctx, p.rowCap)
	if err != nil {
		return fmt.Errorf("refreshing serving snapshot: %w", err)
	}
	p.cache.Put(p.key(), snap)
	return nil
}

// Inventory returns the daily accepted-lead inventory.
func (p *Pipeline) Inventory(ctx context.Context) (datatypes.InventoryResponse, error) {
	snap, err := p.snapshot(ctx)
	if err != nil {
		return datatypes.InventoryResponse{}, err
	}
	return datatypes.InventoryResponse{
		DailyInventory: snap.Daily,
		TotalAccepted:  snap.TotalAccepted,
		FetchedAt:      snap.FetchedAt,
		Partial:        snap.Truncated,
	}, nil
}

// Latest returns up to limit resolved leads, most recent first.
func (p *Pipeline) Latest(ctx context.Context, limit int) ([]datatypes.LeadSummary, error) {
	snap, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	summaries := p.summarize(ctx, snap.States)
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Search returns resolved leads matching the query.
//
// Identity filters (hotkey, uid) are the most selective, so they drive the
// upstream query; date and free-text filters are applied in-process on the
// resolved states.
func (p *Pipeline) Search(ctx context.Context, query datatypes.SearchQuery) ([]datatypes.LeadSummary, error) {
	hotkey := query.Hotkey
	if hotkey == "" && query.UID >= 0 {
		hotkey = p.meta.Snapshot(ctx).UIDToHotkey[query.UID]
		if hotkey == "" {
			return []datatypes.LeadSummary{}, nil
		}
	}

	var states map[string]datatypes.ResolvedState
	if hotkey != "" {
		filter := p.filter
		filter.Equals = map[string]string{"hotkey": hotkey}
		for col, val := range p.filter.Equals {
			if col != "hotkey" {
				filter.Equals[col] = val
			}
		}
		fetched, err := p.reader.FetchAll(ctx, filter, p.rowCap)
		if err != nil {
			return nil, err
		}
		states = resolve.Resolve(fetched.Events).States
	} else {
		snap, err := p.snapshot(ctx)
		if err != nil {
			return nil, err
		}
		states = snap.States
	}

	filtered := make(map[string]datatypes.ResolvedState)
	needle := strings.ToLower(query.Text)
	for hk, st := range states {
		if query.Date != "" && st.FirstSeenDate != query.Date {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(st.Hotkey), needle) &&
			!strings.Contains(strings.ToLower(st.Name), needle) {
			continue
		}
		filtered[hk] = st
	}

	summaries := p.summarize(ctx, filtered)
	if query.Limit > 0 && len(summaries) > query.Limit {
		summaries = summaries[:query.Limit]
	}
	return summaries, nil
}

// Audit recomputes the accepted total from an uncapped fetch and explains
// the discrepancy against the official total. Diagnostic path: aborts on
// any upstream failure rather than auditing partial data.
func (p *Pipeline) Audit(ctx context.Context, officialTotal int) (audit.Report, error) {
	snap, err := p.buildSnapshot(ctx, 0)
	if err != nil {
		return audit.Report{}, err
	}
	if snap.Truncated {
		return audit.Report{}, audit.ErrPartialData
	}
	return audit.Explain(snap.States, officialTotal, snap.TotalAccepted, p.tolerance), nil
}

// ResolvedStates returns the serving snapshot's states sorted by hotkey,
// plus whether the snapshot is partial. Used by the CSV export.
func (p *Pipeline) ResolvedStates(ctx context.Context) ([]datatypes.ResolvedState, bool, error) {
	snap, err := p.snapshot(ctx)
	if err != nil {
		return nil, false, err
	}

	states := make([]datatypes.ResolvedState, 0, len(snap.States))
	for _, st := range snap.States {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Hotkey < states[j].Hotkey
	})
	return states, snap.Truncated, nil
}

// summarize joins states against the metagraph and orders them most recent
// first, breaking timestamp ties by hotkey for stable output.
func (p *Pipeline) summarize(ctx context.Context, states map[string]datatypes.ResolvedState) []datatypes.LeadSummary {
	meta := p.meta.Snapshot(ctx)

	summaries := make([]datatypes.LeadSummary, 0, len(states))
	for _, st := range states {
		summaries = append(summaries, datatypes.LeadSummary{
			Hotkey:          st.Hotkey,
			Name:            st.Name,
			Decision:        st.Decision,
			LatestTimestamp: st.LatestTimestamp,
			FirstSeenDate:   st.FirstSeenDate,
			UID:             meta.UID(st.Hotkey),
			Active:          meta.Active(st.Hotkey),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].LatestTimestamp.Equal(summaries[j].LatestTimestamp) {
			return summaries[i].LatestTimestamp.After(summaries[j].LatestTimestamp)
		}
		return summaries[i].Hotkey < summaries[j].Hotkey
	})
	return summaries
}
