// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metagraph reads the subnet metagraph snapshot: the mapping between
// hotkeys and uids plus per-hotkey activity signals. The snapshot comes from
// a sidecar endpoint on its own refresh cadence and is strictly read-only
// here; lead resolution only joins against it for presentation fields.
package metagraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultTTL is how long a fetched snapshot is reused before the next read
// refreshes it.
const DefaultTTL = 10 * time.Minute

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// wireSnapshot matches the sidecar's JSON envelope. The sidecar never fails
// a request outright: on error it returns empty maps plus an error string.
type wireSnapshot struct {
	HotkeyToUID  map[string]int     `json:"hotkeyToUid"`
	UIDToHotkey  map[string]string  `json:"uidToHotkey"`
	Incentives   map[string]float64 `json:"incentives"`
	IsValidator  map[string]bool    `json:"isValidator"`
	TotalNeurons int                `json:"totalNeurons"`
	Error        string             `json:"error"`
}

// Snapshot is an immutable view of the metagraph at fetch time.
type Snapshot struct {
	HotkeyToUID  map[string]int
	UIDToHotkey  map[int]string
	Incentives   map[string]float64
	Validators   map[string]bool
	TotalNeurons int
	FetchedAt    time.Time
}

// UID returns the uid registered for hotkey, or -1 if unregistered.
func (s Snapshot) UID(hotkey string) int {
	if uid, ok := s.HotkeyToUID[hotkey]; ok {
		return uid
	}
	return -1
}

// Active reports whether the hotkey is currently active on the subnet:
// either holding a validator permit or earning nonzero incentive.
func (s Snapshot) Active(hotkey string) bool {
	return s.Validators[hotkey] || s.Incentives[hotkey] > 0
}

// Client is a read-through cache over the metagraph sidecar.
//
// # Description
//
// Snapshot returns the cached snapshot while it is younger than the TTL and
// refreshes it otherwise. A failed refresh degrades to the last good
// snapshot (or an empty one on cold start) and logs; metagraph data is
// presentation enrichment, so its unavailability must never fail a read.
//
// # Thread Safety
//
// Safe for concurrent use.
type Client struct {
	endpoint string
	http     HTTPClient
	ttl      time.Duration

	mu        sync.Mutex
	snapshot  Snapshot
	haveValid bool
}

// NewClient creates a metagraph client. A nil httpClient uses
// http.DefaultClient; a non-positive ttl uses DefaultTTL.
func NewClient(endpoint string, httpClient HTTPClient, ttl time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{endpoint: endpoint, http: httpClient, ttl: ttl}
}

// Snapshot returns the current metagraph view, refreshing if expired.
func (c *Client) Snapshot(ctx context.Context) Snapshot {
	c.mu.Lock()
	cached := c.snapshot
	valid := c.haveValid && time.Since(cached.FetchedAt) < c.ttl
	c.mu.Unlock()

	// No endpoint configured means enrichment is disabled; serve whatever
	// we have (the empty snapshot) without logging.
	if valid || c.endpoint == "" {
		return cached
	}

	fresh, err := c.fetch(ctx)
	if err != nil {
		slog.Warn("metagraph refresh failed, serving last known snapshot",
			"error", err.Error(),
			"have_previous", c.haveValid,
		)
		return cached
	}

	c.mu.Lock()
	c.snapshot = fresh
	c.haveValid = true
	c.mu.Unlock()
	return fresh
}

func (c *Client) fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("building metagraph request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching metagraph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, fmt.Errorf("metagraph endpoint status %d: %s", resp.StatusCode, string(body))
	}

	var wire wireSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return Snapshot{}, fmt.Errorf("decoding metagraph: %w", err)
	}
	if wire.Error != "" {
		return Snapshot{}, fmt.Errorf("metagraph sidecar error: %s", wire.Error)
	}

	// uid keys arrive as JSON strings; convert once here.
	uidToHotkey := make(map[int]string, len(wire.UIDToHotkey))
	for raw, hotkey := range wire.UIDToHotkey {
		uid, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		uidToHotkey[uid] = hotkey
	}

	return Snapshot{
		HotkeyToUID:  wire.HotkeyToUID,
		UIDToHotkey:  uidToHotkey,
		Incentives:   wire.Incentives,
		Validators:   wire.IsValidator,
		TotalNeurons: wire.TotalNeurons,
		FetchedAt:    time.Now(),
	}, nil
}
