// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store is the client for the upstream append-only event log, a
// Supabase (PostgREST) table reached over REST. The upstream enforces a hard
// per-call row cap, so full reads go through the paginated Reader.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/sn71/leadscope/services/leads/datatypes"
)

var storeTracer = otel.Tracer("leadscope.store")

// MaxPageSize is the hard per-call row cap enforced upstream. Requests with
// a larger limit are silently clamped by the server, so the client never
// asks for more.
const MaxPageSize = 1000

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Filter describes the upstream query predicate.
//
// The cache key for a query is derived from this struct via Key, so two
// structurally identical filters always collide by contract.
type Filter struct {
	// EventType filters rows by event_type equality.
	EventType string

	// NotNull lists columns that must be non-null (e.g. "hotkey").
	NotNull []string

	// Equals holds additional column equality filters.
	Equals map[string]string
}

// Key returns a deterministic encoding of the filter for use as a cache key.
// Columns are emitted in sorted order so map iteration cannot perturb it.
func (f Filter) Key() string {
	notNull := append([]string(nil), f.NotNull...)
	sort.Strings(notNull)

	cols := make([]string, 0, len(f.Equals))
	for c := range f.Equals {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	key := "type=" + f.EventType
	for _, c := range notNull {
		key += "|notnull=" + c
	}
	for _, c := range cols {
		key += "|" + c + "=" + f.Equals[c]
	}
	return key
}

// Config holds the upstream connection settings.
type Config struct {
	// BaseURL is the Supabase project URL, e.g. "https://x.supabase.co".
	BaseURL string

	// APIKey is sent as both the apikey header and the bearer token.
	APIKey string

	// Table is the event log table name.
	Table string

	// RequestsPerSecond rate-limits page fetches so refresh cycles cannot
	// hammer upstream. Zero disables limiting.
	RequestsPerSecond float64
}

// Client issues single-page queries against the upstream event store.
//
// # Thread Safety
//
// Safe for concurrent use.
type Client struct {
	config  Config
	http    HTTPClient
	limiter *rate.Limiter
}

// NewClient creates a store client. A nil httpClient uses
// http.DefaultClient.
func NewClient(cfg Config, httpClient HTTPClient) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{config: cfg, http: httpClient, limiter: limiter}
}

// Query fetches one page of events matching the filter.
//
// # Description
//
// Issues GET {base}/rest/v1/{table} with PostgREST operators: eq. for
// equality filters, not.is.null for required columns, plus offset/limit
// pagination. Rows are ordered by (created_at, id) ascending so that offset
// windows are stable across calls.
//
// Any transport or non-200 failure is wrapped in ErrUpstreamUnavailable.
//
// # Inputs
//
//   - ctx: Context for cancellation and the rate limiter.
//   - filter: Query predicate.
//   - offset: Row offset of the page.
//   - limit: Page size; clamped to MaxPageSize.
//
// # Outputs
//
//   - []datatypes.Event: The page, possibly shorter than limit (or empty)
//     at the end of the result set.
//   - error: Non-nil on any page failure.
func (c *Client) Query(ctx context.Context, filter Filter, offset, limit int) ([]datatypes.Event, error) {
	ctx, span := storeTracer.Start(ctx, "store.Query")
	defer span.End()
	span.SetAttributes(
		attribute.Int("offset", offset),
		attribute.Int("limit", limit),
	)

	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(filter, offset, limit), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, resp.StatusCode, string(body))
	}

	var events []datatypes.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("%w: decoding page: %v", ErrUpstreamUnavailable, err)
	}

	span.SetAttributes(attribute.Int("rows", len(events)))
	return events, nil
}

func (c *Client) buildURL(filter Filter, offset, limit int) string {
	params := url.Values{}
	params.Set("select", "*")
	if filter.EventType != "" {
		params.Set("event_type", "eq."+filter.EventType)
	}
	for _, col := range filter.NotNull {
		params.Set(col, "not.is.null")
	}
	for col, val := range filter.Equals {
		params.Set(col, "eq."+val)
	}
	params.Set("order", "created_at.asc,id.asc")
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))

	return fmt.Sprintf("%s/rest/v1/%s?%s", c.config.BaseURL, c.config.Table, params.Encode())
}
