// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
)

// mockHTTPClient records the request and replays a canned response.
type mockHTTPClient struct {
	lastReq *http.Request
	status  int
	body    string
	err     error
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
		Header:     make(http.Header),
	}, nil
}

func testClient(mock *mockHTTPClient) *Client {
	return NewClient(Config{
		BaseURL: "https://example.supabase.co",
		APIKey:  "test-key",
		Table:   "lead_events",
	}, mock)
}

func TestClientQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes a page and sets auth headers", func(t *testing.T) {
		mock := &mockHTTPClient{
			status: http.StatusOK,
			body: `[
				{"id":"1","hotkey":"5abc","created_at":"2024-01-01T10:00:00Z","event_type":"lead_decision","decision":"ALLOW","name":"miner-a"},
				{"id":"2","hotkey":"5def","created_at":"2024-01-01T11:00:00Z","event_type":"lead_decision","decision":"DENY"}
			]`,
		}
		c := testClient(mock)

		events, err := c.Query(ctx, Filter{EventType: "lead_decision", NotNull: []string{"hotkey"}}, 0, 100)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("rows = %d, want 2", len(events))
		}
		if events[0].Hotkey != "5abc" || events[0].Decision != "ALLOW" {
			t.Errorf("unexpected first event: %+v", events[0])
		}

		if got := mock.lastReq.Header.Get("apikey"); got != "test-key" {
			t.Errorf("apikey header = %q", got)
		}
		if got := mock.lastReq.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization header = %q", got)
		}
	})

	t.Run("builds PostgREST query parameters", func(t *testing.T) {
		mock := &mockHTTPClient{status: http.StatusOK, body: `[]`}
		c := testClient(mock)

		filter := Filter{
			EventType: "lead_decision",
			NotNull:   []string{"hotkey"},
			Equals:    map[string]string{"hotkey": "5abc"},
		}
		if _, err := c.Query(ctx, filter, 200, 100); err != nil {
			t.Fatalf("Query failed: %v", err)
		}

		q := mock.lastReq.URL.Query()
		checks := map[string]string{
			"event_type": "eq.lead_decision",
			"hotkey":     "eq.5abc",
			"offset":     "200",
			"limit":      "100",
			"order":      "created_at.asc,id.asc",
		}
		for param, want := range checks {
			if got := q.Get(param); got != want {
				t.Errorf("param %s = %q, want %q", param, got, want)
			}
		}
		if mock.lastReq.URL.Path != "/rest/v1/lead_events" {
			t.Errorf("path = %q", mock.lastReq.URL.Path)
		}
	})

	t.Run("clamps limit to the upstream cap", func(t *testing.T) {
		mock := &mockHTTPClient{status: http.StatusOK, body: `[]`}
		c := testClient(mock)

		if _, err := c.Query(ctx, Filter{}, 0, 5000); err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if got := mock.lastReq.URL.Query().Get("limit"); got != "1000" {
			t.Errorf("limit = %q, want clamped to 1000", got)
		}
	})

	t.Run("transport error wraps ErrUpstreamUnavailable", func(t *testing.T) {
		mock := &mockHTTPClient{err: errors.New("connection refused")}
		c := testClient(mock)

		_, err := c.Query(ctx, Filter{}, 0, 100)
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
		}
	})

	t.Run("non-200 wraps ErrUpstreamUnavailable", func(t *testing.T) {
		mock := &mockHTTPClient{status: http.StatusServiceUnavailable, body: "over capacity"}
		c := testClient(mock)

		_, err := c.Query(ctx, Filter{}, 0, 100)
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
		}
	})

	t.Run("malformed body wraps ErrUpstreamUnavailable", func(t *testing.T) {
		mock := &mockHTTPClient{status: http.StatusOK, body: `{"not":"a list"}`}
		c := testClient(mock)

		_, err := c.Query(ctx, Filter{}, 0, 100)
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
		}
	})
}
