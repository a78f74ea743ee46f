// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP read API over the resolved lead
// pipeline. Handlers are thin: decode the query, call the provider, map
// errors to status codes. All domain logic lives behind Provider.
package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/sn71/leadscope/pkg/validation"
	"github.com/sn71/leadscope/services/leads/audit"
	"github.com/sn71/leadscope/services/leads/datatypes"
	"github.com/sn71/leadscope/services/leads/store"
)

var leadsTracer = otel.Tracer("leadscope.handlers")

// DefaultLimit caps list responses when the caller does not set one.
const DefaultLimit = 100

// MaxLimit is the hard ceiling on list responses.
const MaxLimit = 1000

// Provider is the read API the handlers serve. Implemented by the lead
// pipeline; faked in tests.
type Provider interface {
	// Inventory returns the daily accepted-lead inventory.
	Inventory(ctx context.Context) (datatypes.InventoryResponse, error)

	// Latest returns up to limit resolved leads, most recent first.
	Latest(ctx context.Context, limit int) ([]datatypes.LeadSummary, error)

	// Search returns resolved leads matching the query.
	Search(ctx context.Context, query datatypes.SearchQuery) ([]datatypes.LeadSummary, error)

	// Audit explains the discrepancy against an official accepted total.
	Audit(ctx context.Context, officialTotal int) (audit.Report, error)

	// ResolvedStates returns all resolved states sorted by hotkey, plus
	// whether the backing snapshot is partial.
	ResolvedStates(ctx context.Context) ([]datatypes.ResolvedState, bool, error)
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetInventory serves GET /v1/inventory.
//
// # Description
//
// Returns the daily new-accepted counts and running cumulative total. A 200
// with "partial": true means the backing snapshot hit the serving row cap;
// callers should treat the totals as a lower bound.
func GetInventory(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := leadsTracer.Start(c.Request.Context(), "handlers.GetInventory")
		defer span.End()

		inv, err := provider.Inventory(ctx)
		if err != nil {
			respondPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, inv)
	}
}

// GetLatestLeads serves GET /v1/leads/latest.
func GetLatestLeads(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := leadsTracer.Start(c.Request.Context(), "handlers.GetLatestLeads")
		defer span.End()

		limit, ok := parseLimit(c)
		if !ok {
			return
		}

		leads, err := provider.Latest(ctx, limit)
		if err != nil {
			respondPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"leads": leads, "count": len(leads)})
	}
}

// SearchLeads serves GET /v1/leads/search.
//
// # Description
//
// Accepts hotkey, uid, date (YYYY-MM-DD), and q (free text over hotkey and
// name) query parameters; all are optional and combine with AND. At least
// one filter must be present.
func SearchLeads(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := leadsTracer.Start(c.Request.Context(), "handlers.SearchLeads")
		defer span.End()

		limit, ok := parseLimit(c)
		if !ok {
			return
		}

		query := datatypes.SearchQuery{
			Hotkey: c.Query("hotkey"),
			UID:    -1,
			Date:   c.Query("date"),
			Text:   c.Query("q"),
			Limit:  limit,
		}
		if query.Hotkey != "" {
			if err := validation.ValidateHotkey(query.Hotkey); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if query.Date != "" {
			if err := validation.ValidateDate(query.Date); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if raw := c.Query("uid"); raw != "" {
			uid, err := strconv.Atoi(raw)
			if err != nil || uid < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "uid must be a non-negative integer"})
				return
			}
			query.UID = uid
		}
		if query.Hotkey == "" && query.UID < 0 && query.Date == "" && query.Text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at least one of hotkey, uid, date, q is required"})
			return
		}

		leads, err := provider.Search(ctx, query)
		if err != nil {
			respondPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"leads": leads, "count": len(leads)})
	}
}

// RunAudit serves GET /v1/audit.
//
// # Description
//
// Recomputes the accepted total from the full event log and explains the
// discrepancy against the official total passed as ?official=. Returns 409
// when the log could not be fetched in full, since an audit over partial
// data would manufacture discrepancies.
func RunAudit(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := leadsTracer.Start(c.Request.Context(), "handlers.RunAudit")
		defer span.End()

		raw := c.Query("official")
		if raw == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "official query parameter is required"})
			return
		}
		official, err := strconv.Atoi(raw)
		if err != nil || official < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "official must be a non-negative integer"})
			return
		}

		report, err := provider.Audit(ctx, official)
		if err != nil {
			if errors.Is(err, audit.ErrPartialData) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			respondPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// ExportLeadsCSV serves GET /v1/export/leads.csv.
//
// # Description
//
// Streams every resolved lead as CSV, sorted by hotkey. When the backing
// snapshot is partial the response carries X-Partial-Result: true.
func ExportLeadsCSV(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := leadsTracer.Start(c.Request.Context(), "handlers.ExportLeadsCSV")
		defer span.End()

		states, partial, err := provider.ResolvedStates(ctx)
		if err != nil {
			respondPipelineError(c, err)
			return
		}

		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="leads.csv"`)
		if partial {
			c.Header("X-Partial-Result", "true")
		}
		c.Status(http.StatusOK)

		w := csv.NewWriter(c.Writer)
		header := []string{"hotkey", "name", "source", "decision", "latest_timestamp",
			"winning_event_id", "first_seen_date", "ever_accepted"}
		if err := w.Write(header); err != nil {
			slog.Warn("csv export aborted", "error", err.Error())
			return
		}
		for _, st := range states {
			row := []string{
				st.Hotkey,
				st.Name,
				st.Source,
				string(st.Decision),
				st.LatestTimestamp.UTC().Format("2006-01-02T15:04:05Z"),
				st.WinningEventID,
				st.FirstSeenDate,
				strconv.FormatBool(st.EverAccepted),
			}
			if err := w.Write(row); err != nil {
				slog.Warn("csv export aborted", "error", err.Error())
				return
			}
		}
		w.Flush()
	}
}

// parseLimit reads ?limit= and applies the default and ceiling. Writes the
// 400 itself and returns ok=false on a malformed value.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return DefaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit, true
}

// respondPipelineError maps pipeline failures to status codes. Upstream
// outages surface as 502 so callers can distinguish them from local faults.
func respondPipelineError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrUpstreamUnavailable) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	slog.Error("lead pipeline failure", "error", err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
