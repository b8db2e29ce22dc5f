// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package api

import (
	"net/http"
	"strconv"

	"github.com/castellan/castellan/internal/audit"
	"github.com/castellan/castellan/internal/logging"
)

// QueryAudit handles GET /api/v1/audit.
// Filters arrive as query parameters; actions and severities repeat.
func (h *Handlers) QueryAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := audit.QueryFilter{
		Actions:        q["action"],
		ActionPrefixes: q["action_prefix"],
		Resource:       q.Get("resource"),
		ResourceID:     q.Get("resource_id"),
		StartTime:      getTimeParam(r, "start_time"),
		EndTime:        getTimeParam(r, "end_time"),
		Limit:          getIntParam(r, "limit", 100),
		Offset:         getIntParam(r, "offset", 0),
		OrderDesc:      q.Get("order") != "asc",
	}
	for _, s := range q["severity"] {
		filter.Severities = append(filter.Severities, audit.Severity(s))
	}
	if v := q.Get("user_id"); v != "" {
		filter.UserID = &v
	}
	if v := q.Get("archived"); v != "" {
		if archived, err := strconv.ParseBool(v); err == nil {
			filter.Archived = &archived
		}
	}
	if filter.Limit < 1 || filter.Limit > h.maxQueryLimit {
		filter.Limit = h.maxQueryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	entries, err := h.auditor.Query(ctx, filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "AUDIT_ERROR", "Failed to query audit trail", err)
		return
	}
	total, err := h.auditor.Count(ctx, filter)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to count audit entries")
		total = int64(len(entries))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// AuditStats handles GET /api/v1/audit/stats.
func (h *Handlers) AuditStats(w http.ResponseWriter, r *http.Request) {
	windowDays := getIntParam(r, "window_days", 30)
	stats, err := h.auditor.GetStats(r.Context(), windowDays)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "AUDIT_ERROR", "Failed to compute audit statistics", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// SecurityIncidents handles GET /api/v1/audit/incidents.
func (h *Handlers) SecurityIncidents(w http.ResponseWriter, r *http.Request) {
	windowDays := getIntParam(r, "window_days", 30)
	incidents, err := h.auditor.GetSecurityIncidents(r.Context(), windowDays)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "AUDIT_ERROR", "Failed to aggregate security incidents", err)
		return
	}
	respondJSON(w, http.StatusOK, incidents)
}

// ValidateIntegrity handles POST /api/v1/audit/integrity.
func (h *Handlers) ValidateIntegrity(w http.ResponseWriter, r *http.Request) {
	sampleLimit := getIntParam(r, "sample_limit", 1000)
	result, err := h.auditor.ValidateIntegrity(r.Context(), sampleLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "AUDIT_ERROR", "Integrity validation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
