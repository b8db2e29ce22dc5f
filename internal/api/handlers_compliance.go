// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/castellan/castellan/internal/compliance"
	"github.com/castellan/castellan/internal/logging"
)

// complianceWindow resolves the report period from query parameters,
// defaulting to the last 30 days.
func complianceWindow(r *http.Request) (time.Time, time.Time) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if t := getTimeParam(r, "start"); t != nil {
		start = *t
	}
	if t := getTimeParam(r, "end"); t != nil {
		end = *t
	}
	return start, end
}

// ComplianceReport handles GET /api/v1/reports/compliance.
func (h *Handlers) ComplianceReport(w http.ResponseWriter, r *http.Request) {
	start, end := complianceWindow(r)
	criteria := compliance.Criteria{
		Start:           start,
		End:             end,
		Actions:         r.URL.Query()["action"],
		Resources:       r.URL.Query()["resource"],
		IncludeFailures: r.URL.Query().Get("include_failures") != "false",
	}
	if v := r.URL.Query().Get("user_id"); v != "" {
		criteria.UserID = &v
	}
	if !end.After(start) {
		respondError(w, http.StatusBadRequest, "INVALID_PERIOD", "end must be after start", nil)
		return
	}

	report, err := h.reports.GenerateComplianceReport(r.Context(), criteria)
	if errors.Is(err, compliance.ErrStoreUnavailable) {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Audit store is temporarily unavailable", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "REPORT_ERROR", "Failed to generate compliance report", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// StandardReport handles GET /api/v1/reports/standards/{standard}.
func (h *Handlers) StandardReport(w http.ResponseWriter, r *http.Request) {
	standard, err := compliance.ParseStandard(chi.URLParam(r, "standard"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "UNKNOWN_STANDARD", err.Error(), nil)
		return
	}

	report, err := h.reports.GenerateSecurityStandardReport(r.Context(), standard)
	if errors.Is(err, compliance.ErrStoreUnavailable) {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Audit store is temporarily unavailable", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "REPORT_ERROR", "Failed to assess standard", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// ActivityReport handles GET /api/v1/reports/activity.
func (h *Handlers) ActivityReport(w http.ResponseWriter, r *http.Request) {
	start, end := complianceWindow(r)
	if !end.After(start) {
		respondError(w, http.StatusBadRequest, "INVALID_PERIOD", "end must be after start", nil)
		return
	}

	reports, err := h.reports.GenerateUserActivityReports(r.Context(), start, end)
	if errors.Is(err, compliance.ErrStoreUnavailable) {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Audit store is temporarily unavailable", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "REPORT_ERROR", "Failed to generate activity reports", err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

// Export handles GET /api/v1/export. The payload is streamed raw with a
// download disposition, not wrapped in the JSON envelope.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	format := compliance.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = compliance.FormatJSON
	}

	criteria := compliance.ExportCriteria{
		Start:     getTimeParam(r, "start"),
		End:       getTimeParam(r, "end"),
		Actions:   r.URL.Query()["action"],
		Resources: r.URL.Query()["resource"],
		Format:    format,
	}
	if v := r.URL.Query().Get("user_id"); v != "" {
		criteria.UserID = &v
	}

	result, err := h.reports.ExportAuditTrail(r.Context(), criteria)
	if errors.Is(err, compliance.ErrStoreUnavailable) {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Audit store is temporarily unavailable", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "EXPORT_ERROR", err.Error(), err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		logging.Warn().Err(err).Msg("Failed to write export payload")
	}
}
