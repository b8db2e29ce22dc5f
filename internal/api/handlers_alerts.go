// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/castellan/castellan/internal/alerting"
)

// ListAlerts handles GET /api/v1/alerts.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		respondError(w, http.StatusServiceUnavailable, "ALERTING_DISABLED", "Alerting is disabled", nil)
		return
	}
	alerts, err := h.alerts.GetActiveAlerts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ALERT_ERROR", "Failed to list alerts", err)
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}

// AlertStats handles GET /api/v1/alerts/stats.
func (h *Handlers) AlertStats(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		respondError(w, http.StatusServiceUnavailable, "ALERTING_DISABLED", "Alerting is disabled", nil)
		return
	}
	stats, err := h.alerts.GetSecurityStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ALERT_ERROR", "Failed to compute alert statistics", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// ResolveAlertRequest is the body of POST /api/v1/alerts/{id}/resolve.
type ResolveAlertRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=resolved false_positive"`
	ResolvedBy string `json:"resolved_by" validate:"required"`
	Notes      string `json:"notes"`
}

// ResolveAlert handles POST /api/v1/alerts/{id}/resolve.
func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		respondError(w, http.StatusServiceUnavailable, "ALERTING_DISABLED", "Alerting is disabled", nil)
		return
	}
	var req ResolveAlertRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	alert, err := h.alerts.ResolveAlert(r.Context(), chi.URLParam(r, "id"),
		alerting.Status(req.Resolution), req.ResolvedBy, req.Notes)
	switch {
	case errors.Is(err, alerting.ErrAlertNotFound):
		respondError(w, http.StatusNotFound, "ALERT_NOT_FOUND", "Alert not found", nil)
		return
	case errors.Is(err, alerting.ErrAlertResolved):
		respondError(w, http.StatusConflict, "ALERT_RESOLVED", "Alert is already resolved", nil)
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "ALERT_ERROR", err.Error(), err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}
