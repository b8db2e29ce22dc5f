// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/castellan/castellan/internal/retention"
)

// ListPolicies handles GET /api/v1/retention/policies.
func (h *Handlers) ListPolicies(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.retention.Policies())
}

// RunRetentionCycle handles POST /api/v1/retention/{policy}/run.
func (h *Handlers) RunRetentionCycle(w http.ResponseWriter, r *http.Request) {
	policy := chi.URLParam(r, "policy")

	result, err := h.retention.RunRetentionCycle(r.Context(), policy)
	switch {
	case errors.Is(err, retention.ErrPolicyNotFound):
		respondError(w, http.StatusNotFound, "POLICY_NOT_FOUND", "Unknown retention policy", nil)
		return
	case errors.Is(err, retention.ErrCycleRunning):
		respondError(w, http.StatusConflict, "CYCLE_RUNNING", "A cycle for this policy is already running", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "RETENTION_ERROR", "Retention cycle failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// RestoreRequest is the body of POST /api/v1/retention/restore.
type RestoreRequest struct {
	Path string `json:"path" validate:"required"`
}

// RestoreArchive handles POST /api/v1/retention/restore.
func (h *Handlers) RestoreArchive(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	result, err := h.retention.RestoreFromArchive(r.Context(), req.Path)
	switch {
	case errors.Is(err, retention.ErrChecksumMismatch):
		respondError(w, http.StatusUnprocessableEntity, "CHECKSUM_MISMATCH", "Archive payload does not match its checksum", err)
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "RESTORE_ERROR", "Failed to restore archive", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
