// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/castellan/castellan/internal/audit"
	"github.com/castellan/castellan/internal/logging"
	"github.com/castellan/castellan/internal/rbac"
)

// CheckPermissionRequest is the body of POST /api/v1/permissions/check.
type CheckPermissionRequest struct {
	Actor    rbac.Actor `json:"actor" validate:"required"`
	Resource string     `json:"resource" validate:"required"`
	Action   string     `json:"action" validate:"required"`
	Scope    rbac.Scope `json:"scope" validate:"required,oneof=own all"`
}

// CheckPermission handles POST /api/v1/permissions/check.
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req CheckPermissionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	rbacReq := rbac.Request{Resource: req.Resource, Action: req.Action, Scope: req.Scope}
	decision := h.evaluator.Evaluate(req.Actor, rbacReq)

	if err := h.auditor.LogPermissionCheck(r.Context(), req.Actor, rbacReq, decision, netContext(r)); err != nil {
		logging.Warn().Err(err).Str("actor_id", req.Actor.ID).Msg("Failed to audit permission check")
	}

	respondJSON(w, http.StatusOK, decision)
}

// ListRoles handles GET /api/v1/roles.
func (h *Handlers) ListRoles(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.registry.List())
}

// GetRole handles GET /api/v1/roles/{id}.
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "ROLE_NOT_FOUND", "Role not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, role)
}

// CreateRoleRequest is the body of POST /api/v1/roles.
type CreateRoleRequest struct {
	ID          string   `json:"id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Rank        int      `json:"rank" validate:"required,gt=0"`
	Grants      []string `json:"grants" validate:"required,min=1"`
}

// CreateRole handles POST /api/v1/roles.
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	role, err := h.registry.CreateRole(req.ID, req.Name, req.Description, req.Rank, req.Grants)
	switch {
	case errors.Is(err, rbac.ErrRoleExists):
		respondError(w, http.StatusConflict, "ROLE_EXISTS", "A role with that id already exists", nil)
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "INVALID_ROLE", err.Error(), err)
		return
	}

	h.logRoleMutation(r, "role_created", role.ID)
	respondJSON(w, http.StatusCreated, role)
}

// UpdateRoleRequest is the body of PUT /api/v1/roles/{id}. Nil fields stay
// unchanged.
type UpdateRoleRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Rank        *int     `json:"rank,omitempty"`
	Grants      []string `json:"grants,omitempty"`
}

// UpdateRole handles PUT /api/v1/roles/{id}.
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoleRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	role, err := h.registry.UpdateRole(id, rbac.RoleUpdate{
		Name:        req.Name,
		Description: req.Description,
		Rank:        req.Rank,
		Grants:      req.Grants,
	})
	switch {
	case errors.Is(err, rbac.ErrRoleNotFound):
		respondError(w, http.StatusNotFound, "ROLE_NOT_FOUND", "Role not found", nil)
		return
	case errors.Is(err, rbac.ErrBuiltInImmutable):
		respondError(w, http.StatusForbidden, "BUILTIN_IMMUTABLE", "Built-in roles only allow permission changes", nil)
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "INVALID_ROLE", err.Error(), err)
		return
	}

	h.logRoleMutation(r, "role_updated", id)
	respondJSON(w, http.StatusOK, role)
}

// DeleteRole handles DELETE /api/v1/roles/{id}.
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.registry.DeleteRole(id)
	switch {
	case errors.Is(err, rbac.ErrRoleNotFound):
		respondError(w, http.StatusNotFound, "ROLE_NOT_FOUND", "Role not found", nil)
		return
	case errors.Is(err, rbac.ErrBuiltInImmutable):
		respondError(w, http.StatusForbidden, "BUILTIN_IMMUTABLE", "Built-in roles cannot be deleted", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "ROLE_ERROR", "Failed to delete role", err)
		return
	}

	h.logRoleMutation(r, "role_deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// logRoleMutation records role definition changes on the audit trail.
func (h *Handlers) logRoleMutation(r *http.Request, change, roleID string) {
	netctx := netContext(r)
	err := h.auditor.Log(r.Context(), &audit.Entry{
		Action:     audit.ActionSettingsChanged,
		Resource:   "roles",
		ResourceID: roleID,
		Details:    mustDetails(map[string]interface{}{"change": change}),
		Severity:   audit.SeverityMedium,
		IPAddress:  netctx.IPAddress,
		UserAgent:  netctx.UserAgent,
	})
	if err != nil {
		logging.Warn().Err(err).Str("role_id", roleID).Msg("Failed to audit role mutation")
	}
}
