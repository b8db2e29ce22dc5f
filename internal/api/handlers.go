// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/castellan/castellan/internal/alerting"
	"github.com/castellan/castellan/internal/audit"
	"github.com/castellan/castellan/internal/compliance"
	"github.com/castellan/castellan/internal/rbac"
	"github.com/castellan/castellan/internal/retention"
)

// Handlers bundles the core services behind the HTTP surface.
type Handlers struct {
	evaluator *rbac.Evaluator
	registry  *rbac.Registry
	auditor   *audit.Service
	retention *retention.Manager
	reports   *compliance.Generator
	alerts    *alerting.System

	// maxQueryLimit caps audit query page sizes.
	maxQueryLimit int
}

// NewHandlers creates the handler set. alerts may be nil when alerting is
// disabled; its routes then return 503.
func NewHandlers(evaluator *rbac.Evaluator, registry *rbac.Registry, auditor *audit.Service,
	ret *retention.Manager, reports *compliance.Generator, alerts *alerting.System, maxQueryLimit int) *Handlers {
	if maxQueryLimit <= 0 {
		maxQueryLimit = 1000
	}
	return &Handlers{
		evaluator:     evaluator,
		registry:      registry,
		auditor:       auditor,
		retention:     ret,
		reports:       reports,
		alerts:        alerts,
		maxQueryLimit: maxQueryLimit,
	}
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// getIntParam extracts an integer query parameter with a default.
func getIntParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// getTimeParam extracts an RFC3339 query parameter, nil when absent or
// malformed.
func getTimeParam(r *http.Request, name string) *time.Time {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// mustDetails encodes an audit details payload. The maps passed here only
// hold strings and numbers, so encoding cannot fail.
func mustDetails(v map[string]interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// netContext extracts the caller's network context for audit entries.
func netContext(r *http.Request) audit.Context {
	return audit.Context{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}
