// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries the HTTP-level knobs for the API.
type RouterConfig struct {
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow time.Duration
}

// DefaultRouterConfig returns the stock middleware settings.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   100,
		RateLimitWindow: time.Minute,
	}
}

// Router wires handlers to routes.
type Router struct {
	cfg      RouterConfig
	handlers *Handlers
}

// NewRouter creates a router for the given handler set.
func NewRouter(cfg RouterConfig, handlers *Handlers) *Router {
	if cfg.RateLimitReqs <= 0 {
		cfg.RateLimitReqs = 100
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	return &Router{cfg: cfg, handlers: handlers}
}

// Setup builds the full route tree.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))

	r.Get("/healthz", rt.handlers.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.Limit(
			rt.cfg.RateLimitReqs,
			rt.cfg.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))

		r.Post("/permissions/check", rt.handlers.CheckPermission)

		r.Route("/roles", func(r chi.Router) {
			r.Get("/", rt.handlers.ListRoles)
			r.Post("/", rt.handlers.CreateRole)
			r.Get("/{id}", rt.handlers.GetRole)
			r.Put("/{id}", rt.handlers.UpdateRole)
			r.Delete("/{id}", rt.handlers.DeleteRole)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", rt.handlers.QueryAudit)
			r.Get("/stats", rt.handlers.AuditStats)
			r.Get("/incidents", rt.handlers.SecurityIncidents)
			r.Post("/integrity", rt.handlers.ValidateIntegrity)
		})

		r.Route("/retention", func(r chi.Router) {
			r.Get("/policies", rt.handlers.ListPolicies)
			r.Post("/{policy}/run", rt.handlers.RunRetentionCycle)
			r.Post("/restore", rt.handlers.RestoreArchive)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/compliance", rt.handlers.ComplianceReport)
			r.Get("/standards/{standard}", rt.handlers.StandardReport)
			r.Get("/activity", rt.handlers.ActivityReport)
		})

		r.Get("/export", rt.handlers.Export)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", rt.handlers.ListAlerts)
			r.Get("/stats", rt.handlers.AlertStats)
			r.Post("/{id}/resolve", rt.handlers.ResolveAlert)
		})
	})

	return r
}
