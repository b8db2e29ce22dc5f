// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package rbac

import (
	"time"

	"github.com/castellan/castellan/internal/metrics"
)

// EvaluatorConfig holds configuration for the permission evaluator.
type EvaluatorConfig struct {
	// CacheEnabled enables the decision cache.
	CacheEnabled bool `json:"cache_enabled" koanf:"cache_enabled"`

	// CacheTTL is how long decisions stay cached.
	CacheTTL time.Duration `json:"cache_ttl" koanf:"cache_ttl"`
}

// DefaultEvaluatorConfig returns sensible defaults.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		CacheEnabled: true,
		CacheTTL:     time.Minute,
	}
}

// Evaluator answers permission questions against a Registry. Denial is a
// normal result; Evaluate never fails on missing data.
type Evaluator struct {
	registry *Registry
	cache    *decisionCache
}

// NewEvaluator creates an evaluator bound to a registry. When caching is
// enabled, a registry mutation hook keeps the cache consistent with role
// changes.
func NewEvaluator(registry *Registry, cfg EvaluatorConfig) *Evaluator {
	e := &Evaluator{registry: registry}
	if cfg.CacheEnabled {
		e.cache = newDecisionCache(cfg.CacheTTL)
		registry.OnMutation(func(roleID string) {
			e.cache.invalidateRole(roleID)
			metrics.RecordDecisionCacheInvalidation()
		})
	}
	return e
}

// Close releases the evaluator's cache resources.
func (e *Evaluator) Close() {
	if e.cache != nil {
		e.cache.stop()
	}
}

// Evaluate decides whether the actor may perform the request. Inactive
// actors are always denied. An unknown role denies with role_not_found:
// absence of data never fails open.
//
// The decision cache is keyed by role, not actor: the actor-dependent checks
// (active flag) run before the cache and are never cached.
func (e *Evaluator) Evaluate(actor Actor, req Request) Decision {
	start := time.Now()

	d, cacheHit := e.evaluate(actor, req)

	metrics.RecordDecision(actor.Role, req.Resource, req.Action, d.Allowed, cacheHit, time.Since(start))
	return d
}

func (e *Evaluator) evaluate(actor Actor, req Request) (Decision, bool) {
	if !actor.Active {
		return deny(ReasonActorInactive), false
	}

	if e.cache != nil {
		if d, ok := e.cache.get(actor.Role, req.Resource, req.Action, req.Scope); ok {
			return d, true
		}
	}

	role, err := e.registry.Get(actor.Role)
	if err != nil {
		// Not cached: the role may be created momentarily and a stale
		// negative entry would outlive the mutation hook.
		return deny(ReasonRoleNotFound), false
	}

	d := matchPermissions(role.Permissions, req)
	if e.cache != nil {
		e.cache.set(actor.Role, req.Resource, req.Action, req.Scope, d)
	}
	return d, false
}

// matchPermissions applies the grammar in precedence order: a full wildcard
// allows outright, then exact resource:action grants, then resource
// wildcards. A grant that covers the resource and action but not the
// requested scope denies with insufficient_scope rather than
// no_matching_permission.
func matchPermissions(perms []Permission, req Request) Decision {
	scopeBlocked := false

	for _, p := range perms {
		switch p.Kind {
		case MatchAll:
			return allow()
		case MatchExact:
			if p.Resource != req.Resource || p.Action != req.Action {
				continue
			}
			if p.Scope.Satisfies(req.Scope) {
				return allow()
			}
			scopeBlocked = true
		case MatchResource:
			if p.Resource != req.Resource {
				continue
			}
			if p.Scope.Satisfies(req.Scope) {
				return allow()
			}
			scopeBlocked = true
		}
	}

	if scopeBlocked {
		return deny(ReasonInsufficientScope)
	}
	return deny(ReasonNoMatch)
}

// CacheLen reports the number of cached decisions, for observability.
func (e *Evaluator) CacheLen() int {
	if e.cache == nil {
		return 0
	}
	return e.cache.len()
}
