// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package rbac

import (
	"testing"
	"time"
)

func newTestEvaluator(t *testing.T) (*Registry, *Evaluator) {
	t.Helper()
	registry := NewRegistry()
	eval := NewEvaluator(registry, DefaultEvaluatorConfig())
	t.Cleanup(eval.Close)
	return registry, eval
}

func TestEvaluateBuiltInRoles(t *testing.T) {
	_, eval := newTestEvaluator(t)

	tests := []struct {
		name    string
		role    string
		req     Request
		allowed bool
		reason  DenialReason
	}{
		{
			name:    "viewer reads products",
			role:    RoleViewer,
			req:     Request{Resource: "products", Action: "read", Scope: ScopeAll},
			allowed: true,
		},
		{
			name:   "viewer cannot delete users",
			role:   RoleViewer,
			req:    Request{Resource: "users", Action: "delete", Scope: ScopeAll},
			reason: ReasonNoMatch,
		},
		{
			name:    "editor updates own page",
			role:    RoleEditor,
			req:     Request{Resource: "pages", Action: "update", Scope: ScopeOwn},
			allowed: true,
		},
		{
			name:   "editor cannot update all pages",
			role:   RoleEditor,
			req:    Request{Resource: "pages", Action: "update", Scope: ScopeAll},
			reason: ReasonInsufficientScope,
		},
		{
			name:    "moderator resource wildcard on comments",
			role:    RoleModerator,
			req:     Request{Resource: "comments", Action: "delete", Scope: ScopeAll},
			allowed: true,
		},
		{
			name:    "superadmin full wildcard",
			role:    RoleSuperAdmin,
			req:     Request{Resource: "anything", Action: "whatsoever", Scope: ScopeAll},
			allowed: true,
		},
		{
			name:   "unknown role denies",
			role:   "ghost",
			req:    Request{Resource: "pages", Action: "read", Scope: ScopeAll},
			reason: ReasonRoleNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := Actor{ID: "u1", Role: tt.role, Active: true}
			d := eval.Evaluate(actor, tt.req)
			if d.Allowed != tt.allowed {
				t.Fatalf("Evaluate() allowed = %v, want %v (reason %s)", d.Allowed, tt.allowed, d.Reason)
			}
			if !tt.allowed && d.Reason != tt.reason {
				t.Errorf("Evaluate() reason = %s, want %s", d.Reason, tt.reason)
			}
		})
	}
}

func TestEvaluateInactiveActor(t *testing.T) {
	_, eval := newTestEvaluator(t)

	actor := Actor{ID: "u1", Role: RoleSuperAdmin, Active: false}
	d := eval.Evaluate(actor, Request{Resource: "pages", Action: "read", Scope: ScopeAll})
	if d.Allowed {
		t.Fatal("inactive actor was allowed")
	}
	if d.Reason != ReasonActorInactive {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonActorInactive)
	}
}

func TestEvaluateCachesDecisions(t *testing.T) {
	_, eval := newTestEvaluator(t)

	actor := Actor{ID: "u1", Role: RoleViewer, Active: true}
	req := Request{Resource: "pages", Action: "read", Scope: ScopeAll}

	eval.Evaluate(actor, req)
	if eval.CacheLen() != 1 {
		t.Fatalf("cache len = %d after first evaluation, want 1", eval.CacheLen())
	}
	d := eval.Evaluate(actor, req)
	if !d.Allowed {
		t.Error("cached decision differs from fresh one")
	}
}

func TestEvaluateCacheInvalidatedOnRoleChange(t *testing.T) {
	registry, eval := newTestEvaluator(t)

	if _, err := registry.CreateRole("limited", "Limited", "", 1, []string{"pages:read"}); err != nil {
		t.Fatalf("CreateRole error: %v", err)
	}

	actor := Actor{ID: "u1", Role: "limited", Active: true}
	req := Request{Resource: "pages", Action: "update", Scope: ScopeOwn}

	if d := eval.Evaluate(actor, req); d.Allowed {
		t.Fatal("limited role allowed update before grant")
	}

	if _, err := registry.UpdateRole("limited", RoleUpdate{
		Grants: []string{"pages:read", "pages:update:own"},
	}); err != nil {
		t.Fatalf("UpdateRole error: %v", err)
	}

	if d := eval.Evaluate(actor, req); !d.Allowed {
		t.Errorf("stale denial survived role update: reason %s", d.Reason)
	}
}

func TestEvaluateUnknownRoleNotCached(t *testing.T) {
	registry, eval := newTestEvaluator(t)

	actor := Actor{ID: "u1", Role: "latecomer", Active: true}
	req := Request{Resource: "pages", Action: "read", Scope: ScopeAll}

	if d := eval.Evaluate(actor, req); d.Reason != ReasonRoleNotFound {
		t.Fatalf("reason = %s, want %s", d.Reason, ReasonRoleNotFound)
	}

	if _, err := registry.CreateRole("latecomer", "Latecomer", "", 1, []string{"pages:read"}); err != nil {
		t.Fatalf("CreateRole error: %v", err)
	}
	if d := eval.Evaluate(actor, req); !d.Allowed {
		t.Errorf("role created after first check still denied: reason %s", d.Reason)
	}
}

func TestEvaluatorWithoutCache(t *testing.T) {
	registry := NewRegistry()
	eval := NewEvaluator(registry, EvaluatorConfig{CacheEnabled: false})
	defer eval.Close()

	actor := Actor{ID: "u1", Role: RoleViewer, Active: true}
	d := eval.Evaluate(actor, Request{Resource: "pages", Action: "read", Scope: ScopeAll})
	if !d.Allowed {
		t.Fatalf("uncached evaluation denied: %s", d.Reason)
	}
	if eval.CacheLen() != 0 {
		t.Errorf("cache len = %d with caching disabled", eval.CacheLen())
	}
}

func TestEvaluateScopeBlockedOnResourceMismatchStillNoMatch(t *testing.T) {
	registry := NewRegistry()
	eval := NewEvaluator(registry, EvaluatorConfig{CacheEnabled: true, CacheTTL: time.Minute})
	defer eval.Close()

	if _, err := registry.CreateRole("narrow", "Narrow", "", 1, []string{"media:update:own"}); err != nil {
		t.Fatalf("CreateRole error: %v", err)
	}
	actor := Actor{ID: "u1", Role: "narrow", Active: true}

	// Different resource entirely: no_matching_permission, not insufficient_scope.
	d := eval.Evaluate(actor, Request{Resource: "pages", Action: "update", Scope: ScopeAll})
	if d.Reason != ReasonNoMatch {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonNoMatch)
	}
}
