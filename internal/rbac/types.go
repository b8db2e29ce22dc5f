// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package rbac

import (
	"fmt"
	"strings"
	"time"
)

// Scope is the breadth of a permission grant or request.
type Scope string

const (
	// ScopeOwn limits a grant to resources owned by the actor.
	ScopeOwn Scope = "own"

	// ScopeAll grants access to any resource.
	ScopeAll Scope = "all"
)

// Valid reports whether s is a recognized scope.
func (s Scope) Valid() bool {
	return s == ScopeOwn || s == ScopeAll
}

// Satisfies reports whether a grant at scope s satisfies a request for
// required. A grant at all subsumes own; a grant at own satisfies own only.
func (s Scope) Satisfies(required Scope) bool {
	if s == ScopeAll {
		return true
	}
	return s == ScopeOwn && required == ScopeOwn
}

// MatchKind identifies how a permission matches a request.
type MatchKind int

const (
	// MatchExact matches one resource:action pair.
	MatchExact MatchKind = iota

	// MatchResource matches every action on one resource ("resource:*").
	MatchResource

	// MatchAll matches everything ("*").
	MatchAll
)

// Permission is a single parsed grant. Permissions are parsed once when a
// role is defined, never re-parsed per check.
type Permission struct {
	Kind     MatchKind `json:"kind"`
	Resource string    `json:"resource,omitempty"`
	Action   string    `json:"action,omitempty"`
	Scope    Scope     `json:"scope"`
}

// String renders the permission in its wire form.
func (p Permission) String() string {
	switch p.Kind {
	case MatchAll:
		return "*"
	case MatchResource:
		return p.Resource + ":*"
	default:
		if p.Scope == ScopeOwn {
			return p.Resource + ":" + p.Action + ":own"
		}
		return p.Resource + ":" + p.Action
	}
}

// ParsePermission parses one grant string into the closed grammar.
// Recognized forms: "*", "resource:*", "resource:action",
// "resource:action:own", "resource:action:all". A two-part grant defaults to
// scope all.
func ParsePermission(s string) (Permission, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Permission{}, fmt.Errorf("empty permission")
	}
	if s == "*" {
		return Permission{Kind: MatchAll, Scope: ScopeAll}, nil
	}

	parts := strings.Split(s, ":")
	for _, p := range parts {
		if p == "" {
			return Permission{}, fmt.Errorf("malformed permission %q", s)
		}
	}

	switch len(parts) {
	case 2:
		if parts[1] == "*" {
			return Permission{Kind: MatchResource, Resource: parts[0], Scope: ScopeAll}, nil
		}
		return Permission{Kind: MatchExact, Resource: parts[0], Action: parts[1], Scope: ScopeAll}, nil
	case 3:
		scope := Scope(parts[2])
		if !scope.Valid() {
			return Permission{}, fmt.Errorf("invalid scope %q in permission %q", parts[2], s)
		}
		if parts[1] == "*" {
			return Permission{}, fmt.Errorf("resource wildcard cannot carry a scope: %q", s)
		}
		return Permission{Kind: MatchExact, Resource: parts[0], Action: parts[1], Scope: scope}, nil
	default:
		return Permission{}, fmt.Errorf("malformed permission %q", s)
	}
}

// ParsePermissions parses a permission set, rejecting the whole set on the
// first malformed grant.
func ParsePermissions(grants []string) ([]Permission, error) {
	perms := make([]Permission, 0, len(grants))
	for _, g := range grants {
		p, err := ParsePermission(g)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// Role is a named permission set with a position in the privilege hierarchy.
// Rank strictly orders roles: a change to a role with a higher rank is a
// privilege escalation.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Rank        int          `json:"rank"`
	Permissions []Permission `json:"permissions"`
	Custom      bool         `json:"custom"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (r *Role) Clone() *Role {
	c := *r
	c.Permissions = make([]Permission, len(r.Permissions))
	copy(c.Permissions, r.Permissions)
	return &c
}

// Actor is the authenticated principal as far as the core is concerned.
// Authentication itself happens upstream; the core receives the result.
type Actor struct {
	ID     string `json:"id"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

// Request is one permission question: may the actor perform Action on
// Resource at Scope.
type Request struct {
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
	Scope    Scope  `json:"scope" validate:"required,oneof=own all"`
}

// DenialReason classifies why a request was denied.
type DenialReason string

const (
	// ReasonActorInactive denies deactivated actors regardless of role.
	ReasonActorInactive DenialReason = "actor_inactive"

	// ReasonRoleNotFound denies actors whose role no longer exists.
	ReasonRoleNotFound DenialReason = "role_not_found"

	// ReasonNoMatch denies when no grant covers the resource and action.
	ReasonNoMatch DenialReason = "no_matching_permission"

	// ReasonInsufficientScope denies when a grant covers the resource and
	// action but only at scope own while the request needs all.
	ReasonInsufficientScope DenialReason = "insufficient_scope"
)

// Decision is the outcome of one permission evaluation. Reason is empty when
// Allowed is true.
type Decision struct {
	Allowed bool         `json:"allowed"`
	Reason  DenialReason `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason DenialReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}
