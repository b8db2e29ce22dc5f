// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

// Package rbac implements role-based permission evaluation.
//
// Roles are held in a Registry: five built-in roles with a fixed hierarchy
// (viewer < editor < moderator < admin < superadmin) plus any number of custom
// roles. A role carries a permission set parsed once, at definition time, into
// a closed grammar of match kinds:
//
//   - "*"                     grants everything (MatchAll)
//   - "resource:*"            grants every action on a resource (MatchResource)
//   - "resource:action"       grants one action at scope all (MatchExact)
//   - "resource:action:own"   grants one action at scope own (MatchExact)
//
// The Evaluator answers "may this actor perform this action on this resource
// at this scope" with a Decision. Denial is a value, never an error: an
// unknown role, an inactive actor, or a missing grant all deny with a
// structured reason. A grant at scope all satisfies both own and all
// requests; a grant at scope own satisfies only own requests. The evaluator
// checks scope level only; verifying that a resource actually belongs to the
// actor is the caller's job.
//
// Decisions are cached in a short-lived TTL cache keyed by role. Any mutation
// of a role through the Registry invalidates that role's cached decisions via
// a registered mutation hook, so a role change is observed after at most one
// cache-miss round trip.
package rbac
