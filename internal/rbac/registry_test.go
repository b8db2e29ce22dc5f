// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package rbac

import (
	"errors"
	"sync"
	"testing"
)

func TestRegistryBuiltInRoles(t *testing.T) {
	r := NewRegistry()

	wantRanks := map[string]int{
		RoleViewer:     1,
		RoleEditor:     2,
		RoleModerator:  3,
		RoleAdmin:      4,
		RoleSuperAdmin: 5,
	}
	for id, rank := range wantRanks {
		role, err := r.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) error: %v", id, err)
		}
		if role.Rank != rank {
			t.Errorf("role %s rank = %d, want %d", id, role.Rank, rank)
		}
		if role.Custom {
			t.Errorf("role %s marked custom", id)
		}
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	role, err := r.Get(RoleViewer)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	role.Permissions[0] = Permission{Kind: MatchAll, Scope: ScopeAll}

	again, err := r.Get(RoleViewer)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if again.Permissions[0].Kind == MatchAll {
		t.Error("mutating a returned role leaked into the registry")
	}
}

func TestRegistryCreateRole(t *testing.T) {
	r := NewRegistry()

	role, err := r.CreateRole("auditor", "Auditor", "Read-only audit access", 2,
		[]string{"audit:read", "reports:read"})
	if err != nil {
		t.Fatalf("CreateRole error: %v", err)
	}
	if !role.Custom {
		t.Error("created role not marked custom")
	}

	if _, err := r.CreateRole("auditor", "Auditor", "", 2, nil); !errors.Is(err, ErrRoleExists) {
		t.Errorf("duplicate create error = %v, want ErrRoleExists", err)
	}
	if _, err := r.CreateRole(RoleAdmin, "Admin", "", 4, nil); !errors.Is(err, ErrRoleExists) {
		t.Errorf("create over built-in error = %v, want ErrRoleExists", err)
	}
	if _, err := r.CreateRole("bad", "Bad", "", 1, []string{"::"}); err == nil {
		t.Error("expected error for malformed grant")
	}
}

func TestRegistryUpdateRole(t *testing.T) {
	r := NewRegistry()
	if _, err := r.CreateRole("auditor", "Auditor", "", 2, []string{"audit:read"}); err != nil {
		t.Fatalf("CreateRole error: %v", err)
	}

	name := "Audit Reviewer"
	rank := 3
	updated, err := r.UpdateRole("auditor", RoleUpdate{
		Name:   &name,
		Rank:   &rank,
		Grants: []string{"audit:read", "reports:*"},
	})
	if err != nil {
		t.Fatalf("UpdateRole error: %v", err)
	}
	if updated.Name != name || updated.Rank != rank || len(updated.Permissions) != 2 {
		t.Errorf("update not applied: %+v", updated)
	}

	// Built-in roles accept permission changes but not identity changes.
	if _, err := r.UpdateRole(RoleViewer, RoleUpdate{Grants: []string{"pages:read"}}); err != nil {
		t.Errorf("built-in grant update error: %v", err)
	}
	if _, err := r.UpdateRole(RoleViewer, RoleUpdate{Rank: &rank}); !errors.Is(err, ErrBuiltInImmutable) {
		t.Errorf("built-in rank update error = %v, want ErrBuiltInImmutable", err)
	}

	if _, err := r.UpdateRole("missing", RoleUpdate{Grants: []string{"pages:read"}}); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("update missing error = %v, want ErrRoleNotFound", err)
	}
}

func TestRegistryDeleteRole(t *testing.T) {
	r := NewRegistry()
	if _, err := r.CreateRole("temp", "Temp", "", 1, []string{"pages:read"}); err != nil {
		t.Fatalf("CreateRole error: %v", err)
	}
	if err := r.DeleteRole("temp"); err != nil {
		t.Errorf("DeleteRole error: %v", err)
	}
	if err := r.DeleteRole("temp"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("delete missing error = %v, want ErrRoleNotFound", err)
	}
	if err := r.DeleteRole(RoleAdmin); !errors.Is(err, ErrBuiltInImmutable) {
		t.Errorf("delete built-in error = %v, want ErrBuiltInImmutable", err)
	}
}

func TestRegistryMutationHooks(t *testing.T) {
	r := NewRegistry()

	var mu sync.Mutex
	var seen []string
	r.OnMutation(func(roleID string) {
		mu.Lock()
		seen = append(seen, roleID)
		mu.Unlock()
	})

	if _, err := r.CreateRole("hooked", "Hooked", "", 1, []string{"pages:read"}); err != nil {
		t.Fatalf("CreateRole error: %v", err)
	}
	if _, err := r.UpdateRole("hooked", RoleUpdate{Grants: []string{"pages:*"}}); err != nil {
		t.Fatalf("UpdateRole error: %v", err)
	}
	if err := r.DeleteRole("hooked"); err != nil {
		t.Fatalf("DeleteRole error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("hook fired %d times, want 3: %v", len(seen), seen)
	}
	for _, id := range seen {
		if id != "hooked" {
			t.Errorf("hook saw role %q, want hooked", id)
		}
	}
}

func TestRegistryListOrderedByRank(t *testing.T) {
	r := NewRegistry()
	roles := r.List()
	if len(roles) != 5 {
		t.Fatalf("List() returned %d roles, want 5", len(roles))
	}
	for i := 1; i < len(roles); i++ {
		if roles[i-1].Rank > roles[i].Rank {
			t.Fatalf("List() not ordered by rank: %s(%d) before %s(%d)",
				roles[i-1].ID, roles[i-1].Rank, roles[i].ID, roles[i].Rank)
		}
	}
}

func TestRegistryRank(t *testing.T) {
	r := NewRegistry()
	if rank, ok := r.Rank(RoleSuperAdmin); !ok || rank != 5 {
		t.Errorf("Rank(superadmin) = %d, %v", rank, ok)
	}
	if _, ok := r.Rank("missing"); ok {
		t.Error("Rank(missing) reported ok")
	}
}
