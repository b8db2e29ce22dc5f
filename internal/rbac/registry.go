// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package rbac

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry errors.
var (
	// ErrRoleNotFound is returned when operating on a nonexistent role.
	ErrRoleNotFound = errors.New("role not found")

	// ErrRoleExists is returned when creating a role whose id is taken.
	ErrRoleExists = errors.New("role already exists")

	// ErrBuiltInImmutable is returned when changing anything but the
	// permission set of a built-in role.
	ErrBuiltInImmutable = errors.New("built-in roles allow permission changes only")
)

// Built-in role identifiers.
const (
	RoleViewer     = "viewer"
	RoleEditor     = "editor"
	RoleModerator  = "moderator"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// MutationHook is invoked after any change to a role, with the role id.
// The evaluator registers one to invalidate cached decisions.
type MutationHook func(roleID string)

// Registry holds built-in and custom role definitions with controlled
// mutation. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	roles map[string]*Role
	hooks []MutationHook
	now   func() time.Time
}

// NewRegistry creates a registry seeded with the built-in CMS roles.
func NewRegistry() *Registry {
	r := &Registry{
		roles: make(map[string]*Role),
		now:   time.Now,
	}
	for _, b := range builtInRoles() {
		r.roles[b.ID] = b
	}
	return r
}

// builtInRoles defines the fixed hierarchy. Permission strings here are
// trusted constants; a parse failure is a programming error.
func builtInRoles() []*Role {
	defs := []struct {
		id, name, desc string
		rank           int
		grants         []string
	}{
		{RoleViewer, "Viewer", "Read-only access to published content", 1, []string{
			"pages:read", "media:read", "products:read", "comments:read",
		}},
		{RoleEditor, "Editor", "Creates and edits own content", 2, []string{
			"pages:read", "pages:create", "pages:update:own", "pages:delete:own",
			"media:read", "media:upload", "media:delete:own",
			"products:read", "comments:read", "comments:create",
		}},
		{RoleModerator, "Moderator", "Manages all content and comments", 3, []string{
			"pages:*", "media:*", "comments:*", "products:read", "users:read",
		}},
		{RoleAdmin, "Administrator", "Full content and user management", 4, []string{
			"pages:*", "media:*", "comments:*", "products:*", "users:*",
			"reports:*", "audit:read", "settings:read",
		}},
		{RoleSuperAdmin, "Super Administrator", "Unrestricted access", 5, []string{"*"}},
	}

	roles := make([]*Role, 0, len(defs))
	for _, d := range defs {
		perms, err := ParsePermissions(d.grants)
		if err != nil {
			panic(fmt.Sprintf("built-in role %s: %v", d.id, err))
		}
		roles = append(roles, &Role{
			ID:          d.id,
			Name:        d.name,
			Description: d.desc,
			Rank:        d.rank,
			Permissions: perms,
		})
	}
	return roles
}

// OnMutation registers a hook called after every role change.
func (r *Registry) OnMutation(hook MutationHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// notifyMutation runs hooks outside the registry lock.
func (r *Registry) notifyMutation(roleID string) {
	r.mu.RLock()
	hooks := make([]MutationHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.RUnlock()

	for _, h := range hooks {
		h(roleID)
	}
}

// Get returns a copy of the role, or ErrRoleNotFound.
func (r *Registry) Get(id string) (*Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	return role.Clone(), nil
}

// Rank returns the hierarchy rank of a role. The second return is false when
// the role does not exist.
func (r *Registry) Rank(id string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[id]
	if !ok {
		return 0, false
	}
	return role.Rank, true
}

// List returns all roles ordered by rank, then id for equal ranks.
func (r *Registry) List() []*Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]*Role, 0, len(r.roles))
	for _, role := range r.roles {
		roles = append(roles, role.Clone())
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Rank != roles[j].Rank {
			return roles[i].Rank < roles[j].Rank
		}
		return roles[i].ID < roles[j].ID
	})
	return roles
}

// CreateRole adds a custom role. The grants are parsed into the permission
// grammar; a malformed grant rejects the whole role.
func (r *Registry) CreateRole(id, name, description string, rank int, grants []string) (*Role, error) {
	if id == "" {
		return nil, fmt.Errorf("role id is required")
	}
	if rank <= 0 {
		return nil, fmt.Errorf("role rank must be positive")
	}
	perms, err := ParsePermissions(grants)
	if err != nil {
		return nil, fmt.Errorf("invalid permission set: %w", err)
	}

	r.mu.Lock()
	if _, exists := r.roles[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoleExists, id)
	}
	now := r.now()
	role := &Role{
		ID:          id,
		Name:        name,
		Description: description,
		Rank:        rank,
		Permissions: perms,
		Custom:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.roles[id] = role
	r.mu.Unlock()

	r.notifyMutation(id)
	return role.Clone(), nil
}

// RoleUpdate describes a partial role update. Nil fields are left unchanged.
type RoleUpdate struct {
	Name        *string
	Description *string
	Rank        *int
	Grants      []string
}

// UpdateRole applies an update. For built-in roles only the permission set
// may change; name, description, and rank changes are rejected with
// ErrBuiltInImmutable. Custom roles are fully mutable.
func (r *Registry) UpdateRole(id string, update RoleUpdate) (*Role, error) {
	var perms []Permission
	if update.Grants != nil {
		var err error
		perms, err = ParsePermissions(update.Grants)
		if err != nil {
			return nil, fmt.Errorf("invalid permission set: %w", err)
		}
	}

	r.mu.Lock()
	role, ok := r.roles[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}

	if !role.Custom && (update.Name != nil || update.Description != nil || update.Rank != nil) {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBuiltInImmutable, id)
	}

	if update.Name != nil {
		role.Name = *update.Name
	}
	if update.Description != nil {
		role.Description = *update.Description
	}
	if update.Rank != nil {
		if *update.Rank <= 0 {
			r.mu.Unlock()
			return nil, fmt.Errorf("role rank must be positive")
		}
		role.Rank = *update.Rank
	}
	if update.Grants != nil {
		role.Permissions = perms
	}
	role.UpdatedAt = r.now()
	result := role.Clone()
	r.mu.Unlock()

	r.notifyMutation(id)
	return result, nil
}

// DeleteRole removes a custom role. Built-in roles cannot be deleted.
// Deleting a role still assigned to actors is allowed; those actors are
// denied with role_not_found until reassigned.
func (r *Registry) DeleteRole(id string) error {
	r.mu.Lock()
	role, ok := r.roles[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	if !role.Custom {
		r.mu.Unlock()
		return fmt.Errorf("%w: cannot delete %s", ErrBuiltInImmutable, id)
	}
	delete(r.roles, id)
	r.mu.Unlock()

	r.notifyMutation(id)
	return nil
}
