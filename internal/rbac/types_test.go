// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package rbac

import (
	"testing"
)

func TestParsePermission(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Permission
		wantErr bool
	}{
		{
			name:  "full wildcard",
			input: "*",
			want:  Permission{Kind: MatchAll, Scope: ScopeAll},
		},
		{
			name:  "resource wildcard",
			input: "pages:*",
			want:  Permission{Kind: MatchResource, Resource: "pages", Scope: ScopeAll},
		},
		{
			name:  "exact without scope defaults to all",
			input: "pages:read",
			want:  Permission{Kind: MatchExact, Resource: "pages", Action: "read", Scope: ScopeAll},
		},
		{
			name:  "exact with own scope",
			input: "pages:update:own",
			want:  Permission{Kind: MatchExact, Resource: "pages", Action: "update", Scope: ScopeOwn},
		},
		{
			name:  "exact with all scope",
			input: "media:delete:all",
			want:  Permission{Kind: MatchExact, Resource: "media", Action: "delete", Scope: ScopeAll},
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "empty resource segment",
			input:   ":read",
			wantErr: true,
		},
		{
			name:    "empty action segment",
			input:   "pages:",
			wantErr: true,
		},
		{
			name:    "invalid scope",
			input:   "pages:read:everyone",
			wantErr: true,
		},
		{
			name:    "resource wildcard cannot carry scope",
			input:   "pages:*:own",
			wantErr: true,
		},
		{
			name:    "too many segments",
			input:   "pages:read:own:extra",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePermission(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePermission(%q) = %+v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePermission(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParsePermission(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPermissionStringRoundTrip(t *testing.T) {
	inputs := []string{"*", "pages:*", "pages:read:all", "media:update:own"}
	for _, in := range inputs {
		p, err := ParsePermission(in)
		if err != nil {
			t.Fatalf("ParsePermission(%q) error: %v", in, err)
		}
		back, err := ParsePermission(p.String())
		if err != nil {
			t.Fatalf("re-parse %q error: %v", p.String(), err)
		}
		if back != p {
			t.Errorf("round trip %q: got %+v, want %+v", in, back, p)
		}
	}
}

func TestScopeSatisfies(t *testing.T) {
	tests := []struct {
		grant   Scope
		request Scope
		want    bool
	}{
		{ScopeAll, ScopeAll, true},
		{ScopeAll, ScopeOwn, true},
		{ScopeOwn, ScopeOwn, true},
		{ScopeOwn, ScopeAll, false},
	}
	for _, tt := range tests {
		if got := tt.grant.Satisfies(tt.request); got != tt.want {
			t.Errorf("Scope(%s).Satisfies(%s) = %v, want %v", tt.grant, tt.request, got, tt.want)
		}
	}
}

func TestParsePermissionsRejectsInvalidEntry(t *testing.T) {
	_, err := ParsePermissions([]string{"pages:read", "bogus::"})
	if err == nil {
		t.Fatal("expected error for invalid grant in list")
	}
}

func TestRoleClone(t *testing.T) {
	perms, err := ParsePermissions([]string{"pages:read", "pages:update:own"})
	if err != nil {
		t.Fatalf("ParsePermissions error: %v", err)
	}
	r := Role{ID: "custom", Name: "Custom", Rank: 2, Permissions: perms}
	c := r.Clone()
	c.Permissions[0] = Permission{Kind: MatchAll}
	if r.Permissions[0].Kind == MatchAll {
		t.Error("Clone shares the permissions slice with the original")
	}
}
