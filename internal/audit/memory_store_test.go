// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package audit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func seedEntries(t *testing.T, store *MemoryStore, n int) []Entry {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Duration(n) * time.Minute)

	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		action := "auth.login"
		severity := SeverityLow
		if i%3 == 0 {
			action = ActionSecurityPermissionDenied
			severity = SeverityHigh
		}
		entries[i] = Entry{
			ID:        fmt.Sprintf("e-%d", i),
			UserID:    strPtr(fmt.Sprintf("u-%d", i%2)),
			Action:    action,
			Resource:  "session",
			Severity:  severity,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		e := entries[i]
		if err := store.Save(ctx, &e); err != nil {
			t.Fatalf("Save error: %v", err)
		}
	}
	return entries
}

func TestMemoryStoreQueryFilters(t *testing.T) {
	store := NewMemoryStore(0)
	seedEntries(t, store, 9)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter QueryFilter
		want   int
	}{
		{"no filter", QueryFilter{}, 9},
		{"by action", QueryFilter{Actions: []string{"auth.login"}}, 6},
		{"by prefix", QueryFilter{ActionPrefixes: []string{"security."}}, 3},
		{"by severity", QueryFilter{Severities: []Severity{SeverityHigh}}, 3},
		{"by user", QueryFilter{UserID: strPtr("u-0")}, 5},
		{"limit", QueryFilter{Limit: 4}, 4},
		{"offset past end", QueryFilter{Offset: 20}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Query returned %d entries, want %d", len(got), tt.want)
			}

			count, err := store.Count(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Count error: %v", err)
			}
			// Count ignores paging.
			if tt.filter.Limit == 0 && tt.filter.Offset == 0 && count != int64(tt.want) {
				t.Errorf("Count = %d, want %d", count, tt.want)
			}
		})
	}
}

func TestMemoryStoreQueryTimeRangeAndOrder(t *testing.T) {
	store := NewMemoryStore(0)
	entries := seedEntries(t, store, 5)
	ctx := context.Background()

	start := entries[2].CreatedAt
	got, err := store.Query(ctx, QueryFilter{StartTime: &start})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("time range returned %d entries, want 3", len(got))
	}

	desc, err := store.Query(ctx, QueryFilter{OrderDesc: true})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	for i := 1; i < len(desc); i++ {
		if desc[i].CreatedAt.After(desc[i-1].CreatedAt) {
			t.Fatal("descending order not respected")
		}
	}
}

func TestMemoryStoreMarkArchivedAndDelete(t *testing.T) {
	store := NewMemoryStore(0)
	entries := seedEntries(t, store, 6)
	ctx := context.Background()

	if err := store.MarkArchived(ctx, []string{entries[0].ID, entries[1].ID}); err != nil {
		t.Fatalf("MarkArchived error: %v", err)
	}

	archived := true
	got, err := store.Query(ctx, QueryFilter{Archived: &archived})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("archived query returned %d entries, want 2", len(got))
	}

	// ArchivedOnly deletion leaves unarchived entries alone even past the horizon.
	removed, err := store.Delete(ctx, DeleteFilter{
		Before:       time.Now().UTC().Add(time.Hour),
		ArchivedOnly: true,
	})
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if removed != 2 {
		t.Errorf("deleted %d entries, want 2", removed)
	}
	if store.Len() != 4 {
		t.Errorf("store has %d entries after delete, want 4", store.Len())
	}
}

func TestMemoryStoreDeleteByPrefix(t *testing.T) {
	store := NewMemoryStore(0)
	seedEntries(t, store, 9)
	ctx := context.Background()

	removed, err := store.Delete(ctx, DeleteFilter{
		Before:         time.Now().UTC().Add(time.Hour),
		ActionPrefixes: []string{"security."},
	})
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if removed != 3 {
		t.Errorf("deleted %d entries, want 3", removed)
	}
}

func TestMemoryStoreEviction(t *testing.T) {
	store := NewMemoryStore(3)
	seedEntries(t, store, 5)

	if store.Len() != 3 {
		t.Fatalf("bounded store has %d entries, want 3", store.Len())
	}
	// Oldest entries are evicted first.
	if _, err := store.Get(context.Background(), "e-0"); err == nil {
		t.Error("evicted entry still retrievable")
	}
	if _, err := store.Get(context.Background(), "e-4"); err != nil {
		t.Error("newest entry missing from bounded store")
	}
}
