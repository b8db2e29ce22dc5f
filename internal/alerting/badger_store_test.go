// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/castellan/castellan/internal/audit"
)

func TestBadgerStoreRoundTrip(t *testing.T) {
	store := NewBadgerStore(newTestDB(t))
	ctx := context.Background()

	alert := &Alert{
		ID:        "a1",
		Type:      TypeRepeatedAuthFailures,
		Severity:  audit.SeverityHigh,
		Status:    StatusActive,
		Subject:   "u1",
		Message:   "5 auth.login_failed events",
		EventIDs:  []string{"e1", "e2"},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := store.Save(ctx, alert); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Subject != "u1" || len(got.EventIDs) != 2 || !got.CreatedAt.Equal(alert.CreatedAt) {
		t.Errorf("Get returned %+v", got)
	}

	// Overwrite is an update.
	alert.Status = StatusResolved
	if err := store.Save(ctx, alert); err != nil {
		t.Fatalf("Save update error: %v", err)
	}
	got, _ = store.Get(ctx, "a1")
	if got.Status != StatusResolved {
		t.Errorf("status after update = %s, want resolved", got.Status)
	}
}

func TestBadgerStoreGetMissing(t *testing.T) {
	store := NewBadgerStore(newTestDB(t))
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("Get error = %v, want ErrAlertNotFound", err)
	}
}

func TestBadgerStoreSaveRejectsEmptyID(t *testing.T) {
	store := NewBadgerStore(newTestDB(t))
	if err := store.Save(context.Background(), &Alert{}); err == nil {
		t.Error("Save accepted an alert without an id")
	}
}

func TestBadgerStoreList(t *testing.T) {
	store := NewBadgerStore(newTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC()

	seed := []Alert{
		{ID: "a1", Type: TypeRepeatedAuthFailures, Status: StatusActive, Severity: audit.SeverityHigh, CreatedAt: base.Add(-3 * time.Hour)},
		{ID: "a2", Type: TypeRepeatedDenials, Status: StatusResolved, Severity: audit.SeverityMedium, CreatedAt: base.Add(-2 * time.Hour)},
		{ID: "a3", Type: TypePrivilegeEscalation, Status: StatusActive, Severity: audit.SeverityCritical, CreatedAt: base.Add(-time.Hour)},
	}
	for i := range seed {
		if err := store.Save(ctx, &seed[i]); err != nil {
			t.Fatalf("Save error: %v", err)
		}
	}

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []string
	}{
		{
			name:    "all newest first",
			filter:  Filter{},
			wantIDs: []string{"a3", "a2", "a1"},
		},
		{
			name:    "active only",
			filter:  Filter{Statuses: []Status{StatusActive}},
			wantIDs: []string{"a3", "a1"},
		},
		{
			name:    "by type",
			filter:  Filter{Types: []string{TypeRepeatedDenials}},
			wantIDs: []string{"a2"},
		},
		{
			name:    "limit applied after sort",
			filter:  Filter{Limit: 2},
			wantIDs: []string{"a3", "a2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List error: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("List returned %d alerts, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("alert[%d].ID = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}
