// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package retention

import (
	"context"
	"testing"
	"time"

	"github.com/castellan/castellan/internal/audit"
)

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	bad := testPolicy()
	bad.Schedule = "not a cron expression"

	m, err := NewManager(audit.NewMemoryStore(0), nil, t.TempDir(), []Policy{bad})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if _, err := NewScheduler(m); err == nil {
		t.Error("NewScheduler accepted an invalid cron expression")
	}
}

func TestSchedulerServeStopsOnCancel(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := NewScheduler(m)
	if err != nil {
		t.Fatalf("NewScheduler error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
