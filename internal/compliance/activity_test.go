// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package compliance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/castellan/castellan/internal/audit"
)

func TestGenerateUserActivityReports(t *testing.T) {
	g, store := newTestGenerator(t)
	ctx := context.Background()
	now := time.Now().UTC()
	at := now.Add(-time.Hour)

	// u1: quiet user.
	seed(t, store, strPtr("u1"), "auth.login", audit.SeverityLow, "session", at)
	seed(t, store, strPtr("u1"), "resource.read", audit.SeverityLow, "pages", at)

	// u2: excessive failed logins and security noise.
	for i := 0; i < 7; i++ {
		seed(t, store, strPtr("u2"), "auth.login_failed", audit.SeverityMedium, "session", at)
	}
	for i := 0; i < 4; i++ {
		seed(t, store, strPtr("u2"), "security.permission_denied", audit.SeverityHigh, "users", at)
	}

	// System entries carry no user and are skipped.
	seed(t, store, nil, "system.settings_changed", audit.SeverityLow, "audit", at)

	reports, err := g.GenerateUserActivityReports(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatalf("GenerateUserActivityReports error: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}

	// Sorted by risk score descending: u2 first.
	risky := reports[0]
	if risky.UserID != "u2" {
		t.Fatalf("highest risk user = %s, want u2", risky.UserID)
	}
	if risky.FailedLogins != 7 {
		t.Errorf("failed logins = %d, want 7", risky.FailedLogins)
	}
	if risky.SecurityEvents != 4 {
		t.Errorf("security events = %d, want 4", risky.SecurityEvents)
	}
	if risky.RiskScore != failedLoginScore+securityEventScore {
		t.Errorf("risk score = %d, want %d", risky.RiskScore, failedLoginScore+securityEventScore)
	}
	if risky.RiskLevel != RiskHigh {
		t.Errorf("risk level = %s, want high", risky.RiskLevel)
	}
	if risky.Name != "Grace" {
		t.Errorf("directory lookup missing: name = %q", risky.Name)
	}

	quiet := reports[1]
	if quiet.UserID != "u1" || quiet.RiskLevel != RiskLow || quiet.RiskScore != 0 {
		t.Errorf("quiet user report = %+v", quiet)
	}
	if quiet.Logins != 1 || quiet.DistinctResources != 2 {
		t.Errorf("quiet user counts = %+v", quiet)
	}
}

func TestGenerateUserActivityReportsBroadAccess(t *testing.T) {
	g, store := newTestGenerator(t)
	now := time.Now().UTC()
	at := now.Add(-time.Hour)

	for i := 0; i < 12; i++ {
		seed(t, store, strPtr("u1"), "resource.read", audit.SeverityLow, fmt.Sprintf("resource-%d", i), at)
	}

	reports, err := g.GenerateUserActivityReports(context.Background(), now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatalf("GenerateUserActivityReports error: %v", err)
	}
	if reports[0].RiskScore != broadAccessScore {
		t.Errorf("risk score = %d, want %d", reports[0].RiskScore, broadAccessScore)
	}
	if reports[0].RiskLevel != RiskLow {
		t.Errorf("risk level = %s, want low for score %d", reports[0].RiskLevel, reports[0].RiskScore)
	}
}

func TestGenerateUserActivityReportsBadPeriod(t *testing.T) {
	g, _ := newTestGenerator(t)
	now := time.Now().UTC()
	if _, err := g.GenerateUserActivityReports(context.Background(), now, now); err == nil {
		t.Error("empty period accepted")
	}
}
