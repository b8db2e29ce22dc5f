// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package alerting

import (
	"testing"
	"time"

	"github.com/castellan/castellan/internal/audit"
)

func TestThresholdRuleWindow(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		offsets []time.Duration // one entry per offset from now
		want    bool            // candidate on the last entry
	}{
		{
			name:    "below threshold",
			offsets: []time.Duration{0, 0},
			want:    false,
		},
		{
			name:    "exactly at threshold",
			offsets: []time.Duration{0, 0, 0},
			want:    true,
		},
		{
			name:    "stale events excluded",
			offsets: []time.Duration{-10 * time.Minute, -10 * time.Minute, 0},
			want:    false,
		},
		{
			name:    "all inside window",
			offsets: []time.Duration{-4 * time.Minute, -2 * time.Minute, 0},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := NewThresholdRule(ThresholdConfig{
				RuleType:  "test_rule",
				Action:    audit.ActionLoginFailed,
				Threshold: 3,
				Window:    5 * time.Minute,
				Severity:  audit.SeverityHigh,
			})
			var got *Candidate
			for _, off := range tt.offsets {
				got = rule.Evaluate(&audit.Entry{
					ID:        "e",
					UserID:    strPtr("u1"),
					Action:    audit.ActionLoginFailed,
					CreatedAt: now.Add(off),
				})
			}
			if (got != nil) != tt.want {
				t.Errorf("candidate = %v, want fired=%v", got, tt.want)
			}
			if got != nil && got.Subject != "u1" {
				t.Errorf("subject = %s, want u1", got.Subject)
			}
		})
	}
}

func TestThresholdRuleIgnoresOtherActions(t *testing.T) {
	rule := NewThresholdRule(ThresholdConfig{
		RuleType:  "test_rule",
		Action:    audit.ActionLoginFailed,
		Threshold: 1,
		Window:    time.Minute,
		Severity:  audit.SeverityHigh,
	})
	got := rule.Evaluate(&audit.Entry{
		UserID:    strPtr("u1"),
		Action:    audit.ActionLogin,
		CreatedAt: time.Now().UTC(),
	})
	if got != nil {
		t.Errorf("candidate = %v for non-matching action", got)
	}
}

func TestThresholdRuleAnonymousSubjectFallsBackToAddress(t *testing.T) {
	rule := NewThresholdRule(ThresholdConfig{
		RuleType:  "test_rule",
		Action:    audit.ActionLoginFailed,
		Threshold: 1,
		Window:    time.Minute,
		Severity:  audit.SeverityHigh,
	})
	got := rule.Evaluate(&audit.Entry{
		Action:    audit.ActionLoginFailed,
		IPAddress: "203.0.113.7",
		CreatedAt: time.Now().UTC(),
	})
	if got == nil || got.Subject != "203.0.113.7" {
		t.Errorf("candidate = %v, want subject 203.0.113.7", got)
	}
}

func TestThresholdRuleTracksSubjectsIndependently(t *testing.T) {
	rule := NewThresholdRule(ThresholdConfig{
		RuleType:  "test_rule",
		Action:    audit.ActionLoginFailed,
		Threshold: 2,
		Window:    time.Minute,
		Severity:  audit.SeverityHigh,
	})
	now := time.Now().UTC()
	if got := rule.Evaluate(failureEntry("u1", now)); got != nil {
		t.Fatalf("first u1 failure fired: %v", got)
	}
	if got := rule.Evaluate(failureEntry("u2", now)); got != nil {
		t.Fatalf("first u2 failure fired: %v", got)
	}
	if got := rule.Evaluate(failureEntry("u1", now)); got == nil {
		t.Fatal("second u1 failure did not fire")
	}
}

func TestEscalationRule(t *testing.T) {
	rule := NewEscalationRule()

	tests := []struct {
		name        string
		entry       *audit.Entry
		want        bool
		wantSubject string
	}{
		{
			name: "suspicious activity fires",
			entry: &audit.Entry{
				UserID:     strPtr("admin-1"),
				Action:     audit.ActionSecuritySuspiciousActivity,
				Resource:   "users",
				ResourceID: "u9",
			},
			want:        true,
			wantSubject: "u9",
		},
		{
			name: "explicit escalation fires",
			entry: &audit.Entry{
				Action:     audit.ActionSecurityPrivilegeEscalation,
				ResourceID: "u9",
			},
			want:        true,
			wantSubject: "u9",
		},
		{
			name: "subject falls back to actor",
			entry: &audit.Entry{
				UserID: strPtr("admin-1"),
				Action: audit.ActionSecuritySuspiciousActivity,
			},
			want:        true,
			wantSubject: "admin-1",
		},
		{
			name: "other security events ignored",
			entry: &audit.Entry{
				UserID: strPtr("u1"),
				Action: audit.ActionSecurityUnauthorizedAccess,
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rule.Evaluate(tt.entry)
			if (got != nil) != tt.want {
				t.Fatalf("candidate = %v, want fired=%v", got, tt.want)
			}
			if got == nil {
				return
			}
			if got.Subject != tt.wantSubject {
				t.Errorf("subject = %s, want %s", got.Subject, tt.wantSubject)
			}
			if got.Severity != audit.SeverityCritical {
				t.Errorf("severity = %s, want critical", got.Severity)
			}
		})
	}
}
