// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package alerting

import (
	"fmt"
	"sync"
	"time"

	"github.com/castellan/castellan/internal/audit"
)

// Rule types raised by the built-in rules.
const (
	TypeRepeatedAuthFailures = "repeated_auth_failures"
	TypeRepeatedDenials      = "repeated_permission_denials"
	TypePrivilegeEscalation  = "privilege_escalation"
)

// Candidate is a rule's verdict for one entry: raise (or feed) an alert for
// this subject.
type Candidate struct {
	Type     string
	Subject  string
	Severity audit.Severity
	Message  string
}

// Rule inspects one audit entry and may produce an alert candidate. Rules
// keep their own sliding-window state and must be safe for concurrent use.
type Rule interface {
	Type() string
	Evaluate(entry *audit.Entry) *Candidate
}

// DefaultRules returns the standard rule set.
func DefaultRules() []Rule {
	return []Rule{
		NewThresholdRule(ThresholdConfig{
			RuleType:  TypeRepeatedAuthFailures,
			Action:    audit.ActionLoginFailed,
			Threshold: 5,
			Window:    15 * time.Minute,
			Severity:  audit.SeverityHigh,
		}),
		NewThresholdRule(ThresholdConfig{
			RuleType:  TypeRepeatedDenials,
			Action:    audit.ActionSecurityPermissionDenied,
			Threshold: 10,
			Window:    15 * time.Minute,
			Severity:  audit.SeverityMedium,
		}),
		NewEscalationRule(),
	}
}

// ThresholdConfig parameterizes a sliding-window counting rule.
type ThresholdConfig struct {
	RuleType  string
	Action    string
	Threshold int
	Window    time.Duration
	Severity  audit.Severity
}

// ThresholdRule raises a candidate when one subject accumulates Threshold
// matching entries inside the window. The subject is the actor id, falling
// back to the source address for anonymous entries.
type ThresholdRule struct {
	cfg ThresholdConfig

	mu   sync.Mutex
	seen map[string][]time.Time
}

// NewThresholdRule creates a sliding-window counting rule.
func NewThresholdRule(cfg ThresholdConfig) *ThresholdRule {
	return &ThresholdRule{
		cfg:  cfg,
		seen: make(map[string][]time.Time),
	}
}

func (r *ThresholdRule) Type() string { return r.cfg.RuleType }

// Evaluate counts the entry against its subject's window.
func (r *ThresholdRule) Evaluate(entry *audit.Entry) *Candidate {
	if entry.Action != r.cfg.Action {
		return nil
	}
	subject := subjectOf(entry)
	if subject == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := entry.CreatedAt.Add(-r.cfg.Window)
	window := r.seen[subject][:0]
	for _, t := range r.seen[subject] {
		if t.After(cutoff) {
			window = append(window, t)
		}
	}
	window = append(window, entry.CreatedAt)
	r.seen[subject] = window

	if len(window) < r.cfg.Threshold {
		return nil
	}
	return &Candidate{
		Type:     r.cfg.RuleType,
		Subject:  subject,
		Severity: r.cfg.Severity,
		Message: fmt.Sprintf("%d %s events for %s within %s",
			len(window), r.cfg.Action, subject, r.cfg.Window),
	}
}

// EscalationRule flags privilege escalations immediately: a single
// suspicious-activity entry from a role change is enough.
type EscalationRule struct{}

// NewEscalationRule creates the escalation rule.
func NewEscalationRule() *EscalationRule { return &EscalationRule{} }

func (r *EscalationRule) Type() string { return TypePrivilegeEscalation }

func (r *EscalationRule) Evaluate(entry *audit.Entry) *Candidate {
	if entry.Action != audit.ActionSecuritySuspiciousActivity &&
		entry.Action != audit.ActionSecurityPrivilegeEscalation {
		return nil
	}
	subject := entry.ResourceID
	if subject == "" {
		subject = subjectOf(entry)
	}
	if subject == "" {
		return nil
	}
	return &Candidate{
		Type:     TypePrivilegeEscalation,
		Subject:  subject,
		Severity: audit.SeverityCritical,
		Message:  fmt.Sprintf("privilege escalation affecting %s", subject),
	}
}

func subjectOf(entry *audit.Entry) string {
	if entry.UserID != nil && *entry.UserID != "" {
		return *entry.UserID
	}
	return entry.IPAddress
}
