// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package compliance

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Standard names a supported security standard.
type Standard string

const (
	StandardSOC2     Standard = "SOC2"
	StandardISO27001 Standard = "ISO27001"
	StandardGDPR     Standard = "GDPR"
	StandardHIPAA    Standard = "HIPAA"
)

// ParseStandard normalizes a standard name.
func ParseStandard(s string) (Standard, error) {
	switch Standard(strings.ToUpper(s)) {
	case StandardSOC2:
		return StandardSOC2, nil
	case StandardISO27001:
		return StandardISO27001, nil
	case StandardGDPR:
		return StandardGDPR, nil
	case StandardHIPAA:
		return StandardHIPAA, nil
	}
	return "", fmt.Errorf("unsupported standard %q", s)
}

// Requirement is one control in a standard's checklist.
type Requirement struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Passed      bool   `json:"passed"`
	Evidence    string `json:"evidence"`
}

// StandardReport evaluates one standard against the running configuration.
type StandardReport struct {
	Standard          Standard      `json:"standard"`
	Requirements      []Requirement `json:"requirements"`
	OverallCompliance int           `json:"overall_compliance"`
	AssessedAt        time.Time     `json:"assessed_at"`
}

// controlCheck evaluates one control against the current configuration.
type controlCheck struct {
	id          string
	description string
	check       func(g *Generator) (bool, string)
}

// GenerateSecurityStandardReport evaluates the fixed checklist for a
// standard against the current audit, retention, and access-control
// configuration. The checklist is never empty, even on an empty trail.
func (g *Generator) GenerateSecurityStandardReport(ctx context.Context, standard Standard) (*StandardReport, error) {
	checks, ok := standardChecks[standard]
	if !ok {
		return nil, fmt.Errorf("unsupported standard %q", standard)
	}

	report := &StandardReport{
		Standard:   standard,
		AssessedAt: g.now().UTC(),
	}

	passed := 0
	for _, c := range checks {
		ok, evidence := c.check(g)
		if ok {
			passed++
		}
		report.Requirements = append(report.Requirements, Requirement{
			ID:          c.id,
			Description: c.description,
			Passed:      ok,
			Evidence:    evidence,
		})
	}
	report.OverallCompliance = passed * 100 / len(checks)
	return report, nil
}

// Shared configuration probes.

func checkAuditTrailEnabled(g *Generator) (bool, string) {
	if g.auditor == nil {
		return false, "audit service not configured"
	}
	return true, "audit service records all security-relevant events"
}

func checkRBACEnforced(g *Generator) (bool, string) {
	if g.registry == nil {
		return false, "role registry not configured"
	}
	n := len(g.registry.List())
	if n == 0 {
		return false, "role registry is empty"
	}
	return true, fmt.Sprintf("role-based access control with %d roles, deny by default", n)
}

func checkRetentionPolicy(name string, minDays int) func(g *Generator) (bool, string) {
	return func(g *Generator) (bool, string) {
		if g.retention == nil {
			return false, "retention manager not configured"
		}
		p, err := g.retention.Policy(name)
		if err != nil {
			return false, fmt.Sprintf("no %s retention policy", name)
		}
		if p.RetentionDays < minDays {
			return false, fmt.Sprintf("%s retention %d days, below required %d", name, p.RetentionDays, minDays)
		}
		return true, fmt.Sprintf("%s entries retained %d days with archival after %d", name, p.RetentionDays, p.ArchiveAfterDays)
	}
}

func checkArchival(g *Generator) (bool, string) {
	if g.retention == nil {
		return false, "retention manager not configured"
	}
	if len(g.retention.Policies()) == 0 {
		return false, "no retention policies configured"
	}
	return true, "checksummed archival before any hard deletion"
}

func checkIncidentDetection(g *Generator) (bool, string) {
	if g.auditor == nil {
		return false, "audit service not configured"
	}
	return true, "denied checks and escalations feed a security incident stream"
}

var standardChecks = map[Standard][]controlCheck{
	StandardSOC2: {
		{"CC6.1", "Logical access controls restrict access to authorized users", checkRBACEnforced},
		{"CC6.2", "User access is authorized prior to system access", checkRBACEnforced},
		{"CC7.2", "Security events are monitored and anomalies investigated", checkIncidentDetection},
		{"CC7.3", "Security incidents are evaluated and tracked to resolution", checkIncidentDetection},
		{"CC8.1", "Changes to infrastructure and access are logged", checkAuditTrailEnabled},
		{"A1.2", "Data retention and disposal follow defined policies", checkArchival},
	},
	StandardISO27001: {
		{"A.9.2", "User access provisioning is controlled and reviewed", checkRBACEnforced},
		{"A.9.4", "Access to systems and applications is restricted", checkRBACEnforced},
		{"A.12.4", "Event logging records user activities and security events", checkAuditTrailEnabled},
		{"A.12.4.2", "Log information is protected against tampering", checkArchival},
		{"A.16.1", "Security incidents are reported and managed", checkIncidentDetection},
		{"A.18.1.3", "Records are protected per retention requirements", checkRetentionPolicy("audit", 365)},
	},
	StandardGDPR: {
		{"Art.5(1)(f)", "Personal data processed with appropriate security", checkRBACEnforced},
		{"Art.5(1)(e)", "Data kept no longer than necessary (storage limitation)", checkArchival},
		{"Art.30", "Records of processing activities are maintained", checkAuditTrailEnabled},
		{"Art.32", "Ability to ensure ongoing confidentiality and integrity", checkIncidentDetection},
		{"Art.33", "Breach detection supports notification duties", checkIncidentDetection},
	},
	StandardHIPAA: {
		{"164.308(a)(1)", "Security management process with risk analysis", checkIncidentDetection},
		{"164.308(a)(4)", "Information access management restricts PHI access", checkRBACEnforced},
		{"164.312(a)(1)", "Technical access controls with unique user identification", checkRBACEnforced},
		{"164.312(b)", "Audit controls record system activity", checkAuditTrailEnabled},
		{"164.316(b)(2)", "Documentation retained for six years", checkRetentionPolicy("security", 2190)},
	},
}
