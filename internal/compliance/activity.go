// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package compliance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/castellan/castellan/internal/audit"
)

// RiskLevel buckets a user's risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Risk scoring thresholds. Scores are additive per triggered signal.
const (
	failedLoginThreshold   = 5
	broadAccessThreshold   = 10
	securityEventThreshold = 3

	failedLoginScore   = 25
	broadAccessScore   = 15
	securityEventScore = 20

	mediumRiskFloor = 20
	highRiskFloor   = 40
)

// UserActivityReport is a per-user behavioral summary with a risk verdict.
type UserActivityReport struct {
	UserID            string    `json:"user_id"`
	Name              string    `json:"name,omitempty"`
	Email             string    `json:"email,omitempty"`
	Role              string    `json:"role,omitempty"`
	Logins            int       `json:"logins"`
	FailedLogins      int       `json:"failed_logins"`
	DistinctResources int       `json:"distinct_resources"`
	SecurityEvents    int       `json:"security_events"`
	RiskScore         int       `json:"risk_score"`
	RiskLevel         RiskLevel `json:"risk_level"`
}

// GenerateUserActivityReports summarizes each user's behavior in the period
// and assigns a threshold-based additive risk score.
func (g *Generator) GenerateUserActivityReports(ctx context.Context, start, end time.Time) ([]UserActivityReport, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("activity period end must be after start")
	}

	entries, err := g.queryTrail(ctx, audit.QueryFilter{StartTime: &start, EndTime: &end})
	if err != nil {
		return nil, err
	}

	type acc struct {
		report    UserActivityReport
		resources map[string]struct{}
	}
	byUser := make(map[string]*acc)

	for i := range entries {
		e := &entries[i]
		if e.UserID == nil {
			continue
		}
		a, ok := byUser[*e.UserID]
		if !ok {
			a = &acc{
				report:    UserActivityReport{UserID: *e.UserID},
				resources: make(map[string]struct{}),
			}
			byUser[*e.UserID] = a
		}

		switch e.Action {
		case audit.ActionLogin:
			a.report.Logins++
		case audit.ActionLoginFailed:
			a.report.FailedLogins++
		}
		if strings.HasPrefix(e.Action, "security.") {
			a.report.SecurityEvents++
		}
		a.resources[e.Resource] = struct{}{}
	}

	reports := make([]UserActivityReport, 0, len(byUser))
	for _, a := range byUser {
		a.report.DistinctResources = len(a.resources)
		a.report.RiskScore, a.report.RiskLevel = scoreRisk(&a.report)

		if g.directory != nil {
			if info, err := g.directory.Lookup(ctx, a.report.UserID); err == nil && info != nil {
				a.report.Name = info.Name
				a.report.Email = info.Email
				a.report.Role = info.Role
			}
		}
		reports = append(reports, a.report)
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].RiskScore != reports[j].RiskScore {
			return reports[i].RiskScore > reports[j].RiskScore
		}
		return reports[i].UserID < reports[j].UserID
	})
	return reports, nil
}

func scoreRisk(r *UserActivityReport) (int, RiskLevel) {
	score := 0
	if r.FailedLogins > failedLoginThreshold {
		score += failedLoginScore
	}
	if r.DistinctResources > broadAccessThreshold {
		score += broadAccessScore
	}
	if r.SecurityEvents > securityEventThreshold {
		score += securityEventScore
	}

	switch {
	case score >= highRiskFloor:
		return score, RiskHigh
	case score >= mediumRiskFloor:
		return score, RiskMedium
	default:
		return score, RiskLow
	}
}
