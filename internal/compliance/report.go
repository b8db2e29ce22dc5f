// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package compliance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/castellan/castellan/internal/audit"
	"github.com/castellan/castellan/internal/logging"
	"github.com/castellan/castellan/internal/rbac"
	"github.com/castellan/castellan/internal/retention"
)

// ErrStoreUnavailable is the generic error callers see when audit store
// reads keep failing. The underlying error goes to the logs only.
var ErrStoreUnavailable = errors.New("audit store unavailable")

// UserInfo is the directory's view of one user.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserDirectory resolves user ids to display information. The surrounding
// CMS implements it; reports fall back to the raw id when lookup fails.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (*UserInfo, error)
}

// Criteria filters the audit trail for a compliance report.
type Criteria struct {
	Start           time.Time `json:"start" validate:"required"`
	End             time.Time `json:"end" validate:"required,gtfield=Start"`
	UserID          *string   `json:"user_id,omitempty"`
	Actions         []string  `json:"actions,omitempty"`
	Resources       []string  `json:"resources,omitempty"`
	IncludeFailures bool      `json:"include_failures"`
}

// Metadata identifies one generated report.
type Metadata struct {
	ReportID    string    `json:"report_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	RecordCount int       `json:"record_count"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Summary holds the headline counts of a report period.
type Summary struct {
	TotalActions   int64 `json:"total_actions"`
	UniqueUsers    int   `json:"unique_users"`
	FailedActions  int64 `json:"failed_actions"`
	CriticalEvents int64 `json:"critical_events"`
}

// UserActivity is the per-user breakdown inside a compliance report.
type UserActivity struct {
	UserID      string           `json:"user_id"`
	Name        string           `json:"name,omitempty"`
	Email       string           `json:"email,omitempty"`
	Role        string           `json:"role,omitempty"`
	ActionCount int64            `json:"action_count"`
	ByAction    map[string]int64 `json:"by_action"`
	LastActive  time.Time        `json:"last_active"`
}

// Report is a derived view over the trail. It is never persisted as
// authoritative state.
type Report struct {
	Metadata       Metadata               `json:"metadata"`
	Summary        Summary                `json:"summary"`
	UserActivity   []UserActivity         `json:"user_activity"`
	SecurityEvents []audit.Entry          `json:"security_events"`
	Integrity      *audit.IntegrityResult `json:"integrity"`
}

// Generator builds compliance artifacts from the audit trail.
type Generator struct {
	auditor   *audit.Service
	retention *retention.Manager
	registry  *rbac.Registry
	directory UserDirectory

	breaker *gobreaker.CircuitBreaker[[]audit.Entry]
	now     func() time.Time
}

// NewGenerator creates a report generator. directory may be nil; user rows
// then carry ids only.
func NewGenerator(auditor *audit.Service, ret *retention.Manager, registry *rbac.Registry, directory UserDirectory) *Generator {
	g := &Generator{
		auditor:   auditor,
		retention: ret,
		registry:  registry,
		directory: directory,
		now:       time.Now,
	}
	g.SetBreakerSettings(30*time.Second, 5)
	return g
}

// SetBreakerSettings rebuilds the store-read circuit breaker with the
// given open timeout and consecutive-failure trip threshold. Call before
// serving reports.
func (g *Generator) SetBreakerSettings(timeout time.Duration, failures uint32) {
	g.breaker = gobreaker.NewCircuitBreaker[[]audit.Entry](gobreaker.Settings{
		Name:    "compliance-store-reads",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})
}

// queryTrail reads entries through the circuit breaker. Callers get a
// generic error once the breaker opens; the cause is logged for operators.
func (g *Generator) queryTrail(ctx context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	entries, err := g.breaker.Execute(func() ([]audit.Entry, error) {
		return g.auditor.Query(ctx, filter)
	})
	if err != nil {
		logging.Error().Err(err).Msg("Compliance trail read failed")
		return nil, ErrStoreUnavailable
	}
	return entries, nil
}

// GenerateComplianceReport builds a full period report for the criteria.
func (g *Generator) GenerateComplianceReport(ctx context.Context, criteria Criteria) (*Report, error) {
	if !criteria.End.After(criteria.Start) {
		return nil, fmt.Errorf("report period end must be after start")
	}

	filter := audit.QueryFilter{
		StartTime: &criteria.Start,
		EndTime:   &criteria.End,
		UserID:    criteria.UserID,
		Actions:   criteria.Actions,
	}
	entries, err := g.queryTrail(ctx, filter)
	if err != nil {
		return nil, err
	}
	entries = filterByResources(entries, criteria.Resources)
	if !criteria.IncludeFailures {
		entries = dropFailures(entries)
	}

	report := &Report{
		Metadata: Metadata{
			ReportID:    "compliance-" + uuid.NewString(),
			PeriodStart: criteria.Start,
			PeriodEnd:   criteria.End,
			RecordCount: len(entries),
			GeneratedAt: g.now().UTC(),
		},
		Summary:        summarize(entries),
		UserActivity:   g.userActivity(ctx, entries),
		SecurityEvents: securityExcerpt(entries, 10),
	}

	integrity, err := g.auditor.ValidateIntegrity(ctx, 1000)
	if err != nil {
		logging.Warn().Err(err).Msg("Integrity scan failed during report generation")
	} else {
		report.Integrity = integrity
	}
	return report, nil
}

func filterByResources(entries []audit.Entry, resources []string) []audit.Entry {
	if len(resources) == 0 {
		return entries
	}
	want := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		want[r] = struct{}{}
	}
	var out []audit.Entry
	for _, e := range entries {
		if _, ok := want[e.Resource]; ok {
			out = append(out, e)
		}
	}
	return out
}

// isFailure classifies an entry as a failed action for summary purposes.
func isFailure(e *audit.Entry) bool {
	switch e.Action {
	case audit.ActionLoginFailed, audit.ActionPermissionDenied:
		return true
	}
	return e.Severity == audit.SeverityHigh || e.Severity == audit.SeverityCritical
}

// isDenialMirror reports whether the entry is the security twin of a
// denial that is already counted under its primary action.
func isDenialMirror(e *audit.Entry) bool {
	return e.Action == audit.ActionSecurityPermissionDenied ||
		e.Action == audit.ActionSecurityUnauthorizedAccess
}

func dropFailures(entries []audit.Entry) []audit.Entry {
	var out []audit.Entry
	for i := range entries {
		if !isFailure(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out
}

func summarize(entries []audit.Entry) Summary {
	s := Summary{TotalActions: int64(len(entries))}
	users := make(map[string]struct{})
	for i := range entries {
		e := &entries[i]
		if e.UserID != nil {
			users[*e.UserID] = struct{}{}
		}
		if isFailure(e) && !isDenialMirror(e) {
			s.FailedActions++
		}
		if e.Severity == audit.SeverityCritical {
			s.CriticalEvents++
		}
	}
	s.UniqueUsers = len(users)
	return s
}

func (g *Generator) userActivity(ctx context.Context, entries []audit.Entry) []UserActivity {
	byUser := make(map[string]*UserActivity)
	for i := range entries {
		e := &entries[i]
		if e.UserID == nil {
			continue
		}
		act, ok := byUser[*e.UserID]
		if !ok {
			act = &UserActivity{UserID: *e.UserID, ByAction: make(map[string]int64)}
			byUser[*e.UserID] = act
		}
		act.ActionCount++
		act.ByAction[e.Action]++
		if e.CreatedAt.After(act.LastActive) {
			act.LastActive = e.CreatedAt
		}
	}

	out := make([]UserActivity, 0, len(byUser))
	for _, act := range byUser {
		g.resolveUser(ctx, act)
		out = append(out, *act)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActionCount != out[j].ActionCount {
			return out[i].ActionCount > out[j].ActionCount
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (g *Generator) resolveUser(ctx context.Context, act *UserActivity) {
	if g.directory == nil {
		return
	}
	info, err := g.directory.Lookup(ctx, act.UserID)
	if err != nil || info == nil {
		return
	}
	act.Name = info.Name
	act.Email = info.Email
	act.Role = info.Role
}

func securityExcerpt(entries []audit.Entry, limit int) []audit.Entry {
	var out []audit.Entry
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		if isSecurityAction(entries[i].Action) {
			out = append(out, entries[i])
		}
	}
	return out
}

func isSecurityAction(action string) bool {
	return len(action) > 9 && action[:9] == "security."
}
