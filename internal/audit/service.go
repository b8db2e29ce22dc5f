// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/castellan/castellan/internal/logging"
	"github.com/castellan/castellan/internal/metrics"
	"github.com/castellan/castellan/internal/rbac"
)

// TopicEntries is the event bus topic every persisted entry is published to.
const TopicEntries = "audit.entries"

// RoleRanker resolves a role id to its hierarchy rank. Implemented by
// rbac.Registry.
type RoleRanker interface {
	Rank(roleID string) (int, bool)
}

// Service is the audit logging front end. Writes are synchronous: Log
// returns only after the store accepted the entry. The event bus publish
// that follows is best effort.
type Service struct {
	store     Store
	publisher message.Publisher
	ranker    RoleRanker

	now func() time.Time
}

// NewService creates an audit service. publisher and ranker may be nil:
// without a publisher entries are not fed to alerting, without a ranker role
// changes are logged but escalation is not detected.
func NewService(store Store, publisher message.Publisher, ranker RoleRanker) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		ranker:    ranker,
		now:       time.Now,
	}
}

// Log validates, persists, and publishes one entry. The entry is assigned an
// id and timestamp if missing. A store failure is returned to the caller; a
// publish failure is logged and counted but not returned.
func (s *Service) Log(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if entry.Action == "" {
		return fmt.Errorf("audit entry requires an action")
	}
	if !strings.Contains(entry.Action, ".") {
		return fmt.Errorf("audit action %q is not dot-namespaced", entry.Action)
	}
	if entry.Resource == "" {
		return fmt.Errorf("audit entry requires a resource")
	}
	if entry.Severity == "" {
		entry.Severity = SeverityLow
	}
	if !entry.Severity.Valid() {
		return fmt.Errorf("invalid severity %q", entry.Severity)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	if err := s.store.Save(ctx, entry); err != nil {
		metrics.RecordAuditWriteFailure()
		return fmt.Errorf("failed to persist audit entry: %w", err)
	}
	metrics.RecordAuditEntry(entry.Action, string(entry.Severity))

	s.publish(entry)
	return nil
}

func (s *Service) publish(entry *Entry) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		metrics.RecordAuditPublishFailure()
		logging.Warn().Err(err).Str("entry_id", entry.ID).Msg("Failed to encode audit entry for event bus")
		return
	}
	msg := message.NewMessage(entry.ID, payload)
	if err := s.publisher.Publish(TopicEntries, msg); err != nil {
		metrics.RecordAuditPublishFailure()
		logging.Warn().Err(err).Str("entry_id", entry.ID).Msg("Failed to publish audit entry")
	}
}

// LogPermissionCheck records the outcome of a permission evaluation. A
// denial writes two entries: permission.check_denied for the compliance
// trail and security.permission_denied for the incident feed.
func (s *Service) LogPermissionCheck(ctx context.Context, actor rbac.Actor, req rbac.Request, decision rbac.Decision, netctx Context) error {
	details := mustJSON(map[string]interface{}{
		"role":   actor.Role,
		"action": req.Action,
		"scope":  string(req.Scope),
		"reason": string(decision.Reason),
	})

	action := ActionPermissionDenied
	severity := SeverityMedium
	if decision.Allowed {
		action = ActionPermissionGranted
		severity = SeverityLow
	}

	if err := s.Log(ctx, &Entry{
		UserID:    actorID(actor),
		Action:    action,
		Resource:  req.Resource,
		Details:   details,
		Severity:  severity,
		IPAddress: netctx.IPAddress,
		UserAgent: netctx.UserAgent,
	}); err != nil {
		return err
	}

	if decision.Allowed {
		return nil
	}
	return s.Log(ctx, &Entry{
		UserID:    actorID(actor),
		Action:    ActionSecurityPermissionDenied,
		Resource:  req.Resource,
		Details:   details,
		Severity:  SeverityHigh,
		IPAddress: netctx.IPAddress,
		UserAgent: netctx.UserAgent,
	})
}

// LogAuth records an authentication event. Failed logins default to medium
// severity, everything else to low.
func (s *Service) LogAuth(ctx context.Context, userID *string, action string, details map[string]interface{}, netctx Context) error {
	if !strings.HasPrefix(action, "auth.") {
		return fmt.Errorf("auth event action %q must be auth-namespaced", action)
	}
	severity := SeverityLow
	if action == ActionLoginFailed {
		severity = SeverityMedium
	}
	return s.Log(ctx, &Entry{
		UserID:    userID,
		Action:    action,
		Resource:  "session",
		Details:   mustJSON(details),
		Severity:  severity,
		IPAddress: netctx.IPAddress,
		UserAgent: netctx.UserAgent,
	})
}

// LogRoleChange records a role assignment. When the new role outranks the
// old one, a second security.suspicious_activity entry flags the privilege
// escalation.
func (s *Service) LogRoleChange(ctx context.Context, actorID *string, subjectID, oldRole, newRole, reason string, netctx Context) error {
	details := mustJSON(map[string]interface{}{
		"subject_id": subjectID,
		"old_role":   oldRole,
		"new_role":   newRole,
		"reason":     reason,
	})

	if err := s.Log(ctx, &Entry{
		UserID:     actorID,
		Action:     ActionRoleChanged,
		Resource:   "users",
		ResourceID: subjectID,
		Details:    details,
		Severity:   SeverityMedium,
		IPAddress:  netctx.IPAddress,
		UserAgent:  netctx.UserAgent,
	}); err != nil {
		return err
	}

	if !s.isEscalation(oldRole, newRole) {
		return nil
	}
	return s.Log(ctx, &Entry{
		UserID:     actorID,
		Action:     ActionSecuritySuspiciousActivity,
		Resource:   "users",
		ResourceID: subjectID,
		Details: mustJSON(map[string]interface{}{
			"type":       "privilege_escalation",
			"subject_id": subjectID,
			"old_role":   oldRole,
			"new_role":   newRole,
		}),
		Severity:  SeverityHigh,
		IPAddress: netctx.IPAddress,
		UserAgent: netctx.UserAgent,
	})
}

// isEscalation reports whether newRole strictly outranks oldRole. Unknown
// roles are never treated as an escalation.
func (s *Service) isEscalation(oldRole, newRole string) bool {
	if s.ranker == nil {
		return false
	}
	oldRank, ok := s.ranker.Rank(oldRole)
	if !ok {
		return false
	}
	newRank, ok := s.ranker.Rank(newRole)
	if !ok {
		return false
	}
	return newRank > oldRank
}

// LogResourceAccess records a resource operation as resource.<action>. A
// failed access also writes a security.unauthorized_access entry.
func (s *Service) LogResourceAccess(ctx context.Context, userID *string, action, resource, resourceID string, success bool, reason string, netctx Context) error {
	details := mustJSON(map[string]interface{}{
		"success": success,
		"reason":  reason,
	})

	severity := SeverityLow
	if !success {
		severity = SeverityMedium
	}

	if err := s.Log(ctx, &Entry{
		UserID:     userID,
		Action:     "resource." + action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		Severity:   severity,
		IPAddress:  netctx.IPAddress,
		UserAgent:  netctx.UserAgent,
	}); err != nil {
		return err
	}

	if success {
		return nil
	}
	return s.Log(ctx, &Entry{
		UserID:     userID,
		Action:     ActionSecurityUnauthorizedAccess,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		Severity:   SeverityHigh,
		IPAddress:  netctx.IPAddress,
		UserAgent:  netctx.UserAgent,
	})
}

// LogSecurity records a direct security event. The resource is fixed to
// "system".
func (s *Service) LogSecurity(ctx context.Context, userID *string, eventType string, severity Severity, details map[string]interface{}, netctx Context) error {
	action := eventType
	if !strings.HasPrefix(action, "security.") {
		action = "security." + action
	}
	return s.Log(ctx, &Entry{
		UserID:    userID,
		Action:    action,
		Resource:  "system",
		Details:   mustJSON(details),
		Severity:  severity,
		IPAddress: netctx.IPAddress,
		UserAgent: netctx.UserAgent,
	})
}

// GetStats aggregates the trailing windowDays of the trail.
func (s *Service) GetStats(ctx context.Context, windowDays int) (*Stats, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := s.now().UTC().AddDate(0, 0, -windowDays)
	return s.store.Stats(ctx, since, 20)
}

// ThreatType is one entry in a security incident ranking.
type ThreatType struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// SecurityIncidents summarizes the security feed over a window.
type SecurityIncidents struct {
	Total          int64        `json:"total"`
	Critical       int64        `json:"critical"`
	TopThreatTypes []ThreatType `json:"top_threat_types"`
}

// GetSecurityIncidents summarizes security.* entries over the trailing
// windowDays. Threat types are ranked by frequency; ties break in
// first-seen order.
func (s *Service) GetSecurityIncidents(ctx context.Context, windowDays int) (*SecurityIncidents, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := s.now().UTC().AddDate(0, 0, -windowDays)

	entries, err := s.store.Query(ctx, QueryFilter{
		ActionPrefixes: []string{"security."},
		StartTime:      &since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query security incidents: %w", err)
	}

	incidents := &SecurityIncidents{}
	counts := make(map[string]int64)
	firstSeen := make(map[string]int)

	for i, e := range entries {
		incidents.Total++
		if e.Severity == SeverityCritical {
			incidents.Critical++
		}
		if _, seen := counts[e.Action]; !seen {
			firstSeen[e.Action] = i
		}
		counts[e.Action]++
	}

	types := make([]ThreatType, 0, len(counts))
	for action, count := range counts {
		types = append(types, ThreatType{Type: action, Count: count})
	}
	sort.SliceStable(types, func(i, j int) bool {
		if types[i].Count != types[j].Count {
			return types[i].Count > types[j].Count
		}
		return firstSeen[types[i].Type] < firstSeen[types[j].Type]
	})
	if len(types) > 10 {
		types = types[:10]
	}
	incidents.TopThreatTypes = types
	return incidents, nil
}

// Cleanup hard-deletes entries older than olderThanDays. This is the manual
// path, distinct from the retention manager's policy-aware cycle.
func (s *Service) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("olderThanDays must be positive")
	}
	before := s.now().UTC().AddDate(0, 0, -olderThanDays)
	count, err := s.store.Delete(ctx, DeleteFilter{Before: before})
	if err != nil {
		return 0, fmt.Errorf("audit cleanup failed: %w", err)
	}
	logging.Info().Int64("deleted", count).Int("older_than_days", olderThanDays).Msg("Manual audit cleanup complete")
	return count, nil
}

// IntegrityResult reports the outcome of an advisory integrity scan.
type IntegrityResult struct {
	IsValid    bool     `json:"is_valid"`
	Issues     []string `json:"issues"`
	TotalLogs  int64    `json:"total_logs"`
	ValidLogs  int64    `json:"valid_logs"`
	CheckedAt  string   `json:"checked_at"`
	SampleSize int      `json:"sample_size"`
}

// ValidateIntegrity scans up to sampleLimit recent entries for structural
// problems: missing required fields, invalid severities, out-of-order
// timestamps. Advisory only, no cryptographic chain.
func (s *Service) ValidateIntegrity(ctx context.Context, sampleLimit int) (*IntegrityResult, error) {
	if sampleLimit <= 0 {
		sampleLimit = 1000
	}

	// Newest first: a bounded sample has to cover recent writes, not the
	// head of the table.
	entries, err := s.store.Query(ctx, QueryFilter{Limit: sampleLimit, OrderDesc: true})
	if err != nil {
		return nil, fmt.Errorf("integrity scan failed: %w", err)
	}

	result := &IntegrityResult{
		IsValid:    true,
		TotalLogs:  int64(len(entries)),
		CheckedAt:  s.now().UTC().Format(time.RFC3339),
		SampleSize: sampleLimit,
	}

	var prev time.Time
	for i := range entries {
		e := &entries[i]
		valid := true

		if e.ID == "" {
			result.Issues = append(result.Issues, fmt.Sprintf("entry at index %d has no id", i))
			valid = false
		}
		if e.Action == "" {
			result.Issues = append(result.Issues, fmt.Sprintf("entry %s has no action", e.ID))
			valid = false
		}
		if e.Resource == "" {
			result.Issues = append(result.Issues, fmt.Sprintf("entry %s has no resource", e.ID))
			valid = false
		}
		if !e.Severity.Valid() {
			result.Issues = append(result.Issues, fmt.Sprintf("entry %s has invalid severity %q", e.ID, e.Severity))
			valid = false
		}
		if e.CreatedAt.IsZero() {
			result.Issues = append(result.Issues, fmt.Sprintf("entry %s has no timestamp", e.ID))
			valid = false
		} else if !prev.IsZero() && e.CreatedAt.After(prev) {
			result.Issues = append(result.Issues, fmt.Sprintf("entry %s is out of order", e.ID))
			valid = false
		}
		if !e.CreatedAt.IsZero() {
			prev = e.CreatedAt
		}

		if valid {
			result.ValidLogs++
		}
	}

	result.IsValid = len(result.Issues) == 0
	return result, nil
}

// Query exposes the underlying store's filtered read.
func (s *Service) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	return s.store.Query(ctx, filter)
}

// Count exposes the underlying store's filtered count.
func (s *Service) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.store.Count(ctx, filter)
}

func actorID(actor rbac.Actor) *string {
	if actor.ID == "" {
		return nil
	}
	id := actor.ID
	return &id
}

func mustJSON(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
