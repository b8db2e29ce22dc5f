// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Severity indicates how security-relevant an audit entry is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the four severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Audit actions are dot-namespaced. The prefix classifies the entry for
// retention and alerting.
const (
	// Permission check trail
	ActionPermissionGranted = "permission.check_granted"
	ActionPermissionDenied  = "permission.check_denied"

	// Authentication events
	ActionLogin           = "auth.login"
	ActionLoginFailed     = "auth.login_failed"
	ActionLogout          = "auth.logout"
	ActionPasswordChanged = "auth.password_changed"
	ActionSessionExpired  = "auth.session_expired"

	// User management events
	ActionRoleChanged = "user.role_changed"

	// Security incident feed
	ActionSecurityPermissionDenied    = "security.permission_denied"
	ActionSecurityUnauthorizedAccess  = "security.unauthorized_access"
	ActionSecuritySuspiciousActivity  = "security.suspicious_activity"
	ActionSecurityPrivilegeEscalation = "security.privilege_escalation"

	// System events
	ActionSettingsChanged = "system.settings_changed"
	ActionBackupRestored  = "system.backup_restored"
)

// Entry is a single audit record. A nil UserID marks a system action.
type Entry struct {
	ID         string          `json:"id"`
	UserID     *string         `json:"user_id"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resource_id,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	Severity   Severity        `json:"severity"`
	IPAddress  string          `json:"ip_address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`

	// Archived marks entries already written to a retention archive.
	Archived bool `json:"archived,omitempty"`
}

// Context carries the network attributes of the request that caused an entry.
type Context struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// QueryFilter selects audit entries. Zero values mean "no constraint".
type QueryFilter struct {
	Actions        []string   `json:"actions,omitempty"`
	ActionPrefixes []string   `json:"action_prefixes,omitempty"`
	Severities     []Severity `json:"severities,omitempty"`
	UserID         *string    `json:"user_id,omitempty"`
	Resource       string     `json:"resource,omitempty"`
	ResourceID     string     `json:"resource_id,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Archived       *bool      `json:"archived,omitempty"`

	// Limit and Offset page results; Limit 0 means no limit.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// OrderDesc orders by creation time descending (newest first).
	OrderDesc bool `json:"order_desc,omitempty"`
}

// DeleteFilter selects entries for removal by the retention manager.
type DeleteFilter struct {
	// Before removes entries created strictly before this time.
	Before time.Time

	// ActionPrefixes restricts deletion to matching action classes.
	ActionPrefixes []string

	// ArchivedOnly restricts deletion to entries already archived.
	ArchivedOnly bool
}

// Stats summarizes a window of the audit trail.
type Stats struct {
	Total      int64            `json:"total"`
	ByAction   map[string]int64 `json:"by_action"`
	ByResource map[string]int64 `json:"by_resource"`
	BySeverity map[string]int64 `json:"by_severity"`
	Recent     []Entry          `json:"recent"`
}

// Store persists audit entries.
type Store interface {
	// Save persists one entry. The entry's ID and CreatedAt are already set.
	Save(ctx context.Context, entry *Entry) error

	// Get retrieves an entry by id.
	Get(ctx context.Context, id string) (*Entry, error)

	// Query retrieves entries matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]Entry, error)

	// Count returns the number of entries matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// MarkArchived flags the given entries as archived.
	MarkArchived(ctx context.Context, ids []string) error

	// Delete removes entries matching the filter and reports how many.
	Delete(ctx context.Context, filter DeleteFilter) (int64, error)

	// Stats aggregates entries created at or after since.
	Stats(ctx context.Context, since time.Time, recentLimit int) (*Stats, error)
}
