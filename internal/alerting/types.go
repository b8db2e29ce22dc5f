// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/castellan/castellan/internal/audit"
)

var (
	// ErrAlertNotFound is returned when no alert exists for an id.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrAlertResolved is returned when resolving an already-terminal
	// alert. Resolution is terminal: no transitions out of resolved or
	// false_positive.
	ErrAlertResolved = errors.New("alert already resolved")
)

// Status is an alert's lifecycle state.
type Status string

const (
	StatusActive        Status = "active"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
)

// Terminal reports whether the status allows no further transitions.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFalsePositive
}

// Alert is one raised security alert. EventIDs reference the audit entries
// that triggered and fed it.
type Alert struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Severity audit.Severity `json:"severity"`
	Status   Status         `json:"status"`

	// Subject is the user or address the pattern clustered on.
	Subject string `json:"subject"`

	Message  string   `json:"message"`
	EventIDs []string `json:"event_ids"`

	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter selects alerts from the store.
type Filter struct {
	Statuses []Status `json:"statuses,omitempty"`
	Types    []string `json:"types,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// Store persists alerts and their resolution state.
type Store interface {
	// Save inserts or overwrites an alert.
	Save(ctx context.Context, alert *Alert) error

	// Get retrieves an alert by id, ErrAlertNotFound if missing.
	Get(ctx context.Context, id string) (*Alert, error)

	// List retrieves alerts matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]Alert, error)
}

// SecurityStats summarizes the alert population.
type SecurityStats struct {
	Active        int              `json:"active"`
	Resolved      int              `json:"resolved"`
	FalsePositive int              `json:"false_positive"`
	BySeverity    map[string]int   `json:"by_severity"`
	ByType        map[string]int   `json:"by_type"`
}
