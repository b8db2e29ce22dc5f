// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package retention

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Policy governs one class of audit entries: how long they live in hot
// storage, when they move to cold archives, and when the cycle runs.
type Policy struct {
	// Name identifies the policy and its lock.
	Name string `json:"name" koanf:"name" validate:"required"`

	// RetentionDays is the hard-delete horizon.
	RetentionDays int `json:"retention_days" koanf:"retention_days" validate:"required,gt=0"`

	// ArchiveAfterDays is the move-to-archive horizon. Must be strictly
	// less than RetentionDays.
	ArchiveAfterDays int `json:"archive_after_days" koanf:"archive_after_days" validate:"required,gt=0"`

	// Schedule is the cron expression for the policy's cycle.
	Schedule string `json:"schedule" koanf:"schedule" validate:"required"`

	// ActionPrefixes selects the audit entries the policy owns.
	ActionPrefixes []string `json:"action_prefixes" koanf:"action_prefixes" validate:"required,min=1"`

	// PurgeUnarchived lets cleanup delete expired entries that were never
	// archived. Only sensible for low-value classes like debug.
	PurgeUnarchived bool `json:"purge_unarchived" koanf:"purge_unarchived"`
}

var policyValidator = validator.New()

// Validate checks the policy's structural constraints.
func (p Policy) Validate() error {
	if err := policyValidator.Struct(p); err != nil {
		return fmt.Errorf("invalid retention policy %q: %w", p.Name, err)
	}
	if p.ArchiveAfterDays >= p.RetentionDays {
		return fmt.Errorf("invalid retention policy %q: archive_after_days (%d) must be less than retention_days (%d)",
			p.Name, p.ArchiveAfterDays, p.RetentionDays)
	}
	return nil
}

// DefaultPolicies returns the four standard policies. The numbers are
// defaults, not contract: configuration overrides them.
func DefaultPolicies() []Policy {
	return []Policy{
		{
			Name:             "security",
			RetentionDays:    2555, // ~7 years
			ArchiveAfterDays: 365,
			Schedule:         "0 1 * * *",
			ActionPrefixes:   []string{"security."},
		},
		{
			Name:             "audit",
			RetentionDays:    1095, // ~3 years
			ArchiveAfterDays: 180,
			Schedule:         "0 2 * * *",
			ActionPrefixes:   []string{"permission.", "auth.", "user.", "resource."},
		},
		{
			Name:             "system",
			RetentionDays:    365,
			ArchiveAfterDays: 90,
			Schedule:         "0 3 * * *",
			ActionPrefixes:   []string{"system."},
		},
		{
			Name:             "debug",
			RetentionDays:    30,
			ArchiveAfterDays: 7,
			Schedule:         "0 4 * * *",
			ActionPrefixes:   []string{"debug."},
			PurgeUnarchived:  true,
		},
	}
}
