// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

// Package retention implements the policy-driven archive/cleanup/restore
// lifecycle over the audit store.
//
// Each policy owns a class of audit entries selected by action prefix. A
// retention cycle archives entries past the archive horizon into a
// checksummed tar.gz, marks them archived in hot storage, then hard-deletes
// archived entries past the retention horizon. Archive must be durable
// before anything is deleted: if the archive step fails, cleanup for that
// policy is skipped entirely.
//
// At most one cycle per policy runs at a time; overlapping triggers for the
// same policy are rejected with ErrCycleRunning. Different policies run
// concurrently.
package retention
