// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

// Package audit records security-relevant events for compliance and forensic
// analysis.
//
// Entries are append-only: once written they are never mutated and only the
// retention manager deletes them. Creation timestamp plus insertion order is
// the sole ordering guarantee.
//
// The Service persists every entry synchronously before returning; a write
// failure is the caller's error. After a successful write the entry is also
// published to the in-process event bus for the alerting system; publishing
// is best effort and never gates the caller.
//
// A denied permission check produces two entries: the compliance trail gets
// permission.check_denied and the security feed gets
// security.permission_denied. The dual write is deliberate so the two feeds
// can be queried independently.
package audit
