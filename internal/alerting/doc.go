// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

// Package alerting watches the audit event feed for attack patterns and
// raises security alerts.
//
// Detection is decoupled from the request path: the system consumes audit
// entries from the in-process event bus, never raw requests. Rules track
// repeated authentication failures, repeated permission denials, and
// privilege escalations. One alert exists per (rule, subject) while active;
// further matching events attach to it rather than raising duplicates.
// Resolution to resolved or false_positive is terminal and audit-logged.
package alerting
