// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

// Package compliance derives reports from the audit trail: period
// compliance reports, standard control checklists (SOC2, ISO27001, GDPR,
// HIPAA), exportable audit trails, and per-user activity summaries with
// risk scoring.
//
// Every report is a read-only view: nothing here writes to the trail, and a
// fixed trail with fixed criteria yields the same report (report id and
// generation timestamp aside). Store reads go through a circuit breaker so
// a failing store degrades to fast generic errors instead of piling up
// slow ones.
package compliance
