// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

// Package metrics provides Prometheus metrics for the access-control and
// audit pipeline.
//
// Metrics Categories:
//   - Permission Decisions: allow/deny counts, latency histograms
//   - Decision Cache: hit/miss rates, invalidations
//   - Audit Pipeline: entries written, write failures, queue depth
//   - Retention: cycle outcomes, archived and purged entry counts
//   - Alerting: alerts raised and resolved, notification throttling
//
// Usage:
//
//	// Record a permission decision
//	RecordDecision("editor", "pages", "update", true, false, 80*time.Microsecond)
//
//	// Record an audit entry write
//	RecordAuditEntry("permission.check_denied", "medium")
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Permission Decision Metrics

	// DecisionsTotal counts permission decisions by role, resource, action, and outcome.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_rbac_decisions_total",
			Help: "Total number of permission decisions",
		},
		[]string{"role", "resource", "action", "decision"},
	)

	// DecisionDuration tracks the latency of permission decisions.
	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "castellan_rbac_decision_duration_seconds",
			Help:    "Duration of permission decisions in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"role", "cache_hit"},
	)

	// DeniedTotal specifically tracks denied requests for alerting.
	DeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_rbac_denied_total",
			Help: "Total number of permission denials (for alerting)",
		},
		[]string{"role", "resource", "action"},
	)

	// Decision Cache Metrics

	// CacheHitsTotal counts decision cache hits.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "castellan_rbac_cache_hits_total",
			Help: "Total number of decision cache hits",
		},
	)

	// CacheMissesTotal counts decision cache misses.
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "castellan_rbac_cache_misses_total",
			Help: "Total number of decision cache misses",
		},
	)

	// CacheInvalidationsTotal counts role-level cache invalidations.
	CacheInvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "castellan_rbac_cache_invalidations_total",
			Help: "Total number of decision cache invalidations",
		},
	)

	// Audit Pipeline Metrics

	// AuditEntriesTotal counts audit entries written by action and severity.
	AuditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_audit_entries_total",
			Help: "Total number of audit entries written",
		},
		[]string{"action", "severity"},
	)

	// AuditWriteFailuresTotal counts audit store write failures.
	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "castellan_audit_write_failures_total",
			Help: "Total number of audit store write failures",
		},
	)

	// AuditPublishFailuresTotal counts failures publishing entries to the alerting bus.
	AuditPublishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "castellan_audit_publish_failures_total",
			Help: "Total number of audit event publish failures",
		},
	)

	// Retention Metrics

	// RetentionCyclesTotal counts retention cycles by policy and outcome.
	RetentionCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_retention_cycles_total",
			Help: "Total number of retention cycles executed",
		},
		[]string{"policy", "outcome"},
	)

	// RetentionEntriesArchivedTotal counts audit entries written to archives.
	RetentionEntriesArchivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_retention_entries_archived_total",
			Help: "Total number of audit entries archived",
		},
		[]string{"policy"},
	)

	// RetentionEntriesPurgedTotal counts audit entries deleted by cleanup.
	RetentionEntriesPurgedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_retention_entries_purged_total",
			Help: "Total number of audit entries purged",
		},
		[]string{"policy"},
	)

	// Alerting Metrics

	// AlertsRaisedTotal counts security alerts raised by rule and severity.
	AlertsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_alerts_raised_total",
			Help: "Total number of security alerts raised",
		},
		[]string{"rule", "severity"},
	)

	// AlertsResolvedTotal counts alert lifecycle transitions out of active.
	AlertsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castellan_alerts_resolved_total",
			Help: "Total number of alerts resolved or marked false positive",
		},
		[]string{"status"},
	)

	// NotificationsThrottledTotal counts notifications suppressed by rate limiting.
	NotificationsThrottledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "castellan_notifications_throttled_total",
			Help: "Total number of alert notifications suppressed by throttling",
		},
	)
)

// RecordDecision records a permission decision with its latency.
func RecordDecision(role, resource, action string, allowed, cacheHit bool, duration time.Duration) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	DecisionsTotal.WithLabelValues(role, resource, action, decision).Inc()
	DecisionDuration.WithLabelValues(role, boolLabel(cacheHit)).Observe(duration.Seconds())
	if !allowed {
		DeniedTotal.WithLabelValues(role, resource, action).Inc()
	}
	if cacheHit {
		CacheHitsTotal.Inc()
	} else {
		CacheMissesTotal.Inc()
	}
}

// RecordDecisionCacheInvalidation records a role-level cache invalidation.
func RecordDecisionCacheInvalidation() {
	CacheInvalidationsTotal.Inc()
}

// RecordAuditEntry records a successfully written audit entry.
func RecordAuditEntry(action, severity string) {
	AuditEntriesTotal.WithLabelValues(action, severity).Inc()
}

// RecordAuditWriteFailure records a failed audit store write.
func RecordAuditWriteFailure() {
	AuditWriteFailuresTotal.Inc()
}

// RecordAuditPublishFailure records a failed publish to the alerting bus.
func RecordAuditPublishFailure() {
	AuditPublishFailuresTotal.Inc()
}

// RecordRetentionCycle records a retention cycle outcome for a policy.
func RecordRetentionCycle(policy, outcome string) {
	RetentionCyclesTotal.WithLabelValues(policy, outcome).Inc()
}

// RecordArchivedEntries records entries written to an archive.
func RecordArchivedEntries(policy string, count int) {
	RetentionEntriesArchivedTotal.WithLabelValues(policy).Add(float64(count))
}

// RecordPurgedEntries records entries removed by cleanup.
func RecordPurgedEntries(policy string, count int) {
	RetentionEntriesPurgedTotal.WithLabelValues(policy).Add(float64(count))
}

// RecordAlertRaised records a newly raised security alert.
func RecordAlertRaised(rule, severity string) {
	AlertsRaisedTotal.WithLabelValues(rule, severity).Inc()
}

// RecordAlertResolved records an alert leaving the active state.
func RecordAlertResolved(status string) {
	AlertsResolvedTotal.WithLabelValues(status).Inc()
}

// RecordNotificationThrottled records a throttled notification.
func RecordNotificationThrottled() {
	NotificationsThrottledTotal.Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
