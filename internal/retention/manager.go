// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/castellan/castellan/internal/audit"
	"github.com/castellan/castellan/internal/logging"
	"github.com/castellan/castellan/internal/metrics"
)

var (
	// ErrCycleRunning is returned when a retention cycle for the same
	// policy is already in progress.
	ErrCycleRunning = errors.New("retention cycle already running for policy")

	// ErrPolicyNotFound is returned for unknown policy names.
	ErrPolicyNotFound = errors.New("retention policy not found")
)

// archiveBatchLimit caps how many entries one cycle pulls into a single
// archive file.
const archiveBatchLimit = 50000

// CycleResult reports one combined archive+cleanup run.
type CycleResult struct {
	Policy    string         `json:"policy"`
	Archived  int            `json:"archived"`
	Deleted   int64          `json:"deleted"`
	Archive   *ArchiveRecord `json:"archive,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// Manager runs the retention lifecycle. It is the only writer of archive
// records. The manager logs its own actions through the audit service.
type Manager struct {
	store   audit.Store
	auditor *audit.Service
	dir     string

	mu       sync.RWMutex
	policies map[string]Policy
	locks    map[string]*sync.Mutex

	now func() time.Time
}

// NewManager creates a retention manager writing archives under dir. All
// policies are validated up front.
func NewManager(store audit.Store, auditor *audit.Service, dir string, policies []Policy) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	m := &Manager{
		store:    store,
		auditor:  auditor,
		dir:      dir,
		policies: make(map[string]Policy, len(policies)),
		locks:    make(map[string]*sync.Mutex, len(policies)),
		now:      time.Now,
	}
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.policies[p.Name]; dup {
			return nil, fmt.Errorf("duplicate retention policy %q", p.Name)
		}
		m.policies[p.Name] = p
		m.locks[p.Name] = &sync.Mutex{}
	}
	return m, nil
}

// Policies returns the configured policies.
func (m *Manager) Policies() []Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Policy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, p)
	}
	return out
}

// Policy returns one policy by name.
func (m *Manager) Policy(name string) (Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}
	return p, nil
}

// Archive writes entries older than the policy's archive horizon into a new
// archive file and marks them archived in hot storage. A nil record with no
// error means there was nothing to archive.
//
// Ordering matters: the archive file is durable on disk before any entry is
// marked. A failure anywhere leaves hot storage untouched.
func (m *Manager) Archive(ctx context.Context, policyName string) (*ArchiveRecord, error) {
	policy, err := m.Policy(policyName)
	if err != nil {
		return nil, err
	}

	cutoff := m.now().UTC().AddDate(0, 0, -policy.ArchiveAfterDays)
	notArchived := false
	entries, err := m.store.Query(ctx, audit.QueryFilter{
		ActionPrefixes: policy.ActionPrefixes,
		EndTime:        &cutoff,
		Archived:       &notArchived,
		Limit:          archiveBatchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select entries for archive: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := writeArchive(m.dir, policy.Name, entries, m.now())
	if err != nil {
		return nil, fmt.Errorf("failed to write archive for policy %s: %w", policy.Name, err)
	}

	ids := make([]string, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
	}
	if err := m.store.MarkArchived(ctx, ids); err != nil {
		// The archive file stays: re-running will produce a duplicate
		// archive rather than lose data.
		return nil, fmt.Errorf("failed to mark entries archived: %w", err)
	}

	metrics.RecordArchivedEntries(policy.Name, len(entries))
	logging.Info().
		Str("policy", policy.Name).
		Int("entries", len(entries)).
		Str("path", record.Path).
		Msg("Archive written")

	m.logAction(ctx, audit.ActionSettingsChanged, map[string]interface{}{
		"operation": "retention_archive",
		"policy":    policy.Name,
		"archived":  len(entries),
		"path":      record.Path,
		"checksum":  record.Checksum,
	})
	return record, nil
}

// Cleanup hard-deletes entries past the policy's retention horizon. Only
// archived entries are deleted unless the policy allows purging unarchived
// data.
func (m *Manager) Cleanup(ctx context.Context, policyName string) (int64, error) {
	policy, err := m.Policy(policyName)
	if err != nil {
		return 0, err
	}

	before := m.now().UTC().AddDate(0, 0, -policy.RetentionDays)
	count, err := m.store.Delete(ctx, audit.DeleteFilter{
		Before:         before,
		ActionPrefixes: policy.ActionPrefixes,
		ArchivedOnly:   !policy.PurgeUnarchived,
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup failed for policy %s: %w", policy.Name, err)
	}

	if count > 0 {
		metrics.RecordPurgedEntries(policy.Name, int(count))
		m.logAction(ctx, audit.ActionSettingsChanged, map[string]interface{}{
			"operation": "retention_cleanup",
			"policy":    policy.Name,
			"deleted":   count,
		})
	}
	return count, nil
}

// RunRetentionCycle runs archive then cleanup for one policy as a singleton:
// a second trigger while the cycle runs gets ErrCycleRunning. If archive
// fails, cleanup is skipped: unarchived data is never deleted.
func (m *Manager) RunRetentionCycle(ctx context.Context, policyName string) (*CycleResult, error) {
	m.mu.RLock()
	lock, ok := m.locks[policyName]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, policyName)
	}

	if !lock.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrCycleRunning, policyName)
	}
	defer lock.Unlock()

	result := &CycleResult{Policy: policyName, StartedAt: m.now().UTC()}

	record, err := m.Archive(ctx, policyName)
	if err != nil {
		metrics.RecordRetentionCycle(policyName, "archive_failed")
		return nil, fmt.Errorf("retention cycle for %s aborted: %w", policyName, err)
	}
	if record != nil {
		result.Archived = record.EntryCount
		result.Archive = record
	}

	deleted, err := m.Cleanup(ctx, policyName)
	if err != nil {
		metrics.RecordRetentionCycle(policyName, "cleanup_failed")
		return nil, err
	}
	result.Deleted = deleted
	result.Duration = m.now().UTC().Sub(result.StartedAt)

	metrics.RecordRetentionCycle(policyName, "ok")
	logging.Info().
		Str("policy", policyName).
		Int("archived", result.Archived).
		Int64("deleted", result.Deleted).
		Dur("duration", result.Duration).
		Msg("Retention cycle complete")
	return result, nil
}

// RestoreFromArchive verifies the archive checksum and re-inserts its
// entries into hot storage with their original ids and timestamps. A
// checksum mismatch aborts before any insert; the archive file is never
// modified.
func (m *Manager) RestoreFromArchive(ctx context.Context, path string) (*RestoreResult, error) {
	entries, record, err := readArchive(path)
	if err != nil {
		return nil, err
	}

	restored := 0
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("restore interrupted after %d entries: %w", restored, err)
		}
		entry := entries[i]
		entry.Archived = true
		if err := m.store.Save(ctx, &entry); err != nil {
			return nil, fmt.Errorf("restore failed after %d entries: %w", restored, err)
		}
		restored++
	}

	logging.Info().
		Str("path", path).
		Str("policy", record.Policy).
		Int("restored", restored).
		Msg("Archive restored")

	m.logAction(ctx, audit.ActionBackupRestored, map[string]interface{}{
		"path":     path,
		"policy":   record.Policy,
		"restored": restored,
		"checksum": record.Checksum,
	})
	return &RestoreResult{Restored: restored, Metadata: record}, nil
}

// logAction records the manager's own activity. Failures are logged, not
// propagated: a broken self-audit must not abort the retention work itself.
func (m *Manager) logAction(ctx context.Context, action string, details map[string]interface{}) {
	if m.auditor == nil {
		return
	}
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte(`{}`)
	}
	err = m.auditor.Log(ctx, &audit.Entry{
		Action:   action,
		Resource: "audit",
		Details:  payload,
		Severity: audit.SeverityLow,
	})
	if err != nil {
		logging.Warn().Err(err).Str("action", action).Msg("Failed to self-log retention action")
	}
}
