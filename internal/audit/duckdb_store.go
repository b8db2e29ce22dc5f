// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/castellan/castellan/internal/logging"
)

// DuckDBStore implements Store using DuckDB for durable audit storage.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore creates a DuckDB-backed audit store. Call CreateTable before
// first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_entries table and its indexes if missing.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			action TEXT NOT NULL,
			resource TEXT NOT NULL,
			resource_id TEXT,
			details JSON,
			severity TEXT NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			archived BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_entries(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action);
		CREATE INDEX IF NOT EXISTS idx_audit_severity ON audit_entries(severity);
		CREATE INDEX IF NOT EXISTS idx_audit_user_id ON audit_entries(user_id);
		CREATE INDEX IF NOT EXISTS idx_audit_archived ON audit_entries(archived);
	`

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Info().Msg("Audit entries table created/verified")
	return nil
}

// Save persists one audit entry.
func (s *DuckDBStore) Save(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}

	var details *string
	if len(entry.Details) > 0 {
		d := string(entry.Details)
		details = &d
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, user_id, action, resource, resource_id,
			details, severity, ip_address, user_agent, created_at, archived
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.Resource,
		nullIfEmpty(entry.ResourceID),
		details,
		string(entry.Severity),
		nullIfEmpty(entry.IPAddress),
		nullIfEmpty(entry.UserAgent),
		entry.CreatedAt,
		entry.Archived,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit entry: %w", err)
	}
	return nil
}

// Get retrieves an entry by id.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectColumns+" FROM audit_entries WHERE id = ?", id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit entry not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return entry, nil
}

// Query retrieves entries matching the filter.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildQuery(filter, false)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to scan audit entry row")
			continue
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of entries matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildQuery(filter, true)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}

// MarkArchived flags the given entries as archived.
func (s *DuckDBStore) MarkArchived(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("UPDATE audit_entries SET archived = TRUE WHERE id IN (%s)",
		strings.Join(placeholders, ","))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark entries archived: %w", err)
	}
	return nil
}

// Delete removes entries matching the filter.
func (s *DuckDBStore) Delete(ctx context.Context, filter DeleteFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conditions := []string{"created_at < ?"}
	args := []interface{}{filter.Before}

	if filter.ArchivedOnly {
		conditions = append(conditions, "archived = TRUE")
	}
	if cond, prefixArgs := prefixCondition(filter.ActionPrefixes); cond != "" {
		conditions = append(conditions, cond)
		args = append(args, prefixArgs...)
	}

	query := "DELETE FROM audit_entries WHERE " + strings.Join(conditions, " AND ")

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit entries: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}

	if count > 0 {
		logging.Info().Int64("deleted", count).Time("before", filter.Before).Msg("Deleted audit entries")
	}
	return count, nil
}

// Stats aggregates entries created at or after since.
func (s *DuckDBStore) Stats(ctx context.Context, since time.Time, recentLimit int) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		ByAction:   make(map[string]int64),
		ByResource: make(map[string]int64),
		BySeverity: make(map[string]int64),
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_entries WHERE created_at >= ?", since,
	).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	for _, col := range []struct {
		name string
		dst  map[string]int64
	}{
		{"action", stats.ByAction},
		{"resource", stats.ByResource},
		{"severity", stats.BySeverity},
	} {
		if err := s.countByColumn(ctx, col.name, since, col.dst); err != nil {
			return nil, err
		}
	}

	recent, err := s.recentEntries(ctx, since, recentLimit)
	if err != nil {
		return nil, err
	}
	stats.Recent = recent
	return stats, nil
}

func (s *DuckDBStore) countByColumn(ctx context.Context, column string, since time.Time, dst map[string]int64) error {
	query := fmt.Sprintf(
		"SELECT %s, COUNT(*) FROM audit_entries WHERE created_at >= ? GROUP BY %s",
		column, column)
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return fmt.Errorf("failed to get %s counts: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err == nil {
			dst[key] = count
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return nil
}

func (s *DuckDBStore) recentEntries(ctx context.Context, since time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM audit_entries WHERE created_at >= ? ORDER BY created_at DESC LIMIT ?",
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

const selectColumns = `
	SELECT
		id, user_id, action, resource, resource_id,
		CAST(details AS VARCHAR) as details,
		severity, ip_address, user_agent, created_at, archived
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var userID, resourceID, details, ipAddress, userAgent sql.NullString

	if err := row.Scan(
		&e.ID, &userID, &e.Action, &e.Resource, &resourceID,
		&details, &e.Severity, &ipAddress, &userAgent, &e.CreatedAt, &e.Archived,
	); err != nil {
		return nil, err
	}

	if userID.Valid {
		e.UserID = &userID.String
	}
	e.ResourceID = resourceID.String
	if details.Valid {
		e.Details = []byte(details.String)
	}
	e.IPAddress = ipAddress.String
	e.UserAgent = userAgent.String
	return &e, nil
}

func buildQuery(filter QueryFilter, countOnly bool) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if cond := inCondition("action", filter.Actions, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond, prefixArgs := prefixCondition(filter.ActionPrefixes); cond != "" {
		conditions = append(conditions, cond)
		args = append(args, prefixArgs...)
	}
	if len(filter.Severities) > 0 {
		sevs := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			sevs[i] = string(s)
		}
		if cond := inCondition("severity", sevs, &args); cond != "" {
			conditions = append(conditions, cond)
		}
	}
	if filter.UserID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Resource != "" {
		conditions = append(conditions, "resource = ?")
		args = append(args, filter.Resource)
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.StartTime != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *filter.EndTime)
	}
	if filter.Archived != nil {
		conditions = append(conditions, "archived = ?")
		args = append(args, *filter.Archived)
	}

	var query string
	if countOnly {
		query = "SELECT COUNT(*) FROM audit_entries"
	} else {
		query = selectColumns + " FROM audit_entries"
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if !countOnly {
		if filter.OrderDesc {
			query += " ORDER BY created_at DESC"
		} else {
			query += " ORDER BY created_at ASC"
		}
		if filter.Limit > 0 {
			query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		}
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	return query, args
}

func inCondition(column string, values []string, args *[]interface{}) string {
	if len(values) == 0 {
		return ""
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, v)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

func prefixCondition(prefixes []string) (string, []interface{}) {
	if len(prefixes) == 0 {
		return "", nil
	}
	parts := make([]string, len(prefixes))
	args := make([]interface{}, len(prefixes))
	for i, p := range prefixes {
		parts[i] = "action LIKE ?"
		args[i] = p + "%"
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
