// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and small embedded
// deployments. It keeps at most maxLen entries, evicting the oldest.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	maxLen  int
}

// NewMemoryStore creates a memory store. maxLen <= 0 means unbounded.
func NewMemoryStore(maxLen int) *MemoryStore {
	return &MemoryStore{maxLen: maxLen}
}

// Save appends a copy of the entry.
func (s *MemoryStore) Save(_ context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, *entry)
	if s.maxLen > 0 && len(s.entries) > s.maxLen {
		s.entries = s.entries[len(s.entries)-s.maxLen:]
	}
	return nil
}

// Get retrieves an entry by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.entries {
		if s.entries[i].ID == id {
			e := s.entries[i]
			return &e, nil
		}
	}
	return nil, fmt.Errorf("audit entry not found: %s", id)
}

// Query retrieves entries matching the filter in insertion order, or newest
// first when the filter asks for descending order.
func (s *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	for i := range s.entries {
		if matchesFilter(&s.entries[i], &filter) {
			matched = append(matched, s.entries[i])
		}
	}

	if filter.OrderDesc {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		})
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Count returns the number of entries matching the filter.
func (s *MemoryStore) Count(_ context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for i := range s.entries {
		if matchesFilter(&s.entries[i], &filter) {
			n++
		}
	}
	return n, nil
}

// MarkArchived flags the given entries as archived.
func (s *MemoryStore) MarkArchived(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if _, ok := want[s.entries[i].ID]; ok {
			s.entries[i].Archived = true
		}
	}
	return nil
}

// Delete removes entries matching the filter.
func (s *MemoryStore) Delete(_ context.Context, filter DeleteFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var removed int64
	for i := range s.entries {
		if matchesDeleteFilter(&s.entries[i], &filter) {
			removed++
			continue
		}
		kept = append(kept, s.entries[i])
	}
	s.entries = kept
	return removed, nil
}

// Stats aggregates entries created at or after since.
func (s *MemoryStore) Stats(_ context.Context, since time.Time, recentLimit int) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		ByAction:   make(map[string]int64),
		ByResource: make(map[string]int64),
		BySeverity: make(map[string]int64),
	}

	var window []Entry
	for i := range s.entries {
		e := &s.entries[i]
		if e.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		stats.ByAction[e.Action]++
		stats.ByResource[e.Resource]++
		stats.BySeverity[string(e.Severity)]++
		window = append(window, *e)
	}

	sort.SliceStable(window, func(i, j int) bool {
		return window[i].CreatedAt.After(window[j].CreatedAt)
	})
	if recentLimit > 0 && len(window) > recentLimit {
		window = window[:recentLimit]
	}
	stats.Recent = window
	return stats, nil
}

// Clear removes all entries. Intended for tests.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func matchesFilter(e *Entry, f *QueryFilter) bool {
	if len(f.Actions) > 0 && !containsString(f.Actions, e.Action) {
		return false
	}
	if len(f.ActionPrefixes) > 0 {
		ok := false
		for _, p := range f.ActionPrefixes {
			if strings.HasPrefix(e.Action, p) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Severities) > 0 {
		ok := false
		for _, sev := range f.Severities {
			if e.Severity == sev {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.UserID != nil {
		if e.UserID == nil || *e.UserID != *f.UserID {
			return false
		}
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.StartTime != nil && e.CreatedAt.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.CreatedAt.After(*f.EndTime) {
		return false
	}
	if f.Archived != nil && e.Archived != *f.Archived {
		return false
	}
	return true
}

func matchesDeleteFilter(e *Entry, f *DeleteFilter) bool {
	if !e.CreatedAt.Before(f.Before) {
		return false
	}
	if f.ArchivedOnly && !e.Archived {
		return false
	}
	if len(f.ActionPrefixes) > 0 {
		ok := false
		for _, p := range f.ActionPrefixes {
			if strings.HasPrefix(e.Action, p) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
