// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package alerting

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const alertKeyPrefix = "alert:"

// BadgerStore implements Store using BadgerDB. Alert records survive
// restarts, so resolution state is durable.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed alert store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Save inserts or overwrites an alert.
func (s *BadgerStore) Save(_ context.Context, alert *Alert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("alert requires an id")
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(alertKeyPrefix+alert.ID), data)
	})
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

// Get retrieves an alert by id.
func (s *BadgerStore) Get(_ context.Context, id string) (*Alert, error) {
	var alert Alert
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(alertKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAlertNotFound
		}
		if err != nil {
			return fmt.Errorf("get alert: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &alert)
		})
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// List retrieves alerts matching the filter, newest first.
func (s *BadgerStore) List(_ context.Context, filter Filter) ([]Alert, error) {
	var alerts []Alert

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(alertKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var alert Alert
				if err := json.Unmarshal(val, &alert); err != nil {
					return err
				}
				if matchesAlertFilter(&alert, &filter) {
					alerts = append(alerts, alert)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	if filter.Limit > 0 && len(alerts) > filter.Limit {
		alerts = alerts[:filter.Limit]
	}
	return alerts, nil
}

func matchesAlertFilter(alert *Alert, filter *Filter) bool {
	if len(filter.Statuses) > 0 {
		ok := false
		for _, s := range filter.Statuses {
			if alert.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(filter.Types) > 0 {
		ok := false
		for _, t := range filter.Types {
			if alert.Type == t {
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
