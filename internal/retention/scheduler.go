// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/castellan/castellan/internal/logging"
)

// cycleTimeout bounds one scheduled retention cycle.
const cycleTimeout = 30 * time.Minute

// Scheduler triggers retention cycles on each policy's cron schedule. It
// implements suture.Service. A failing policy never stops the others.
type Scheduler struct {
	manager *Manager
	cron    *cron.Cron
}

// NewScheduler builds a scheduler for all of the manager's policies.
func NewScheduler(manager *Manager) (*Scheduler, error) {
	s := &Scheduler{
		manager: manager,
		cron:    cron.New(),
	}

	for _, policy := range manager.Policies() {
		name := policy.Name
		_, err := s.cron.AddFunc(policy.Schedule, func() {
			s.runCycle(name)
		})
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q for policy %s: %w", policy.Schedule, name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) runCycle(policy string) {
	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	result, err := s.manager.RunRetentionCycle(ctx, policy)
	if err != nil {
		if errors.Is(err, ErrCycleRunning) {
			logging.Warn().Str("policy", policy).Msg("Skipping retention cycle, previous run still in progress")
			return
		}
		logging.Error().Err(err).Str("policy", policy).Msg("Scheduled retention cycle failed")
		return
	}
	logging.Debug().
		Str("policy", policy).
		Int("archived", result.Archived).
		Int64("deleted", result.Deleted).
		Msg("Scheduled retention cycle finished")
}

// Serve runs the cron loop until the context is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.cron.Start()
	logging.Info().Int("policies", len(s.manager.Policies())).Msg("Retention scheduler started")

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	// Let in-flight jobs drain before reporting shutdown.
	<-stopCtx.Done()
	logging.Info().Msg("Retention scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) String() string { return "retention-scheduler" }
