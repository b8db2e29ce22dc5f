// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/castellan/castellan/internal/audit"
	"github.com/castellan/castellan/internal/logging"
	"github.com/castellan/castellan/internal/metrics"
)

// Notifier delivers one alert to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alert *Alert) error
}

// System consumes the audit feed, runs detection rules, and manages the
// alert lifecycle. It implements suture.Service.
type System struct {
	store      Store
	auditor    *audit.Service
	subscriber message.Subscriber
	rules      []Rule
	notifiers  []Notifier
	limiter    *rate.Limiter

	mu     sync.Mutex
	active map[string]string // (type, subject) key -> alert id

	now func() time.Time
}

// NewSystem creates the alerting system. subscriber may be nil when the
// caller drives Process directly (tests, embedded use).
func NewSystem(store Store, auditor *audit.Service, subscriber message.Subscriber, rules []Rule, notifiers []Notifier) *System {
	if rules == nil {
		rules = DefaultRules()
	}
	return &System{
		store:      store,
		auditor:    auditor,
		subscriber: subscriber,
		rules:      rules,
		notifiers:  notifiers,
		// One notification per 30s with small bursts keeps pager noise
		// bounded during an incident storm.
		limiter: rate.NewLimiter(rate.Every(30*time.Second), 5),
		active:  make(map[string]string),
		now:     time.Now,
	}
}

// SetNotificationThrottle replaces the notifier rate limit. Call before
// Serve.
func (s *System) SetNotificationThrottle(interval time.Duration, burst int) {
	if interval > 0 && burst > 0 {
		s.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// Serve consumes the audit feed until the context is canceled.
func (s *System) Serve(ctx context.Context) error {
	if s.subscriber == nil {
		return fmt.Errorf("alerting system has no subscriber")
	}
	messages, err := s.subscriber.Subscribe(ctx, audit.TopicEntries)
	if err != nil {
		return fmt.Errorf("failed to subscribe to audit feed: %w", err)
	}
	logging.Info().Int("rules", len(s.rules)).Msg("Alerting system started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.handleMessage(ctx, msg)
		}
	}
}

func (s *System) String() string { return "alerting-system" }

func (s *System) handleMessage(ctx context.Context, msg *message.Message) {
	// Detection failures never requeue: a bad message would wedge the feed.
	defer msg.Ack()

	var entry audit.Entry
	if err := json.Unmarshal(msg.Payload, &entry); err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable audit event")
		return
	}
	if err := s.Process(ctx, &entry); err != nil {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("Alert processing failed")
	}
}

// Process runs all rules against one entry, raising or feeding alerts.
func (s *System) Process(ctx context.Context, entry *audit.Entry) error {
	for _, rule := range s.rules {
		candidate := rule.Evaluate(entry)
		if candidate == nil {
			continue
		}
		if err := s.raise(ctx, candidate, entry); err != nil {
			return err
		}
	}
	return nil
}

// raise creates a new alert for the candidate or attaches the event to the
// already-active alert for the same (type, subject).
func (s *System) raise(ctx context.Context, c *Candidate, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.Type + "\x00" + c.Subject
	if id, ok := s.active[key]; ok {
		alert, err := s.store.Get(ctx, id)
		if err == nil && alert.Status == StatusActive {
			alert.EventIDs = append(alert.EventIDs, entry.ID)
			alert.UpdatedAt = s.now().UTC()
			return s.store.Save(ctx, alert)
		}
		// The stored alert is gone or already resolved: fall through and
		// raise a fresh one.
		delete(s.active, key)
	}

	now := s.now().UTC()
	alert := &Alert{
		ID:        uuid.NewString(),
		Type:      c.Type,
		Severity:  c.Severity,
		Status:    StatusActive,
		Subject:   c.Subject,
		Message:   c.Message,
		EventIDs:  []string{entry.ID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, alert); err != nil {
		return fmt.Errorf("failed to persist alert: %w", err)
	}
	s.active[key] = alert.ID

	metrics.RecordAlertRaised(c.Type, string(c.Severity))
	logging.Warn().
		Str("alert_id", alert.ID).
		Str("type", alert.Type).
		Str("subject", alert.Subject).
		Str("severity", string(alert.Severity)).
		Msg("Security alert raised")

	s.notify(ctx, alert)
	return nil
}

// notify fans the alert out to all notifiers, throttled globally.
func (s *System) notify(ctx context.Context, alert *Alert) {
	if len(s.notifiers) == 0 {
		return
	}
	if !s.limiter.Allow() {
		metrics.RecordNotificationThrottled()
		logging.Debug().Str("alert_id", alert.ID).Msg("Alert notification throttled")
		return
	}
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			logging.Warn().Err(err).Str("alert_id", alert.ID).Msg("Alert notification failed")
		}
	}
}

// GetActiveAlerts lists alerts still in the active state, newest first.
func (s *System) GetActiveAlerts(ctx context.Context) ([]Alert, error) {
	return s.store.List(ctx, Filter{Statuses: []Status{StatusActive}})
}

// GetSecurityStats summarizes the alert population.
func (s *System) GetSecurityStats(ctx context.Context) (*SecurityStats, error) {
	alerts, err := s.store.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	stats := &SecurityStats{
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
	}
	for i := range alerts {
		a := &alerts[i]
		switch a.Status {
		case StatusActive:
			stats.Active++
		case StatusResolved:
			stats.Resolved++
		case StatusFalsePositive:
			stats.FalsePositive++
		}
		stats.BySeverity[string(a.Severity)]++
		stats.ByType[a.Type]++
	}
	return stats, nil
}

// ResolveAlert transitions an active alert to resolved or false_positive.
// The transition is terminal and itself audit-logged.
func (s *System) ResolveAlert(ctx context.Context, id string, resolution Status, resolvedBy, notes string) (*Alert, error) {
	if !resolution.Terminal() {
		return nil, fmt.Errorf("invalid resolution %q: must be %s or %s", resolution, StatusResolved, StatusFalsePositive)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alert, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrAlertResolved, id)
	}

	now := s.now().UTC()
	alert.Status = resolution
	alert.ResolutionNotes = notes
	alert.ResolvedBy = resolvedBy
	alert.ResolvedAt = &now
	alert.UpdatedAt = now

	if err := s.store.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to persist resolution: %w", err)
	}
	delete(s.active, alert.Type+"\x00"+alert.Subject)
	metrics.RecordAlertResolved(string(resolution))

	if s.auditor != nil {
		var actor *string
		if resolvedBy != "" {
			actor = &resolvedBy
		}
		err := s.auditor.LogSecurity(ctx, actor, "alert_resolved", audit.SeverityLow, map[string]interface{}{
			"alert_id":   alert.ID,
			"alert_type": alert.Type,
			"resolution": string(resolution),
			"notes":      notes,
		}, audit.Context{})
		if err != nil {
			logging.Warn().Err(err).Str("alert_id", alert.ID).Msg("Failed to audit-log alert resolution")
		}
	}
	return alert, nil
}
