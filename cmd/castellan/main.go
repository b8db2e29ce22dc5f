// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/dgraph-io/badger/v4"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/castellan/castellan/internal/alerting"
	"github.com/castellan/castellan/internal/api"
	"github.com/castellan/castellan/internal/audit"
	"github.com/castellan/castellan/internal/compliance"
	"github.com/castellan/castellan/internal/config"
	"github.com/castellan/castellan/internal/logging"
	"github.com/castellan/castellan/internal/rbac"
	"github.com/castellan/castellan/internal/retention"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "castellan: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := run(cfg); err != nil {
		logging.Error().Err(err).Msg("Castellan exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openAuditDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("open audit database: %w", err)
	}
	defer db.Close()

	store := audit.NewDuckDBStore(db)
	if err := store.CreateTable(ctx); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}

	// In-process event bus feeding the alerting consumer.
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermill.NewStdLogger(false, false))
	defer pubSub.Close()

	registry := rbac.NewRegistry()
	evaluator := rbac.NewEvaluator(registry, rbac.EvaluatorConfig{
		CacheEnabled: cfg.RBAC.CacheEnabled,
		CacheTTL:     cfg.RBAC.CacheTTL,
	})
	defer evaluator.Close()

	auditor := audit.NewService(store, pubSub, registry)

	manager, err := retention.NewManager(store, auditor, cfg.Retention.ArchiveDir, cfg.Retention.Policies)
	if err != nil {
		return fmt.Errorf("retention manager: %w", err)
	}
	scheduler, err := retention.NewScheduler(manager)
	if err != nil {
		return fmt.Errorf("retention scheduler: %w", err)
	}

	reports := compliance.NewGenerator(auditor, manager, registry, nil)
	reports.SetBreakerSettings(cfg.Compliance.BreakerTimeout, uint32(cfg.Compliance.BreakerFailures))

	var alerts *alerting.System
	if cfg.Alerting.Enabled {
		alertDB, err := badger.Open(badger.DefaultOptions(cfg.Database.AlertsPath).WithLogger(nil))
		if err != nil {
			return fmt.Errorf("open alert store: %w", err)
		}
		defer alertDB.Close()

		alerts = alerting.NewSystem(alerting.NewBadgerStore(alertDB), auditor, pubSub, alertRules(cfg), nil)
		alerts.SetNotificationThrottle(cfg.Alerting.NotifyInterval, cfg.Alerting.NotifyBurst)
	}

	handlers := api.NewHandlers(evaluator, registry, auditor, manager, reports, alerts, cfg.Audit.MaxQueryLimit)
	router := api.NewRouter(api.RouterConfig{
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
	}, handlers)

	slogger := logging.NewSlogLogger()
	handler := &sutureslog.Handler{Logger: slogger}
	sup := suture.New("castellan", suture.Spec{
		EventHook: handler.MustHook(),
	})
	sup.Add(scheduler)
	if alerts != nil {
		sup.Add(alerts)
	}
	sup.Add(newHTTPService(cfg.Server.Host, cfg.Server.Port, cfg.Server.Timeout, router.Setup()))

	logging.Info().
		Int("port", cfg.Server.Port).
		Int("retention_policies", len(manager.Policies())).
		Bool("alerting", alerts != nil).
		Msg("Castellan started")

	err = sup.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		logging.Info().Msg("Castellan stopped")
		return nil
	}
	return err
}

// openAuditDB opens the DuckDB database file, creating its directory if
// needed.
func openAuditDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s", cfg.Path, threads, cfg.MaxMemory)

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// alertRules builds the detection rule set from configuration.
func alertRules(cfg *config.Config) []alerting.Rule {
	return []alerting.Rule{
		alerting.NewThresholdRule(alerting.ThresholdConfig{
			RuleType:  alerting.TypeRepeatedAuthFailures,
			Action:    audit.ActionLoginFailed,
			Threshold: cfg.Alerting.AuthFailureThreshold,
			Window:    cfg.Alerting.AuthFailureWindow,
			Severity:  audit.SeverityHigh,
		}),
		alerting.NewThresholdRule(alerting.ThresholdConfig{
			RuleType:  alerting.TypeRepeatedDenials,
			Action:    audit.ActionSecurityPermissionDenied,
			Threshold: cfg.Alerting.DenialThreshold,
			Window:    cfg.Alerting.DenialWindow,
			Severity:  audit.SeverityMedium,
		}),
		alerting.NewEscalationRule(),
	}
}
