// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

// Command castellan runs the RBAC and audit core as a standalone service.
//
// All wiring is explicit: configuration is loaded once, stores are opened,
// services are constructed, and the long-running pieces (retention
// scheduler, alerting consumer, HTTP server) run under a suture
// supervisor until the process receives SIGINT or SIGTERM.
package main
