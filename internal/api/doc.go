// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

// Package api exposes the core over HTTP using the Chi router.
//
// The handlers are thin glue: request decoding, validation, and response
// shaping. All authorization, audit, retention, compliance, and alerting
// behavior lives in the core packages; nothing here makes policy decisions.
package api
