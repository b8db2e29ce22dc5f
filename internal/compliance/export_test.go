// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package compliance

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/castellan/castellan/internal/audit"
)

func TestExportAuditTrailJSONAndCSVParity(t *testing.T) {
	g, store := newTestGenerator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, store, strPtr("u1"), "auth.login", audit.SeverityLow, "session", now.Add(-2*time.Hour))
	// Values with commas and quotes exercise CSV escaping.
	tricky := audit.Entry{
		ID:        "tricky",
		UserID:    strPtr("u2"),
		Action:    "resource.update",
		Resource:  "pages",
		Severity:  audit.SeverityLow,
		UserAgent: `Mozilla/5.0 ("quoted", comma)`,
		CreatedAt: now.Add(-time.Hour),
	}
	if err := store.Save(ctx, &tricky); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	jsonRes, err := g.ExportAuditTrail(ctx, ExportCriteria{Format: FormatJSON})
	if err != nil {
		t.Fatalf("json export error: %v", err)
	}
	csvRes, err := g.ExportAuditTrail(ctx, ExportCriteria{Format: FormatCSV})
	if err != nil {
		t.Fatalf("csv export error: %v", err)
	}

	if jsonRes.ContentType != "application/json" || !strings.HasSuffix(jsonRes.Filename, ".json") {
		t.Errorf("json export metadata = %s %s", jsonRes.ContentType, jsonRes.Filename)
	}
	if csvRes.ContentType != "text/csv" || !strings.HasSuffix(csvRes.Filename, ".csv") {
		t.Errorf("csv export metadata = %s %s", csvRes.ContentType, csvRes.Filename)
	}

	var jsonEntries []audit.Entry
	if err := json.Unmarshal(jsonRes.Data, &jsonEntries); err != nil {
		t.Fatalf("json export does not parse: %v", err)
	}

	rows, err := csv.NewReader(bytes.NewReader(csvRes.Data)).ReadAll()
	if err != nil {
		t.Fatalf("csv export does not parse: %v", err)
	}
	if len(rows) != len(jsonEntries)+1 {
		t.Fatalf("csv rows = %d, json entries = %d; want parity plus header", len(rows), len(jsonEntries))
	}

	header := rows[0]
	for i, want := range csvHeader {
		if header[i] != want {
			t.Fatalf("csv header[%d] = %s, want %s", i, header[i], want)
		}
	}

	// Field-level parity between formats.
	col := func(name string) int {
		for i, h := range csvHeader {
			if h == name {
				return i
			}
		}
		t.Fatalf("no column %s", name)
		return -1
	}
	for i, e := range jsonEntries {
		row := rows[i+1]
		if row[col("id")] != e.ID {
			t.Errorf("row %d id = %s, want %s", i, row[col("id")], e.ID)
		}
		if row[col("action")] != e.Action {
			t.Errorf("row %d action = %s, want %s", i, row[col("action")], e.Action)
		}
		userID := ""
		if e.UserID != nil {
			userID = *e.UserID
		}
		if row[col("user_id")] != userID {
			t.Errorf("row %d user_id = %s, want %s", i, row[col("user_id")], userID)
		}
		if row[col("user_agent")] != e.UserAgent {
			t.Errorf("row %d user_agent = %q, want %q", i, row[col("user_agent")], e.UserAgent)
		}
	}
}

func TestExportAuditTrailRejectsUnknownFormat(t *testing.T) {
	g, _ := newTestGenerator(t)
	if _, err := g.ExportAuditTrail(context.Background(), ExportCriteria{Format: "xml"}); err == nil {
		t.Error("unknown export format accepted")
	}
}

func TestExportAuditTrailFilters(t *testing.T) {
	g, store := newTestGenerator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, store, strPtr("u1"), "auth.login", audit.SeverityLow, "session", now.Add(-2*time.Hour))
	seed(t, store, strPtr("u2"), "auth.login", audit.SeverityLow, "session", now.Add(-time.Hour))

	res, err := g.ExportAuditTrail(ctx, ExportCriteria{Format: FormatJSON, UserID: strPtr("u1")})
	if err != nil {
		t.Fatalf("export error: %v", err)
	}
	if res.RecordCount != 1 {
		t.Errorf("filtered export has %d records, want 1", res.RecordCount)
	}
}
