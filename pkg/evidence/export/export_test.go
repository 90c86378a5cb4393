package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/covenant/pkg/evidence"
)

func sampleEntries() []evidence.AuditEntry {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []evidence.AuditEntry{
		{
			Sequence: 1, ID: "e1", Timestamp: ts, RequestID: "r1",
			Action: "process customer data", UserID: "user123",
			Approved: false, RiskScore: 15,
			Violations:     []string{"Violation: A - Encryption not enabled", "Violation: B, with comma - PII must be encrypted"},
			RulesEvaluated: 2, RuleIDs: []string{"aaa", "bbb"},
		},
		{
			Sequence: 2, ID: "e2", Timestamp: ts.Add(time.Second), RequestID: "r2",
			Action: "read report", UserID: "user123", Approved: true,
			Violations: []string{}, RuleIDs: []string{},
		},
	}
}

func TestJSONExporter(t *testing.T) {
	tests := []struct {
		name    string
		entries []evidence.AuditEntry
		pretty  bool
		want    int
	}{
		{name: "two entries", entries: sampleEntries(), want: 2},
		{name: "pretty", entries: sampleEntries(), pretty: true, want: 2},
		{name: "empty", entries: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewJSONExporter(tt.pretty).Export(context.Background(), tt.entries, &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			var decoded []evidence.AuditEntry
			if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
				t.Fatalf("output is not a JSON array: %v\n%s", err, buf.String())
			}
			if len(decoded) != tt.want {
				t.Errorf("decoded %d entries, want %d", len(decoded), tt.want)
			}
			if tt.pretty && !strings.Contains(buf.String(), "\n  ") {
				t.Error("pretty output should be indented")
			}
		})
	}
}

func TestCSVExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), sampleEntries(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(records))
	}
	if records[0][0] != "sequence" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][6] != "blocked" || records[2][6] != "approved" {
		t.Errorf("status columns = %q, %q", records[1][6], records[2][6])
	}
	if records[1][7] != "15" {
		t.Errorf("risk score = %q", records[1][7])
	}
	if !strings.Contains(records[1][9], "B, with comma") || !strings.Contains(records[1][9], " | ") {
		t.Errorf("violations cell = %q", records[1][9])
	}
}

func TestForFormat(t *testing.T) {
	for _, f := range []string{"json", "CSV", ""} {
		if _, err := ForFormat(f, false); err != nil {
			t.Errorf("ForFormat(%q) error = %v", f, err)
		}
	}
	_, err := ForFormat("xml", false)
	var ee *evidence.ExportError
	if !errors.As(err, &ee) {
		t.Errorf("expected ExportError, got %v", err)
	}
}

func TestExport_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	if err := NewJSONExporter(false).Export(ctx, sampleEntries(), &buf); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
