package evidence

import (
	"errors"
	"testing"
	"time"
)

func chain(t *testing.T, n int) []AuditEntry {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := make([]AuditEntry, 0, n)
	prev := ""
	for i := 0; i < n; i++ {
		e := AuditEntry{
			Sequence:       int64(i + 1),
			ID:             "id-" + string(rune('a'+i)),
			Timestamp:      base.Add(time.Duration(i) * time.Second),
			RequestID:      "req-" + string(rune('a'+i)),
			Action:         "process customer data",
			UserID:         "user123",
			Approved:       i%2 == 0,
			RiskScore:      float64(i%2) * 10,
			RulesEvaluated: 1,
			PrevHash:       prev,
		}
		if !e.Approved {
			e.Violations = []string{"Violation: Data must be encrypted. - Encryption not enabled"}
		}
		e.Normalize()
		h, err := e.ComputeHash()
		if err != nil {
			t.Fatalf("ComputeHash() error = %v", err)
		}
		e.Hash = h
		prev = h
		entries = append(entries, e)
	}
	return entries
}

func TestComputeHash(t *testing.T) {
	entries := chain(t, 1)
	e := entries[0]

	again, err := e.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash() error = %v", err)
	}
	if again != e.Hash {
		t.Error("hash must not depend on the Hash field itself")
	}

	e.RiskScore = 5
	changed, _ := e.ComputeHash()
	if changed == again {
		t.Error("hash must change when content changes")
	}
}

func TestVerifyChain(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]AuditEntry) []AuditEntry
		ok     bool
	}{
		{name: "intact", mutate: func(e []AuditEntry) []AuditEntry { return e }, ok: true},
		{name: "empty", mutate: func(e []AuditEntry) []AuditEntry { return nil }, ok: true},
		{name: "edited approval", mutate: func(e []AuditEntry) []AuditEntry {
			e[1].Approved = true
			return e
		}},
		{name: "removed entry", mutate: func(e []AuditEntry) []AuditEntry {
			return append(e[:1], e[2:]...)
		}},
		{name: "reordered", mutate: func(e []AuditEntry) []AuditEntry {
			e[0], e[1] = e[1], e[0]
			return e
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyChain(tt.mutate(chain(t, 4)), "")
			if tt.ok && err != nil {
				t.Fatalf("VerifyChain() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrChainBroken) {
				t.Fatalf("expected ErrChainBroken, got %v", err)
			}
		})
	}
}

func TestQuery(t *testing.T) {
	entries := chain(t, 4)
	approved := true
	minRisk := 5.0
	start := entries[1].Timestamp

	tests := []struct {
		name  string
		query Query
		want  int
	}{
		{name: "all", query: Query{}, want: 4},
		{name: "approved", query: Query{Approved: &approved}, want: 2},
		{name: "min risk", query: Query{MinRiskScore: &minRisk}, want: 2},
		{name: "action substring", query: Query{Action: "CUSTOMER"}, want: 4},
		{name: "other user", query: Query{UserID: "mallory"}, want: 0},
		{name: "since second", query: Query{StartTime: &start}, want: 3},
		{name: "request id", query: Query{RequestID: "req-c"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.query.Validate(); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			got := 0
			for i := range entries {
				if tt.query.Matches(&entries[i]) {
					got++
				}
			}
			if got != tt.want {
				t.Errorf("matched %d, want %d", got, tt.want)
			}
		})
	}
}

func TestQuery_Validate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	negative := -1.0

	invalid := []Query{
		{Limit: -1},
		{Offset: -5},
		{SortOrder: "sideways"},
		{StartTime: &now, EndTime: &earlier},
		{MinRiskScore: &negative},
	}
	for i, q := range invalid {
		var qe *QueryError
		if err := q.Validate(); !errors.As(err, &qe) {
			t.Errorf("query %d: expected QueryError, got %v", i, err)
		}
	}

	desc := Query{SortOrder: "DESC"}
	if err := desc.Validate(); err != nil || !desc.Descending() {
		t.Errorf("DESC should be valid and descending: %v", err)
	}
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats(chain(t, 4))
	if stats.Total != 4 || stats.Approved != 2 || stats.Blocked != 2 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.MeanRiskScore != 5 {
		t.Errorf("MeanRiskScore = %v, want 5", stats.MeanRiskScore)
	}
	if stats.TotalViolations != 2 {
		t.Errorf("TotalViolations = %d, want 2", stats.TotalViolations)
	}

	if empty := ComputeStats(nil); empty.MeanRiskScore != 0 || empty.Total != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestAuditEntry_CloneIsDeep(t *testing.T) {
	e := chain(t, 2)[1]
	c := e.Clone()
	c.Violations[0] = "changed"
	if e.Violations[0] == "changed" {
		t.Error("Clone shares the violations slice")
	}
	if e.Status() != StatusBlocked {
		t.Errorf("Status() = %q", e.Status())
	}
}
