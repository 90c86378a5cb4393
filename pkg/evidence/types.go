package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
)

// Decision status strings.
const (
	StatusApproved = "approved"
	StatusBlocked  = "blocked"
)

// AuditEntry is the immutable record of one enforcement decision.
type AuditEntry struct {
	// Position in the trail, starting at 1. Assigned by the recorder.
	Sequence int64 `json:"sequence"`

	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`

	Action string `json:"action"`
	UserID string `json:"user_id"`

	Approved       bool     `json:"approved"`
	RiskScore      float64  `json:"risk_score"`
	Violations     []string `json:"violations"`
	RulesEvaluated int      `json:"rules_evaluated"`
	RuleIDs        []string `json:"rule_ids"`

	// PolicyVersion is the digest of the rule set the decision was made against.
	PolicyVersion string `json:"policy_version"`

	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// Status returns "approved" or "blocked".
func (e *AuditEntry) Status() string {
	if e.Approved {
		return StatusApproved
	}
	return StatusBlocked
}

// Clone returns a deep copy of the entry.
func (e *AuditEntry) Clone() *AuditEntry {
	out := *e
	out.Violations = append([]string{}, e.Violations...)
	out.RuleIDs = append([]string{}, e.RuleIDs...)
	return &out
}

// Normalize puts the entry in the form that is hashed and stored: UTC
// timestamp at microsecond precision and non-nil slices.
func (e *AuditEntry) Normalize() {
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
	if e.Violations == nil {
		e.Violations = []string{}
	}
	if e.RuleIDs == nil {
		e.RuleIDs = []string{}
	}
}

// ComputeHash returns the hex SHA-256 of the canonical JSON encoding of the
// entry with Hash cleared.
func (e *AuditEntry) ComputeHash() (string, error) {
	c := *e
	c.Hash = ""
	raw, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("encode audit entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit entry: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain checks sequence numbers, hashes and links of an ordered run of
// entries. prevHash is the hash expected before the first entry ("" for the
// start of the trail).
func VerifyChain(entries []AuditEntry, prevHash string) error {
	for i := range entries {
		e := &entries[i]
		if i > 0 && e.Sequence != entries[i-1].Sequence+1 {
			return fmt.Errorf("%w: sequence %d follows %d", ErrChainBroken, e.Sequence, entries[i-1].Sequence)
		}
		if e.PrevHash != prevHash {
			return fmt.Errorf("%w: entry %d links to %q, want %q", ErrChainBroken, e.Sequence, e.PrevHash, prevHash)
		}
		want, err := e.ComputeHash()
		if err != nil {
			return err
		}
		if e.Hash != want {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, e.Sequence)
		}
		prevHash = e.Hash
	}
	return nil
}

// Query filters audit entries. Zero values mean "no filter".
type Query struct {
	StartTime *time.Time `json:"start_time,omitempty"` // inclusive
	EndTime   *time.Time `json:"end_time,omitempty"`   // inclusive

	UserID    string `json:"user_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Action    string `json:"action,omitempty"` // case-insensitive substring

	Approved     *bool    `json:"approved,omitempty"`
	MinRiskScore *float64 `json:"min_risk_score,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortOrder is "asc" (default, trail order) or "desc".
	SortOrder string `json:"sort_order,omitempty"`
}

// Validate rejects queries that cannot be executed.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return NewQueryError(q, fmt.Errorf("limit must not be negative"))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset must not be negative"))
	}
	switch strings.ToLower(q.SortOrder) {
	case "", "asc", "desc":
	default:
		return NewQueryError(q, fmt.Errorf("invalid sort order %q", q.SortOrder))
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return NewQueryError(q, fmt.Errorf("start time is after end time"))
	}
	if q.MinRiskScore != nil && *q.MinRiskScore < 0 {
		return NewQueryError(q, fmt.Errorf("min risk score must not be negative"))
	}
	return nil
}

// Descending reports whether results are returned newest first.
func (q *Query) Descending() bool {
	return strings.EqualFold(q.SortOrder, "desc")
}

// Matches reports whether an entry passes every filter of the query.
// Pagination is not considered.
func (q *Query) Matches(e *AuditEntry) bool {
	if q.StartTime != nil && e.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if q.RequestID != "" && e.RequestID != q.RequestID {
		return false
	}
	if q.Action != "" && !strings.Contains(strings.ToLower(e.Action), strings.ToLower(q.Action)) {
		return false
	}
	if q.Approved != nil && e.Approved != *q.Approved {
		return false
	}
	if q.MinRiskScore != nil && e.RiskScore < *q.MinRiskScore {
		return false
	}
	return true
}

// Storage persists audit entries. Implementations are append-only: there is
// deliberately no way to update or remove an entry.
type Storage interface {
	// Append persists one entry. The entry's sequence must follow the last
	// stored sequence.
	Append(ctx context.Context, entry *AuditEntry) error

	// Query retrieves entries matching the query in trail order
	// (or reverse order for descending queries).
	Query(ctx context.Context, query *Query) ([]*AuditEntry, error)

	// Count returns the number of entries matching the query filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Last returns the most recent entry, or nil when the trail is empty.
	Last(ctx context.Context) (*AuditEntry, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Exporter writes a snapshot of the trail in some format.
type Exporter interface {
	Export(ctx context.Context, entries []AuditEntry, w io.Writer) error
	Format() string
}

// Stats aggregates a snapshot of the trail.
type Stats struct {
	Total           int     `json:"total"`
	Approved        int     `json:"approved"`
	Blocked         int     `json:"blocked"`
	MeanRiskScore   float64 `json:"mean_risk_score"`
	TotalViolations int     `json:"total_violations"`
}

// ComputeStats aggregates entries. The mean risk score of an empty trail is 0.
func ComputeStats(entries []AuditEntry) Stats {
	var s Stats
	var risk float64
	for i := range entries {
		s.Total++
		if entries[i].Approved {
			s.Approved++
		} else {
			s.Blocked++
		}
		risk += entries[i].RiskScore
		s.TotalViolations += len(entries[i].Violations)
	}
	if s.Total > 0 {
		s.MeanRiskScore = risk / float64(s.Total)
	}
	return s
}

// Values dereferences a slice of entries, copying each one.
func Values(entries []*AuditEntry) []AuditEntry {
	out := make([]AuditEntry, len(entries))
	for i, e := range entries {
		out[i] = *e.Clone()
	}
	return out
}
