package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// RuleSet is an insertion-ordered collection of rules with unique identifiers.
//
// A RuleSet is not safe for concurrent mutation. Callers that share one
// across goroutines build it privately and treat it as read-only once
// published.
type RuleSet struct {
	rules []PolicyRule
	index map[string]int
}

// NewRuleSet creates an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{index: make(map[string]int)}
}

// NewRuleSetFrom builds a rule set from rules in order, stopping at the first collision.
func NewRuleSetFrom(rs []PolicyRule) (*RuleSet, error) {
	set := NewRuleSet()
	for _, r := range rs {
		if err := set.Add(r); err != nil {
			return set, err
		}
	}
	return set, nil
}

// Add appends a rule. A rule whose identifier is already present is never
// stored; the returned *AmbiguousRuleIDError names both provenances.
func (s *RuleSet) Add(r PolicyRule) error {
	if existing, ok := s.index[r.ID]; ok {
		return &AmbiguousRuleIDError{
			ID:       r.ID,
			Existing: s.rules[existing].Provenance(),
			Incoming: r.Provenance(),
		}
	}
	s.index[r.ID] = len(s.rules)
	s.rules = append(s.rules, r.Clone())
	return nil
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Get returns the rule with the given identifier.
func (s *RuleSet) Get(id string) (PolicyRule, bool) {
	if s == nil {
		return PolicyRule{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return PolicyRule{}, false
	}
	return s.rules[i].Clone(), true
}

// Rules returns a copy of the rules in insertion order.
func (s *RuleSet) Rules() []PolicyRule {
	if s == nil {
		return []PolicyRule{}
	}
	out := make([]PolicyRule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Clone()
	}
	return out
}

// Sources returns the distinct source documents in first-seen order.
func (s *RuleSet) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range s.Rules() {
		if !seen[r.SourceDocument] {
			seen[r.SourceDocument] = true
			out = append(out, r.SourceDocument)
		}
	}
	return out
}

// WithoutSource returns a copy of the set without the rules of one source document.
func (s *RuleSet) WithoutSource(source string) *RuleSet {
	out := NewRuleSet()
	for _, r := range s.Rules() {
		if r.SourceDocument == source {
			continue
		}
		out.index[r.ID] = len(out.rules)
		out.rules = append(out.rules, r)
	}
	return out
}

// Merge returns a new set holding the rules of s followed by those of other.
// The receiver is left untouched.
func (s *RuleSet) Merge(other *RuleSet) (*RuleSet, error) {
	out, err := NewRuleSetFrom(s.Rules())
	if err != nil {
		return nil, err
	}
	for _, r := range other.Rules() {
		if err := out.Add(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Summary counts rules by category and compliance level.
type Summary struct {
	TotalRules int                     `json:"total_rules" yaml:"total_rules"`
	ByCategory map[Category]int        `json:"by_category" yaml:"by_category"`
	ByLevel    map[ComplianceLevel]int `json:"by_compliance_level" yaml:"by_compliance_level"`
}

// Summary returns per-category and per-level counts.
func (s *RuleSet) Summary() Summary {
	return Summarize(s.Rules())
}

// Summarize counts rules by category and compliance level.
func Summarize(rs []PolicyRule) Summary {
	sum := Summary{
		TotalRules: len(rs),
		ByCategory: make(map[Category]int),
		ByLevel:    make(map[ComplianceLevel]int),
	}
	for _, r := range rs {
		sum.ByCategory[r.Category]++
		sum.ByLevel[r.Level]++
	}
	return sum
}

// Digest returns the hex SHA-256 of the canonical JSON (RFC 8785) encoding of
// the ordered rules. Two sets holding the same rules in the same order always
// share a digest.
func (s *RuleSet) Digest() (string, error) {
	raw, err := json.Marshal(s.Rules())
	if err != nil {
		return "", fmt.Errorf("encode rules: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize rules: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
