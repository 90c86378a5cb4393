package engine

import (
	"time"

	"mercator-hq/covenant/pkg/evidence"
	"mercator-hq/covenant/pkg/rules"
)

// State is a step of the per-request enforcement pipeline.
type State int

const (
	StateCreated State = iota
	StateMatched
	StateEvaluated
	StateDecided
	StateLogged
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateMatched:
		return "matched"
	case StateEvaluated:
		return "evaluated"
	case StateDecided:
		return "decided"
	case StateLogged:
		return "logged"
	default:
		return "unknown"
	}
}

// Request is one action submitted for a governance check.
type Request struct {
	UserID     string     `json:"user_id"`
	Action     string     `json:"action"`
	Parameters Parameters `json:"parameters"`
}

// ExecutionContext holds the state of one enforcement call. It is owned by
// the engine for the duration of Enforce and returned in the Decision.
type ExecutionContext struct {
	RequestID  string
	Timestamp  time.Time
	UserID     string
	Action     string
	Parameters Parameters

	State           State
	ApplicableRules []rules.PolicyRule
	RiskScore       float64
	Approved        bool

	// PolicyVersion is the digest of the rule set snapshot used.
	PolicyVersion string
}

// RuleResult is the outcome of evaluating one rule.
type RuleResult struct {
	RuleID     string                `json:"rule_id"`
	Category   rules.Category        `json:"category"`
	Level      rules.ComplianceLevel `json:"compliance_level"`
	Passed     bool                  `json:"passed"`
	Violations []string              `json:"violations"`
	Warnings   []string              `json:"warnings"`
	Severity   string                `json:"severity,omitempty"`
}

// ValidationResult aggregates the results of all applicable rules.
type ValidationResult struct {
	Passed         bool         `json:"passed"`
	RiskScore      float64      `json:"risk_score"`
	Violations     []string     `json:"violations"`
	Warnings       []string     `json:"warnings"`
	Results        []RuleResult `json:"results"`
	RulesEvaluated int          `json:"rules_evaluated"`
}

// Decision is the result of a completed enforcement call.
type Decision struct {
	RequestID  string               `json:"request_id"`
	Approved   bool                 `json:"approved"`
	Status     string               `json:"status"`
	RiskScore  float64              `json:"risk_score"`
	Violations []string             `json:"violations"`
	Warnings   []string             `json:"warnings"`
	Validation ValidationResult     `json:"validation"`
	AuditEntry *evidence.AuditEntry `json:"audit_entry"`

	Context *ExecutionContext `json:"-"`
}

// LoadResult summarizes a policy load.
type LoadResult struct {
	Source  string             `json:"source"`
	Rules   []rules.PolicyRule `json:"rules"`
	Summary rules.Summary      `json:"summary"`
	// Version is the digest of the published rule set.
	Version string `json:"version"`
}

// Observer receives enforcement and rule set events.
type Observer interface {
	ObserveEnforcement(d *Decision, duration time.Duration)
	ObserveEnforcementError(err *EnforcementError, duration time.Duration)
	ObserveRuleSet(summary rules.Summary)
}

type nopObserver struct{}

func (nopObserver) ObserveEnforcement(*Decision, time.Duration)              {}
func (nopObserver) ObserveEnforcementError(*EnforcementError, time.Duration) {}
func (nopObserver) ObserveRuleSet(rules.Summary)                             {}
