package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/covenant/pkg/artifact"
	"mercator-hq/covenant/pkg/evidence"
	"mercator-hq/covenant/pkg/rules"
	"mercator-hq/covenant/pkg/rules/extractor"
)

// AuditTrail is the append-only log decisions are written to.
type AuditTrail interface {
	// Append records the entry, assigning its sequence, ID and hashes in place.
	Append(ctx context.Context, entry *evidence.AuditEntry) error

	// Snapshot returns a copy of every entry in append order.
	Snapshot() []evidence.AuditEntry
}

// snapshot is an immutable, published view of the rule set.
type snapshot struct {
	set    *rules.RuleSet
	rules  []rules.PolicyRule
	digest string
}

// Engine owns a rule set and an audit trail and enforces the rules against
// requests. It is safe for concurrent use. Readers always see a complete
// rule set: loads build a new set privately and publish it in one step.
type Engine struct {
	config    *Config
	audit     AuditTrail
	extractor *extractor.Extractor
	observer  Observer
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	current atomic.Pointer[snapshot]

	// writeMu serializes rule set updates.
	writeMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver sets the observer notified of decisions and rule set changes.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithExtractor sets the extractor used by LoadPolicy.
func WithExtractor(x *extractor.Extractor) Option {
	return func(e *Engine) {
		if x != nil {
			e.extractor = x
		}
	}
}

// WithClock sets the source of decision timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine with an empty rule set.
func New(config *Config, audit AuditTrail, opts ...Option) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if audit == nil {
		return nil, fmt.Errorf("audit trail cannot be nil")
	}

	e := &Engine{
		config:   config,
		audit:    audit,
		observer: nopObserver{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("mercator-hq/covenant/pkg/policy/engine"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "policy.engine")

	if e.extractor == nil {
		x, err := extractor.New(nil, e.logger)
		if err != nil {
			return nil, err
		}
		e.extractor = x
	}

	if err := e.publish(rules.NewRuleSet()); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) snapshot() *snapshot {
	return e.current.Load()
}

// publish installs set as the current rule set. Callers hold writeMu,
// except New which runs before the engine is shared.
func (e *Engine) publish(set *rules.RuleSet) error {
	digest, err := set.Digest()
	if err != nil {
		return err
	}
	e.current.Store(&snapshot{set: set, rules: set.Rules(), digest: digest})
	e.observer.ObserveRuleSet(set.Summary())
	return nil
}

// LoadPolicy extracts rules from text and publishes them under the source
// label, replacing whatever that source contributed before. An identifier
// that collides with a rule from another source fails the load and leaves
// the current rule set in place.
func (e *Engine) LoadPolicy(ctx context.Context, source, text string) (*LoadResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.LoadPolicy",
		trace.WithAttributes(attribute.String("policy.source", source)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.config.ExtractionTimeout)
	defer cancel()

	extracted, err := e.extractor.Extract(ctx, text, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		return nil, &PolicyLoadError{Source: source, Cause: err}
	}
	fresh, err := rules.NewRuleSetFrom(extracted)
	if err != nil {
		return nil, &PolicyLoadError{Source: source, Cause: err}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	next, err := e.snapshot().set.WithoutSource(source).Merge(fresh)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rule set merge failed")
		return nil, &PolicyLoadError{Source: source, Cause: err}
	}
	if next.Len() > e.config.MaxRules {
		return nil, &PolicyLoadError{
			Source: source,
			Cause:  fmt.Errorf("%w: %d (max: %d)", ErrTooManyRules, next.Len(), e.config.MaxRules),
		}
	}
	if err := e.publish(next); err != nil {
		return nil, &PolicyLoadError{Source: source, Cause: err}
	}

	snap := e.snapshot()
	e.logger.Info("policy loaded",
		"source", source,
		"rules", len(extracted),
		"total_rules", next.Len(),
		"version", snap.digest,
	)

	return &LoadResult{
		Source:  source,
		Rules:   extracted,
		Summary: rules.Summarize(extracted),
		Version: snap.digest,
	}, nil
}

// ReplaceRules publishes rs as the complete rule set, discarding all loaded
// policies. It returns the new rule set version.
func (e *Engine) ReplaceRules(rs []rules.PolicyRule) (string, error) {
	for _, r := range rs {
		if err := r.Validate(); err != nil {
			return "", err
		}
	}
	set, err := rules.NewRuleSetFrom(rs)
	if err != nil {
		return "", err
	}
	if set.Len() > e.config.MaxRules {
		return "", fmt.Errorf("%w: %d (max: %d)", ErrTooManyRules, set.Len(), e.config.MaxRules)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.publish(set); err != nil {
		return "", err
	}
	e.logger.Info("rule set replaced", "total_rules", set.Len())
	return e.snapshot().digest, nil
}

// RemovePolicy drops every rule of a source document. It reports whether any
// rule was removed.
func (e *Engine) RemovePolicy(source string) (bool, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	cur := e.snapshot().set
	next := cur.WithoutSource(source)
	if next.Len() == cur.Len() {
		return false, nil
	}
	if err := e.publish(next); err != nil {
		return false, err
	}
	e.logger.Info("policy removed", "source", source, "removed", cur.Len()-next.Len())
	return true, nil
}

// Rules returns a copy of the current rules in rule set order.
func (e *Engine) Rules() []rules.PolicyRule {
	return e.snapshot().set.Rules()
}

// RuleSet returns a private copy of the current rule set.
func (e *Engine) RuleSet() *rules.RuleSet {
	set, _ := rules.NewRuleSetFrom(e.snapshot().rules)
	return set
}

// Version returns the digest of the current rule set.
func (e *Engine) Version() string {
	return e.snapshot().digest
}

// CheckReady reports ErrNoRulesLoaded until at least one rule is held.
func (e *Engine) CheckReady() error {
	if e.snapshot().set.Len() == 0 {
		return ErrNoRulesLoaded
	}
	return nil
}

// Enforce checks one request against the current rules and records the
// decision. A decision is returned only after its audit entry has been
// appended. Any failure before that returns an *EnforcementError, writes
// nothing and must be treated as not approved.
func (e *Engine) Enforce(ctx context.Context, req Request) (*Decision, error) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.Enforce",
		trace.WithAttributes(
			attribute.String("enforce.user_id", req.UserID),
			attribute.String("enforce.action", req.Action),
		))
	defer span.End()

	snap := e.snapshot()
	ec := &ExecutionContext{
		RequestID:     uuid.NewString(),
		Timestamp:     e.now(),
		UserID:        req.UserID,
		Action:        req.Action,
		Parameters:    req.Parameters,
		State:         StateCreated,
		PolicyVersion: snap.digest,
	}
	if ec.Parameters == nil {
		ec.Parameters = Parameters{}
	}
	span.SetAttributes(attribute.String("enforce.request_id", ec.RequestID))

	fail := func(err error) (*Decision, error) {
		enfErr := &EnforcementError{RequestID: ec.RequestID, State: ec.State, Cause: err}
		span.RecordError(enfErr)
		span.SetStatus(codes.Error, "enforcement failed")
		e.logger.Error("enforcement failed",
			"request_id", ec.RequestID,
			"state", ec.State.String(),
			"error", err,
		)
		e.observer.ObserveEnforcementError(enfErr, time.Since(started))
		return nil, enfErr
	}

	validation, err := e.decide(ctx, snap, ec)
	if err != nil {
		return fail(err)
	}

	entry := &evidence.AuditEntry{
		Timestamp:      ec.Timestamp,
		RequestID:      ec.RequestID,
		Action:         ec.Action,
		UserID:         ec.UserID,
		Approved:       ec.Approved,
		RiskScore:      ec.RiskScore,
		Violations:     validation.Violations,
		RulesEvaluated: validation.RulesEvaluated,
		RuleIDs:        ruleIDs(ec.ApplicableRules),
		PolicyVersion:  ec.PolicyVersion,
	}
	if err := e.audit.Append(ctx, entry); err != nil {
		return fail(fmt.Errorf("append audit entry: %w", err))
	}
	ec.State = StateLogged

	decision := &Decision{
		RequestID:  ec.RequestID,
		Approved:   ec.Approved,
		Status:     entry.Status(),
		RiskScore:  ec.RiskScore,
		Violations: validation.Violations,
		Warnings:   validation.Warnings,
		Validation: validation,
		AuditEntry: entry.Clone(),
		Context:    ec,
	}

	span.SetAttributes(
		attribute.Bool("enforce.approved", decision.Approved),
		attribute.Float64("enforce.risk_score", decision.RiskScore),
		attribute.Int("enforce.rules_evaluated", validation.RulesEvaluated),
	)
	e.logger.Info("request enforced",
		"request_id", ec.RequestID,
		"user_id", ec.UserID,
		"status", decision.Status,
		"risk_score", decision.RiskScore,
		"violations", len(decision.Violations),
		"rules_evaluated", validation.RulesEvaluated,
	)
	e.observer.ObserveEnforcement(decision, time.Since(started))

	return decision, nil
}

// decide runs match, evaluate and aggregate under the enforcement timeout,
// advancing ec to StateDecided.
func (e *Engine) decide(ctx context.Context, snap *snapshot, ec *ExecutionContext) (ValidationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.EnforcementTimeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return ValidationResult{}, err
	}
	applicable := SelectApplicable(snap.rules, ec.Action)
	ec.ApplicableRules = make([]rules.PolicyRule, len(applicable))
	for i, r := range applicable {
		ec.ApplicableRules[i] = r.Clone()
	}
	ec.State = StateMatched

	results := make([]RuleResult, 0, len(applicable))
	for _, r := range applicable {
		if err := ctx.Err(); err != nil {
			return ValidationResult{}, err
		}
		res, err := Evaluate(r, ec.Parameters)
		if err != nil {
			return ValidationResult{}, fmt.Errorf("evaluate rule %s: %w", r.ID, err)
		}
		results = append(results, res)
	}
	ec.State = StateEvaluated

	validation := Aggregate(results)
	ec.RiskScore = validation.RiskScore
	ec.Approved = validation.Passed
	ec.State = StateDecided
	return validation, nil
}

func ruleIDs(rs []rules.PolicyRule) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}

// AuditSnapshot returns every audit entry in append order.
func (e *Engine) AuditSnapshot() []evidence.AuditEntry {
	return e.audit.Snapshot()
}

// ExportStructured returns the interchange document for the current rules.
func (e *Engine) ExportStructured(opts *artifact.Options) (*artifact.Document, error) {
	return artifact.BuildDocument(e.snapshot().set, opts)
}

// ExportArtifact returns generated validator source for the current rules.
func (e *Engine) ExportArtifact(opts *artifact.Options) ([]byte, error) {
	return artifact.Generate(e.snapshot().set, opts)
}

// IsEnforcementError reports whether err is an enforcement failure.
func IsEnforcementError(err error) bool {
	var enfErr *EnforcementError
	return errors.As(err, &enfErr)
}
