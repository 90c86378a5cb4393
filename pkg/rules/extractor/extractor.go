package extractor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"mercator-hq/covenant/pkg/rules"
)

// cancelCheckInterval is how many lines are processed between context checks.
const cancelCheckInterval = 256

// Extractor converts policy text into rules. It holds no per-run state and is
// safe for concurrent use.
type Extractor struct {
	config *Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an extractor. A nil config uses DefaultConfig and a nil logger
// uses slog.Default.
func New(config *Config, logger *slog.Logger) (*Extractor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		config: config,
		logger: logger.With("component", "rules.extractor"),
		tracer: otel.Tracer("mercator-hq/covenant/pkg/rules/extractor"),
	}, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return *e.config
}

// state is the fold accumulator: the label of the last header seen.
type state struct {
	section string
}

// Extract scans text and returns its rules in line order.
//
// When two lines of the run produce the same identifier the rules gathered so
// far are returned together with a *rules.AmbiguousRuleIDError. The only
// other error is cancellation of ctx.
func (e *Extractor) Extract(ctx context.Context, text, source string) ([]rules.PolicyRule, error) {
	ctx, span := e.tracer.Start(ctx, "extractor.Extract",
		trace.WithAttributes(attribute.String("policy.source", source)))
	defer span.End()

	lines := strings.Split(text, "\n")
	set := rules.NewRuleSet()
	st := state{section: e.config.DefaultSection}

	for i, line := range lines {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("extraction of %s cancelled at line %d: %w", source, i, err)
			}
		}

		var rule *rules.PolicyRule
		st, rule = e.step(st, source, i, line)
		if rule == nil {
			continue
		}
		if err := set.Add(*rule); err != nil {
			span.RecordError(err)
			e.logger.Warn("rule identifier collision",
				"source", source,
				"line", i,
				"rule_id", rule.ID,
				"error", err,
			)
			return set.Rules(), err
		}
	}

	span.SetAttributes(
		attribute.Int("policy.lines", len(lines)),
		attribute.Int("policy.rules", set.Len()),
	)
	e.logger.Debug("policy text extracted",
		"source", source,
		"lines", len(lines),
		"rules", set.Len(),
	)

	return set.Rules(), nil
}

// step folds one line into the state, yielding a rule when the line is one.
func (e *Extractor) step(st state, source string, index int, raw string) (state, *rules.PolicyRule) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return st, nil
	}

	subcategory, matched := classify(line)

	if isHeader(line) && !(e.config.NumberedRules && matched && !capsHeaderPattern.MatchString(line)) {
		return state{section: line}, nil
	}
	if !matched {
		return st, nil
	}

	return st, &rules.PolicyRule{
		ID:               RuleID(source, index, line, e.config.IDLength),
		Category:         categoryOf(line),
		Subcategory:      subcategory,
		Description:      line,
		Requirement:      line,
		Level:            levelOf(line),
		Constraints:      constraintsOf(line),
		SourceDocument:   source,
		SectionReference: st.section,
		LineIndex:        index,
	}
}

// RuleID derives a rule identifier from its provenance: the first length hex
// characters of SHA-256 over "source:index:line" in NFC form.
func RuleID(source string, index int, line string, length int) string {
	key := norm.NFC.String(fmt.Sprintf("%s:%d:%s", source, index, line))
	sum := sha256.Sum256([]byte(key))
	id := hex.EncodeToString(sum[:])
	if length > 0 && length < len(id) {
		id = id[:length]
	}
	return id
}
