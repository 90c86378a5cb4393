package artifact

// fileTemplate renders the generated validator file. Per-rule constraint
// checks are rendered separately from constraintTemplates and inserted as
// .Checks.
const fileTemplate = `// Code generated by {{.Generator}}. DO NOT EDIT.
//
// Rule set digest: {{.Digest}}
// Generated at:    {{.GeneratedAt}}
// Rules:           {{len .Rules}}

package {{.PackageName}}

import (
	"fmt"
	"strconv"
	"strings"
)

// Context is one action to check. Parameter values are bool, string or a
// numeric type.
type Context struct {
	Action     string
	Parameters map[string]any
}

// Result is the outcome of one rule.
type Result struct {
	RuleID     string
	Category   string
	Level      string
	Passed     bool
	Violations []string
	Warnings   []string
	Severity   string
}

// Report aggregates the results of all applicable rules.
type Report struct {
	Passed         bool
	RiskScore      float64
	Violations     []string
	Warnings       []string
	Results        []Result
	RulesEvaluated int
}

// Rule is a registry entry.
type Rule struct {
	ID               string
	Category         string
	Subcategory      string
	Level            string
	Description      string
	Requirement      string
	SourceDocument   string
	SectionReference string
	Validate         func(Context) Result
}

// Registry lists every rule in rule set order.
var Registry = []Rule{
{{- range .Rules}}
	{
		ID:               {{printf "%q" .ID}},
		Category:         {{printf "%q" .Category}},
		Subcategory:      {{printf "%q" .Subcategory}},
		Level:            {{printf "%q" .Level}},
		Description:      {{printf "%q" .Description}},
		Requirement:      {{printf "%q" .Requirement}},
		SourceDocument:   {{printf "%q" .SourceDocument}},
		SectionReference: {{printf "%q" .SectionReference}},
		Validate:         {{.FuncName}},
	},
{{- end}}
}

// RegistryByID maps rule identifiers to registry entries.
var RegistryByID = func() map[string]Rule {
	m := make(map[string]Rule, len(Registry))
	for _, r := range Registry {
		m[r.ID] = r
	}
	return m
}()

var levelWeight = map[string]float64{
{{- range .Weights}}
	{{printf "%q" .Level}}: {{.Weight}},
{{- end}}
}

const (
	paramEncryptionEnabled   = {{printf "%q" .Params.EncryptionEnabled}}
	paramEncryptionAlgorithm = {{printf "%q" .Params.EncryptionAlgorithm}}
	paramContainsPII         = {{printf "%q" .Params.ContainsPII}}
	paramUserConsent         = {{printf "%q" .Params.UserConsent}}
	paramRetentionDays       = {{printf "%q" .Params.RetentionDays}}
)

// Applies reports whether any whitespace-separated token of action, lower
// cased, occurs in the rule's description and requirement.
func Applies(r Rule, action string) bool {
	text := strings.ToLower(r.Description + " " + r.Requirement)
	for _, tok := range strings.Fields(strings.ToLower(action)) {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}

// ValidateAll checks every rule that applies to ctx.Action.
func ValidateAll(ctx Context) Report {
	var results []Result
	for _, r := range Registry {
		if Applies(r, ctx.Action) {
			results = append(results, r.Validate(ctx))
		}
	}
	return aggregate(results)
}

// CheckAll checks every rule regardless of the action.
func CheckAll(ctx Context) Report {
	results := make([]Result, 0, len(Registry))
	for _, r := range Registry {
		results = append(results, r.Validate(ctx))
	}
	return aggregate(results)
}

func aggregate(results []Result) Report {
	rep := Report{
		Violations:     []string{},
		Warnings:       []string{},
		Results:        results,
		RulesEvaluated: len(results),
	}
	if rep.Results == nil {
		rep.Results = []Result{}
	}
	for _, r := range results {
		if !r.Passed {
			rep.RiskScore += levelWeight[r.Level]
		}
		rep.Violations = append(rep.Violations, r.Violations...)
		rep.Warnings = append(rep.Warnings, r.Warnings...)
	}
	rep.Passed = len(rep.Violations) == 0
	return rep
}

type paramState int

const (
	paramAbsent paramState = iota
	paramMalformed
	paramFalse
	paramTrue
)

func boolParam(p map[string]any, key string) paramState {
	v, ok := p[key]
	if !ok {
		return paramAbsent
	}
	b, ok := v.(bool)
	switch {
	case !ok:
		return paramMalformed
	case b:
		return paramTrue
	default:
		return paramFalse
	}
}

func numberParam(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func violation(description, reason string) string {
	return fmt.Sprintf({{printf "%q" .Formats.Violation}}, description, reason)
}

func malformed(key, expected string) string {
	return fmt.Sprintf({{printf "%q" .Formats.Malformed}}, key, expected)
}

type result struct {
	Result
	description string
}

func newResult(id, category, level, description string) *result {
	return &result{
		Result: Result{
			RuleID:     id,
			Category:   category,
			Level:      level,
			Violations: []string{},
			Warnings:   []string{},
		},
		description: description,
	}
}

func (r *result) fail(reason string) {
	r.Violations = append(r.Violations, violation(r.description, reason))
}

func (r *result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func (r *result) finish() Result {
	r.Passed = len(r.Violations) == 0
	if !r.Passed && r.Level == {{printf "%q" .MandatoryLevel}} {
		r.Severity = {{printf "%q" .SeverityCritical}}
	}
	return r.Result
}

func (r *result) checkEncryption(p map[string]any, required string) {
	switch boolParam(p, paramEncryptionEnabled) {
	case paramMalformed:
		r.fail(malformed(paramEncryptionEnabled, "bool"))
		return
	case paramAbsent, paramFalse:
		r.fail({{printf "%q" .Reasons.EncryptionDisabled}})
		return
	}
	if declared, ok := p[paramEncryptionAlgorithm].(string); ok && !strings.EqualFold(declared, required) {
		r.warn(fmt.Sprintf({{printf "%q" .Formats.AlgorithmMismatch}}, r.description, declared, required))
	}
}

func (r *result) checkPII(p map[string]any, requiresConsent, requiresEncryption bool) {
	switch boolParam(p, paramContainsPII) {
	case paramFalse:
		return
	case paramMalformed:
		r.fail(malformed(paramContainsPII, "bool"))
	}
	if requiresConsent {
		switch boolParam(p, paramUserConsent) {
		case paramMalformed:
			r.fail(malformed(paramUserConsent, "bool"))
		case paramAbsent, paramFalse:
			r.fail({{printf "%q" .Reasons.ConsentMissing}})
		}
	}
	if requiresEncryption {
		switch boolParam(p, paramEncryptionEnabled) {
		case paramMalformed:
			r.fail(malformed(paramEncryptionEnabled, "bool"))
		case paramAbsent, paramFalse:
			r.fail({{printf "%q" .Reasons.PIIUnencrypted}})
		}
	}
}

func (r *result) checkRetention(p map[string]any, requiredDays int, required string) {
	v, ok := p[paramRetentionDays]
	if !ok {
		r.fail(fmt.Sprintf({{printf "%q" .Formats.RetentionUndeclared}}, required))
		return
	}
	days, ok := numberParam(v)
	if !ok || days < 0 {
		r.fail(malformed(paramRetentionDays, "non-negative number"))
		return
	}
	if days < float64(requiredDays) {
		r.fail(fmt.Sprintf({{printf "%q" .Formats.RetentionTooShort}}, strconv.FormatFloat(days, 'f', -1, 64), required))
	}
}
{{range .Rules}}
// {{.FuncName}} checks rule {{.ID}} ({{.Level}}, {{.Category}}).
//
// {{.Comment}}
// Source: {{.SourceComment}}
func {{.FuncName}}(ctx Context) Result {
	r := newResult({{printf "%q" .ID}}, {{printf "%q" .Category}}, {{printf "%q" .Level}}, {{printf "%q" .Description}})
{{- range .Checks}}
	{{.}}
{{- end}}
	return r.finish()
}
{{end}}`

// constraintTemplates holds one template per constraint kind. A kind with
// no template cannot be exported.
const constraintTemplates = `
{{- define "encryption_required" -}}
r.checkEncryption(ctx.Parameters, {{printf "%q" .Algorithm}})
{{- end}}

{{- define "pii_handling" -}}
r.checkPII(ctx.Parameters, {{.RequiresConsent}}, {{.RequiresEncryption}})
{{- end}}

{{- define "data_retention" -}}
r.checkRetention(ctx.Parameters, {{.Duration.Days}}, {{printf "%q" .Duration.String}})
{{- end}}
`
