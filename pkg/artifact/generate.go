package artifact

import (
	"bytes"
	"fmt"
	"go/format"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode"

	"mercator-hq/covenant/pkg/rules"
)

var (
	fileTmpl       = template.Must(template.New("file").Parse(fileTemplate))
	constraintTmpl = template.Must(template.New("constraints").Parse(constraintTemplates))
)

type ruleView struct {
	rules.PolicyRule
	FuncName      string
	Comment       string
	SourceComment string
	Checks        []string
}

type weightView struct {
	Level  rules.ComplianceLevel
	Weight string
}

type fileView struct {
	Generator        string
	Digest           string
	GeneratedAt      string
	PackageName      string
	Rules            []ruleView
	Weights          []weightView
	MandatoryLevel   rules.ComplianceLevel
	SeverityCritical string
	Params           struct {
		EncryptionEnabled, EncryptionAlgorithm, ContainsPII, UserConsent, RetentionDays string
	}
	Reasons struct {
		EncryptionDisabled, ConsentMissing, PIIUnencrypted string
	}
	Formats struct {
		Violation, Malformed, RetentionUndeclared, RetentionTooShort, AlgorithmMismatch string
	}
}

// Generate renders validator source for set. The output is gofmt-formatted
// and, for a fixed Options.Now, byte-identical for the same rule set.
func Generate(set *rules.RuleSet, opts *Options) ([]byte, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if set == nil {
		set = rules.NewRuleSet()
	}

	digest, err := set.Digest()
	if err != nil {
		return nil, err
	}

	view := fileView{
		Generator:        opts.Generator,
		Digest:           digest,
		GeneratedAt:      opts.Now().UTC().Format(time.RFC3339),
		PackageName:      opts.PackageName,
		MandatoryLevel:   rules.LevelMandatory,
		SeverityCritical: rules.SeverityCritical,
	}
	for _, l := range []rules.ComplianceLevel{rules.LevelMandatory, rules.LevelRequired, rules.LevelRecommended, rules.LevelOptional} {
		view.Weights = append(view.Weights, weightView{Level: l, Weight: strconv.FormatFloat(l.Weight(), 'f', -1, 64)})
	}
	view.Params.EncryptionEnabled = rules.ParamEncryptionEnabled
	view.Params.EncryptionAlgorithm = rules.ParamEncryptionAlgorithm
	view.Params.ContainsPII = rules.ParamContainsPII
	view.Params.UserConsent = rules.ParamUserConsent
	view.Params.RetentionDays = rules.ParamRetentionDays
	view.Reasons.EncryptionDisabled = rules.ReasonEncryptionDisabled
	view.Reasons.ConsentMissing = rules.ReasonConsentMissing
	view.Reasons.PIIUnencrypted = rules.ReasonPIIUnencrypted
	view.Formats.Violation = rules.ViolationFormat
	view.Formats.Malformed = rules.MalformedParameterFormat
	view.Formats.RetentionUndeclared = rules.RetentionUndeclaredFormat
	view.Formats.RetentionTooShort = rules.RetentionTooShortFormat
	view.Formats.AlgorithmMismatch = rules.AlgorithmMismatchFormat

	names := make(map[string]bool)
	for _, r := range set.Rules() {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		rv := ruleView{
			PolicyRule:    r,
			FuncName:      funcName(r.ID, names),
			Comment:       commentText(r.Description),
			SourceComment: commentText(fmt.Sprintf("%s, section %q, line %d", r.SourceDocument, r.SectionReference, r.LineIndex+1)),
		}
		for _, c := range r.Constraints {
			check, err := renderCheck(c)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", r.ID, err)
			}
			rv.Checks = append(rv.Checks, check)
		}
		view.Rules = append(view.Rules, rv)
	}

	var buf bytes.Buffer
	if err := fileTmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render validators: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format validators: %w", err)
	}
	return src, nil
}

func renderCheck(c rules.Constraint) (string, error) {
	if !rules.IsKnownConstraint(c) {
		return "", rules.NewUnrecognizedConstraintVariantError(c)
	}
	tmpl := constraintTmpl.Lookup(string(c.Kind()))
	if tmpl == nil {
		return "", rules.NewUnrecognizedConstraintVariantError(c)
	}

	data := c
	if enc, ok := c.(rules.EncryptionRequired); ok && enc.Algorithm == "" {
		data = rules.EncryptionRequired{Algorithm: rules.DefaultAlgorithm}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s check: %w", c.Kind(), err)
	}
	return buf.String(), nil
}

// funcName returns a unique exported identifier "Validate<ID>" built from the
// letters and digits of id.
func funcName(id string, taken map[string]bool) string {
	var b strings.Builder
	b.WriteString("Validate")
	upper := true
	for _, r := range id {
		if r > unicode.MaxASCII || (!unicode.IsLetter(r) && !unicode.IsDigit(r)) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	name := b.String()
	for i := 2; taken[name]; i++ {
		name = fmt.Sprintf("%s_%d", b.String(), i)
	}
	taken[name] = true
	return name
}

func commentText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
