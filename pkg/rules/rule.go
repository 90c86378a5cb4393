package rules

import (
	"fmt"
	"strings"
)

// Category is the GRC bucket a rule is filed under.
type Category string

const (
	CategoryGovernance Category = "Governance"
	CategoryRisk       Category = "Risk"
	CategoryCompliance Category = "Compliance"
)

// Categories lists every category in reporting order.
var Categories = []Category{CategoryGovernance, CategoryRisk, CategoryCompliance}

// ParseCategory converts a wire value to a Category. Matching is case-insensitive.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// ComplianceLevel is the strength of an obligation.
type ComplianceLevel string

const (
	LevelMandatory   ComplianceLevel = "mandatory"
	LevelRequired    ComplianceLevel = "required"
	LevelRecommended ComplianceLevel = "recommended"
	LevelOptional    ComplianceLevel = "optional"
)

// Levels lists every compliance level from strongest to weakest.
var Levels = []ComplianceLevel{LevelMandatory, LevelRequired, LevelRecommended, LevelOptional}

// ParseComplianceLevel converts a wire value to a ComplianceLevel.
// Anything outside the four known levels is rejected.
func ParseComplianceLevel(s string) (ComplianceLevel, error) {
	for _, l := range Levels {
		if strings.EqualFold(s, string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown compliance level %q", s)
}

// Valid reports whether l is one of the four known levels.
func (l ComplianceLevel) Valid() bool {
	switch l {
	case LevelMandatory, LevelRequired, LevelRecommended, LevelOptional:
		return true
	}
	return false
}

// Weight is the risk contributed by one violating rule at this level.
func (l ComplianceLevel) Weight() float64 {
	switch l {
	case LevelMandatory:
		return 10.0
	case LevelRequired:
		return 5.0
	default:
		return 0
	}
}

// Subcategory names the pattern family that triggered extraction.
type Subcategory string

const (
	SubcategoryMandatory        Subcategory = "mandatory"
	SubcategoryProhibited       Subcategory = "prohibited"
	SubcategoryRecommended      Subcategory = "recommended"
	SubcategoryDataRetention    Subcategory = "data_retention"
	SubcategoryApprovalRequired Subcategory = "approval_required"
	SubcategoryEncryption       Subcategory = "encryption"
	SubcategoryPIIHandling      Subcategory = "pii_handling"
)

// PolicyRule is a single obligation extracted from policy text.
type PolicyRule struct {
	ID               string          `json:"rule_id" yaml:"rule_id"`
	Category         Category        `json:"category" yaml:"category"`
	Subcategory      Subcategory     `json:"subcategory" yaml:"subcategory"`
	Description      string          `json:"description" yaml:"description"`
	Requirement      string          `json:"requirement" yaml:"requirement"`
	Level            ComplianceLevel `json:"compliance_level" yaml:"compliance_level"`
	Constraints      Constraints     `json:"constraints" yaml:"constraints"`
	SourceDocument   string          `json:"source_document" yaml:"source_document"`
	SectionReference string          `json:"section_reference" yaml:"section_reference"`

	// LineIndex is the zero-based line position within SourceDocument.
	LineIndex int `json:"line_index" yaml:"line_index"`
}

// Clone returns a copy of the rule that shares no mutable state with r.
func (r PolicyRule) Clone() PolicyRule {
	out := r
	if r.Constraints != nil {
		out.Constraints = make(Constraints, len(r.Constraints))
		copy(out.Constraints, r.Constraints)
	}
	return out
}

// Text returns the combined description and requirement text used for matching.
func (r PolicyRule) Text() string {
	return r.Description + " " + r.Requirement
}

// Provenance identifies where a rule came from.
func (r PolicyRule) Provenance() Provenance {
	return Provenance{
		SourceDocument: r.SourceDocument,
		LineIndex:      r.LineIndex,
		Text:           r.Description,
	}
}

// Validate checks the structural invariants of a rule.
func (r PolicyRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule has empty id")
	}
	if !r.Level.Valid() {
		return fmt.Errorf("rule %s: invalid compliance level %q", r.ID, r.Level)
	}
	if _, err := ParseCategory(string(r.Category)); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	for i, c := range r.Constraints {
		if !IsKnownConstraint(c) {
			return fmt.Errorf("rule %s: constraint %d: %w", r.ID, i, NewUnrecognizedConstraintVariantError(c))
		}
	}
	return nil
}

// Provenance is the (source, line index, text) triple a rule identifier is derived from.
type Provenance struct {
	SourceDocument string
	LineIndex      int
	Text           string
}

func (p Provenance) String() string {
	return fmt.Sprintf("%s:%d: %q", p.SourceDocument, p.LineIndex, p.Text)
}
