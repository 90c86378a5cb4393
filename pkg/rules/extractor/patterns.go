package extractor

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"mercator-hq/covenant/pkg/rules"
)

type pattern struct {
	subcategory rules.Subcategory
	re          *regexp.Regexp
}

var (
	mandatoryPattern   = regexp.MustCompile(`(?i)(must|shall|required to|mandatory)`)
	prohibitedPattern  = regexp.MustCompile(`(?i)(must not|shall not|prohibited|forbidden)`)
	recommendedPattern = regexp.MustCompile(`(?i)(should|recommended|advised to)`)
	retentionPattern   = regexp.MustCompile(`(?i)\b(?:retain(?:ed|s)?|retention(?: period)?|keep|kept|maintain(?:ed)?|stored?)\b[^\d\n]*?(\d+)\s+(days?|months?|years?)\b`)
	approvalPattern    = regexp.MustCompile(`(?i)(approval required|must be approved|requires authorization|requires approval)`)
	encryptionPattern  = regexp.MustCompile(`(?i)(encrypt|encryption|encrypted)`)
	piiPattern         = regexp.MustCompile(`(?i)(personally identifiable|PII|personal data|customer information)`)

	algorithmPattern = regexp.MustCompile(`(?i)\b(AES[- ]?(?:128|192|256)|RSA[- ]?(?:2048|3072|4096)|ChaCha20(?:-Poly1305)?|TLS[- ]?1\.[23])\b`)

	capsHeaderPattern    = regexp.MustCompile(`^[A-Z\s]{5,}$`)
	outlineHeaderPattern = regexp.MustCompile(`^\d+\.`)
)

// patternTable is evaluated in order; the first match decides the subcategory.
var patternTable = []pattern{
	{rules.SubcategoryMandatory, mandatoryPattern},
	{rules.SubcategoryProhibited, prohibitedPattern},
	{rules.SubcategoryRecommended, recommendedPattern},
	{rules.SubcategoryDataRetention, retentionPattern},
	{rules.SubcategoryApprovalRequired, approvalPattern},
	{rules.SubcategoryEncryption, encryptionPattern},
	{rules.SubcategoryPIIHandling, piiPattern},
}

var (
	governanceKeywords = []string{"approval", "authorization", "oversight", "board", "committee"}
	riskKeywords       = []string{"risk", "threat", "vulnerability", "security", "breach"}
)

func classify(line string) (rules.Subcategory, bool) {
	for _, p := range patternTable {
		if p.re.MatchString(line) {
			return p.subcategory, true
		}
	}
	return "", false
}

func levelOf(line string) rules.ComplianceLevel {
	switch {
	case mandatoryPattern.MatchString(line):
		return rules.LevelMandatory
	case prohibitedPattern.MatchString(line):
		return rules.LevelMandatory
	case recommendedPattern.MatchString(line):
		return rules.LevelRecommended
	default:
		return rules.LevelRequired
	}
}

func categoryOf(line string) rules.Category {
	lower := strings.ToLower(line)
	if containsAny(lower, governanceKeywords) {
		return rules.CategoryGovernance
	}
	if containsAny(lower, riskKeywords) {
		return rules.CategoryRisk
	}
	return rules.CategoryCompliance
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// constraintsOf tests retention, encryption and PII patterns in that order.
func constraintsOf(line string) rules.Constraints {
	cs := rules.Constraints{}

	if m := retentionPattern.FindStringSubmatch(line); m != nil {
		period, err := rules.ParseRetentionPeriod(m[1] + " " + m[2])
		switch {
		case err == nil:
			cs = append(cs, rules.DataRetention{Duration: period})
		case errors.Is(err, rules.ErrRetentionOutOfRange), errors.Is(err, strconv.ErrRange):
			// An unrepresentable obligation still blocks: require the longest period.
			cs = append(cs, rules.DataRetention{Duration: rules.RetentionPeriod{
				Quantity: rules.MaxRetentionDays,
				Unit:     rules.UnitDays,
			}})
		}
	}

	if encryptionPattern.MatchString(line) {
		cs = append(cs, rules.EncryptionRequired{Algorithm: algorithmOf(line)})
	}

	if piiPattern.MatchString(line) {
		cs = append(cs, rules.PIIHandling{RequiresConsent: true, RequiresEncryption: true})
	}

	return cs
}

// algorithmOf returns the first cipher named in the line, normalized to
// upper case with a hyphen separator, or rules.DefaultAlgorithm.
func algorithmOf(line string) string {
	m := strings.ToUpper(strings.ReplaceAll(algorithmPattern.FindString(line), " ", "-"))
	switch {
	case m == "":
		return rules.DefaultAlgorithm
	case strings.HasPrefix(m, "CHACHA20-"):
		return "ChaCha20-Poly1305"
	case strings.HasPrefix(m, "CHACHA20"):
		return "ChaCha20"
	}
	if prefix := m[:3]; m[3] != '-' {
		m = prefix + "-" + m[3:]
	}
	return m
}

func isHeader(line string) bool {
	return capsHeaderPattern.MatchString(line) || outlineHeaderPattern.MatchString(line)
}
