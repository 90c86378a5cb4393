package engine

import (
	"strings"

	"mercator-hq/covenant/pkg/rules"
)

// Matches reports whether rule applies to action. Any whitespace-separated
// token of the action, lower-cased, found as a substring of the rule's
// description and requirement makes the rule applicable. Common words such
// as "data" match widely; there is no stemming or negation handling.
func Matches(rule rules.PolicyRule, action string) bool {
	return matchTokens(rule, tokenize(action))
}

// SelectApplicable returns the rules that apply to action, in input order.
func SelectApplicable(rs []rules.PolicyRule, action string) []rules.PolicyRule {
	tokens := tokenize(action)
	out := make([]rules.PolicyRule, 0, len(rs))
	for _, r := range rs {
		if matchTokens(r, tokens) {
			out = append(out, r)
		}
	}
	return out
}

func tokenize(action string) []string {
	return strings.Fields(strings.ToLower(action))
}

func matchTokens(rule rules.PolicyRule, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	text := strings.ToLower(rule.Text())
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}
