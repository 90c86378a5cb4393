// Package rules defines the policy rule model shared by extraction,
// enforcement and artifact generation.
//
// A PolicyRule is one codified obligation lifted from policy text. Rules are
// values: once extracted they are never mutated, and every accessor that hands
// rules out returns copies. Each rule carries an ordered list of Constraint
// values, a closed set of variants (EncryptionRequired, PIIHandling,
// DataRetention) that consumers dispatch on with a type switch.
//
// A RuleSet keeps rules in insertion order and enforces identifier
// uniqueness. Adding a rule whose identifier is already taken returns an
// *AmbiguousRuleIDError instead of overwriting the existing rule.
//
// # Basic Usage
//
//	set := rules.NewRuleSet()
//	if err := set.Add(rule); err != nil {
//		var ambiguous *rules.AmbiguousRuleIDError
//		if errors.As(err, &ambiguous) {
//			// two distinct lines produced the same identifier
//		}
//	}
//
//	digest, _ := set.Digest() // stable across processes for the same rules
package rules
