package engine

import (
	"strings"

	"mercator-hq/covenant/pkg/rules"
)

// Evaluate checks every constraint of rule against params. Missing or
// malformed parameters are violations. An error is returned only for a
// constraint variant the evaluator does not know.
func Evaluate(rule rules.PolicyRule, params Parameters) (RuleResult, error) {
	res := RuleResult{
		RuleID:     rule.ID,
		Category:   rule.Category,
		Level:      rule.Level,
		Violations: []string{},
		Warnings:   []string{},
	}

	for _, c := range rule.Constraints {
		var reasons, warnings []string
		switch c := c.(type) {
		case rules.EncryptionRequired:
			reasons, warnings = checkEncryption(rule, c, params)
		case rules.PIIHandling:
			reasons = checkPII(c, params)
		case rules.DataRetention:
			reasons = checkRetention(c, params)
		default:
			return RuleResult{}, rules.NewUnrecognizedConstraintVariantError(c)
		}
		for _, reason := range reasons {
			res.Violations = append(res.Violations, rules.ViolationMessage(rule, reason))
		}
		res.Warnings = append(res.Warnings, warnings...)
	}

	res.Passed = len(res.Violations) == 0
	if !res.Passed && rule.Level == rules.LevelMandatory {
		res.Severity = rules.SeverityCritical
	}
	return res, nil
}

type paramState int

const (
	paramAbsent paramState = iota
	paramMalformed
	paramFalse
	paramTrue
)

func boolParam(params Parameters, key string) paramState {
	v, ok := params.Lookup(key)
	if !ok {
		return paramAbsent
	}
	b, ok := v.AsBool()
	switch {
	case !ok:
		return paramMalformed
	case b:
		return paramTrue
	default:
		return paramFalse
	}
}

func checkEncryption(rule rules.PolicyRule, c rules.EncryptionRequired, params Parameters) (reasons, warnings []string) {
	switch boolParam(params, rules.ParamEncryptionEnabled) {
	case paramMalformed:
		return []string{rules.MalformedParameterReason(rules.ParamEncryptionEnabled, "bool")}, nil
	case paramAbsent, paramFalse:
		return []string{rules.ReasonEncryptionDisabled}, nil
	}

	required := c.Algorithm
	if required == "" {
		required = rules.DefaultAlgorithm
	}
	if v, ok := params.Lookup(rules.ParamEncryptionAlgorithm); ok {
		if declared, ok := v.AsString(); ok && !strings.EqualFold(declared, required) {
			warnings = append(warnings, rules.AlgorithmMismatchWarning(rule, declared, required))
		}
	}
	return nil, warnings
}

func checkPII(c rules.PIIHandling, params Parameters) []string {
	var reasons []string
	switch boolParam(params, rules.ParamContainsPII) {
	case paramFalse:
		return nil
	case paramMalformed:
		reasons = append(reasons, rules.MalformedParameterReason(rules.ParamContainsPII, "bool"))
	}

	if c.RequiresConsent {
		switch boolParam(params, rules.ParamUserConsent) {
		case paramMalformed:
			reasons = append(reasons, rules.MalformedParameterReason(rules.ParamUserConsent, "bool"))
		case paramAbsent, paramFalse:
			reasons = append(reasons, rules.ReasonConsentMissing)
		}
	}
	if c.RequiresEncryption {
		switch boolParam(params, rules.ParamEncryptionEnabled) {
		case paramMalformed:
			reasons = append(reasons, rules.MalformedParameterReason(rules.ParamEncryptionEnabled, "bool"))
		case paramAbsent, paramFalse:
			reasons = append(reasons, rules.ReasonPIIUnencrypted)
		}
	}
	return reasons
}

func checkRetention(c rules.DataRetention, params Parameters) []string {
	v, ok := params.Lookup(rules.ParamRetentionDays)
	if !ok {
		return []string{rules.RetentionUndeclaredReason(c.Duration)}
	}
	days, ok := v.AsNumber()
	if !ok || days < 0 {
		return []string{rules.MalformedParameterReason(rules.ParamRetentionDays, "non-negative number")}
	}
	if days < float64(c.Duration.Days()) {
		return []string{rules.RetentionTooShortReason(days, c.Duration)}
	}
	return nil
}
