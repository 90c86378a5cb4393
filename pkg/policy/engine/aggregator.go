package engine

import "mercator-hq/covenant/pkg/rules"

// Aggregate folds per-rule results into one validation result. Each
// violating rule adds its compliance level weight to the risk score.
func Aggregate(results []RuleResult) ValidationResult {
	out := ValidationResult{
		Violations:     []string{},
		Warnings:       []string{},
		Results:        results,
		RulesEvaluated: len(results),
	}
	if out.Results == nil {
		out.Results = []RuleResult{}
	}
	for _, r := range results {
		if !r.Passed {
			out.RiskScore += r.Level.Weight()
		}
		out.Violations = append(out.Violations, r.Violations...)
		out.Warnings = append(out.Warnings, r.Warnings...)
	}
	out.Passed = len(out.Violations) == 0
	return out
}

// Validate evaluates each rule against params and aggregates the results.
func Validate(applicable []rules.PolicyRule, params Parameters) (ValidationResult, error) {
	results := make([]RuleResult, 0, len(applicable))
	for _, r := range applicable {
		res, err := Evaluate(r, params)
		if err != nil {
			return ValidationResult{}, err
		}
		results = append(results, res)
	}
	return Aggregate(results), nil
}
