package rules

import (
	"fmt"
	"strconv"
)

// Parameter keys read by constraint checks.
const (
	ParamEncryptionEnabled   = "encryption_enabled"
	ParamEncryptionAlgorithm = "encryption_algorithm"
	ParamContainsPII         = "contains_pii"
	ParamUserConsent         = "user_consent"
	ParamRetentionDays       = "retention_days"
)

// Violation reasons shared by the live evaluator and generated validators.
const (
	ReasonEncryptionDisabled = "Encryption not enabled"
	ReasonConsentMissing     = "PII processing requires user consent"
	ReasonPIIUnencrypted     = "PII must be encrypted"
)

// SeverityCritical marks a failed mandatory rule.
const SeverityCritical = "CRITICAL"

// Message formats. Generated validators embed these so both paths print
// identical text.
const (
	ViolationFormat           = "Violation: %s - %s"
	MalformedParameterFormat  = "Parameter %q is malformed (expected %s)"
	RetentionUndeclaredFormat = "Retention period not declared (requires %s)"
	RetentionTooShortFormat   = "Retention of %s days is shorter than required %s"
	AlgorithmMismatchFormat   = "Warning: %s - Encryption algorithm %s does not match required %s"
)

// ViolationMessage formats a violation for rule r.
func ViolationMessage(r PolicyRule, reason string) string {
	return fmt.Sprintf(ViolationFormat, r.Description, reason)
}

// MalformedParameterReason describes a parameter of the wrong shape.
func MalformedParameterReason(key, expected string) string {
	return fmt.Sprintf(MalformedParameterFormat, key, expected)
}

// RetentionUndeclaredReason is used when retention_days is absent.
func RetentionUndeclaredReason(required RetentionPeriod) string {
	return fmt.Sprintf(RetentionUndeclaredFormat, required)
}

// RetentionTooShortReason is used when retention_days is below the requirement.
func RetentionTooShortReason(days float64, required RetentionPeriod) string {
	return fmt.Sprintf(RetentionTooShortFormat,
		strconv.FormatFloat(days, 'f', -1, 64), required)
}

// AlgorithmMismatchWarning is a non-failing note when the declared cipher differs.
func AlgorithmMismatchWarning(r PolicyRule, declared, required string) string {
	return fmt.Sprintf(AlgorithmMismatchFormat,
		r.Description, declared, required)
}
