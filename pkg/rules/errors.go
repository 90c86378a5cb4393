package rules

import "fmt"

// AmbiguousRuleIDError is returned when two distinct rules produce the same identifier.
type AmbiguousRuleIDError struct {
	ID       string
	Existing Provenance
	Incoming Provenance
}

// Error implements the error interface.
func (e *AmbiguousRuleIDError) Error() string {
	return fmt.Sprintf("ambiguous rule id %s: %s collides with %s", e.ID, e.Incoming, e.Existing)
}

// UnrecognizedConstraintVariantError is returned when a constraint has no known
// evaluator, template or wire encoding.
type UnrecognizedConstraintVariantError struct {
	Kind   string // wire tag, when known
	GoType string // dynamic Go type, when the constraint came from code
}

// Error implements the error interface.
func (e *UnrecognizedConstraintVariantError) Error() string {
	switch {
	case e.GoType != "" && e.Kind != "":
		return fmt.Sprintf("unrecognized constraint variant %s (kind %q)", e.GoType, e.Kind)
	case e.GoType != "":
		return fmt.Sprintf("unrecognized constraint variant %s", e.GoType)
	default:
		return fmt.Sprintf("unrecognized constraint variant %q", e.Kind)
	}
}

// NewUnrecognizedConstraintVariantError describes an unknown constraint value.
func NewUnrecognizedConstraintVariantError(c Constraint) *UnrecognizedConstraintVariantError {
	e := &UnrecognizedConstraintVariantError{GoType: fmt.Sprintf("%T", c)}
	if c != nil {
		e.Kind = string(c.Kind())
	}
	return e
}
