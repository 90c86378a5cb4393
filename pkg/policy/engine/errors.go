package engine

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrNoRulesLoaded is reported by CheckReady before any policy is loaded.
	ErrNoRulesLoaded = errors.New("no rules loaded")

	// ErrTooManyRules indicates a load would exceed Config.MaxRules.
	ErrTooManyRules = errors.New("too many rules")
)

// EnforcementError reports a request that did not reach the Logged state.
// No audit entry exists for it and it must be treated as not approved.
type EnforcementError struct {
	RequestID string
	State     State
	Cause     error
}

// Error returns the error message.
func (e *EnforcementError) Error() string {
	return fmt.Sprintf("enforcement of request %s failed after %s: %v", e.RequestID, e.State, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *EnforcementError) Unwrap() error {
	return e.Cause
}

// PolicyLoadError indicates a policy document could not be loaded.
type PolicyLoadError struct {
	Source string
	Cause  error
}

// Error returns the error message.
func (e *PolicyLoadError) Error() string {
	return fmt.Sprintf("failed to load policy %q: %v", e.Source, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *PolicyLoadError) Unwrap() error {
	return e.Cause
}
