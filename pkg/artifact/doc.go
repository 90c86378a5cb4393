// Package artifact exports a rule set for use outside the engine.
//
// BuildDocument produces the structured interchange document (JSON or YAML)
// and LoadDocument reads it back, validating it against an embedded JSON
// Schema and checking the format version and digest.
//
// Generate produces a self-contained Go source file with one validation
// function per rule, an ordered registry and ValidateAll, which applies the
// same matching, checks, messages and risk weights as the live engine.
package artifact
